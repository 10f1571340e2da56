package model

import (
	"encoding/json"
	"time"
)

// AnalysisCacheEntry maps a content fingerprint to a prior verdict.
// Upsert semantics, last-write-wins; entries past TTL are treated as misses
// even while physically present (lazy expiry).
type AnalysisCacheEntry struct {
	ContentHash string          `json:"content_hash" gorm:"primaryKey;type:text;not null"`
	Result      json.RawMessage `json:"result" gorm:"type:text;not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;index"`
}
