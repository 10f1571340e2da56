package model

import (
	"encoding/json"
	"time"
)

// PerformanceMetric is an append-only sample; health classification is derived
// from trailing-window aggregates, never stored.
type PerformanceMetric struct {
	ID         uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Name       string          `json:"name" gorm:"not null;index;size:100"`
	Value      float64         `json:"value" gorm:"not null"`
	Tags       json.RawMessage `json:"tags" gorm:"type:text"`
	RecordedAt time.Time       `json:"recorded_at" gorm:"not null;index"`
}
