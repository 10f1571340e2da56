package model

import (
	"encoding/json"
	"time"
)

// ScamReport is a persisted analysis outcome or community submission.
// Reports are append-only: a re-analysis of the same content produces a new row.
type ScamReport struct {
	ID         string          `json:"id" gorm:"primaryKey;type:text;not null"`
	Content    string          `json:"content" gorm:"type:text;not null;index"`
	CategoryID *string         `json:"category_id,omitempty" gorm:"index"`
	IsSafe     bool            `json:"is_safe" gorm:"not null"`
	Confidence int             `json:"confidence" gorm:"not null"`
	Threats    json.RawMessage `json:"threats" gorm:"type:text"` // JSON array of threat labels
	Analysis   string          `json:"analysis" gorm:"type:text"`
	UserID     *string         `json:"user_id,omitempty" gorm:"index"`
	Location   string          `json:"location,omitempty" gorm:"size:255"`
	CreatedAt  time.Time       `json:"created_at" gorm:"not null;index"`
}

type Category struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text;not null"`
	Name      string    `json:"name" gorm:"uniqueIndex;not null;size:100"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

// UserSubmittedScam is a manually filed report awaiting moderation,
// separate from gateway-generated ScamReports.
type UserSubmittedScam struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text;not null"`
	Title       string    `json:"title" gorm:"not null;size:255"`
	Description string    `json:"description" gorm:"type:text;not null"`
	CategoryID  string    `json:"category_id" gorm:"not null;index"`
	Location    string    `json:"location,omitempty" gorm:"size:255"`
	ContactInfo string    `json:"contact_info,omitempty" gorm:"size:255"`
	UserID      *string   `json:"user_id,omitempty" gorm:"index"`
	Status      string    `json:"status" gorm:"default:pending;not null;size:20"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
}
