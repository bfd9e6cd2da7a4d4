package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Operation string

const (
	OperationChat       Operation = "chat"
	OperationFoodSafety Operation = "food_safety"
	OperationTriage     Operation = "triage"
)

type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
	OutcomeFailed        Outcome = "failed"
)

// UsageLogEntry is an append-only audit row. InputDigest never holds more
// than a short prefix of the caller's input.
type UsageLogEntry struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	PrincipalID  string    `gorm:"index;not null" json:"principal_id"`
	Operation    Operation `gorm:"index;not null" json:"operation"`
	InputDigest  string    `json:"input_digest"`
	OutputLength int       `json:"output_length"`
	ProviderID   string    `gorm:"index" json:"provider_id,omitempty"`
	FromCache    bool      `json:"from_cache"`
	Outcome      Outcome   `gorm:"index" json:"outcome"`
	LatencyMs    int       `json:"latency_ms"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
}

func (u *UsageLogEntry) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (UsageLogEntry) TableName() string {
	return "usage_logs"
}
