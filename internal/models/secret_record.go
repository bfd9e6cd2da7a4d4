package models

import (
	"time"

	"gorm.io/datatypes"
)

// SecretRecord holds sealed provider secrets keyed by provider id.
type SecretRecord struct {
	ID        string            `gorm:"primaryKey" json:"id"`
	Fields    datatypes.JSONMap `gorm:"not null" json:"-"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (SecretRecord) TableName() string {
	return "secret_records"
}

// Field returns the sealed value stored for providerID, or "".
func (r *SecretRecord) Field(providerID string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	v, _ := r.Fields[providerID].(string)
	return v
}
