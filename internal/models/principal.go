package models

import "time"

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// IsUnlimited reports whether the tier bypasses the daily quota.
func (t Tier) IsUnlimited() bool {
	return t == TierPremium
}

// Principal is the quota subject. The gateway never creates one on the
// request path; rows come from the account system or the admin tier API.
type Principal struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Tier      Tier      `gorm:"not null;default:'free'" json:"tier"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Principal) TableName() string {
	return "principals"
}
