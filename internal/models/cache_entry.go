package models

import (
	"time"

	"github.com/goccy/go-json"
)

type CacheEntry struct {
	NormalizedKey string          `json:"normalized_key"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}
