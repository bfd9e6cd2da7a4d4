// Package quota implements the per-principal daily usage ledger.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/aman-churiwal/ai-gateway/internal/metrics"
	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/aman-churiwal/ai-gateway/internal/storage"
)

// Unlimited is reported as Remaining for premium principals.
const Unlimited = -1

var ErrQuotaExceeded = errors.New("daily query limit reached")

// Store is the subset of the document store the ledger needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	TransactionalUpdate(ctx context.Context, key string, ttl time.Duration, fn storage.UpdateFunc) error
}

type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
}

// IsUnlimited reports whether the decision came from an unlimited tier.
func (d Decision) IsUnlimited() bool {
	return d.Remaining == Unlimited
}

type Ledger struct {
	store     Store
	limit     int
	retention time.Duration
	now       func() time.Time
}

func NewLedger(store Store, dailyLimit, retentionDays int) *Ledger {
	return &Ledger{
		store:     store,
		limit:     dailyLimit,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests to cross day boundaries.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Limit() int {
	return l.limit
}

// Day formats t as the UTC calendar day the quota is counted against.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func recordKey(principalID, day string) string {
	return fmt.Sprintf("quota:%s:%s", principalID, day)
}

// countFor returns the count stored in raw if it belongs to day.
func countFor(raw []byte, exists bool, day string) (int, error) {
	if !exists {
		return 0, nil
	}
	var rec models.QuotaRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return 0, fmt.Errorf("decode quota record: %w", err)
	}
	if rec.Date != day {
		return 0, nil
	}
	return rec.Count, nil
}

// CheckAndConsume atomically takes one query slot for p if any remain today.
// Concurrent calls for the same principal and day are serialized by the
// store's optimistic transaction, so no more than the limit ever succeed.
func (l *Ledger) CheckAndConsume(ctx context.Context, p models.Principal) (Decision, error) {
	if p.Tier.IsUnlimited() {
		metrics.QuotaDecisions.WithLabelValues("unlimited").Inc()
		return Decision{Allowed: true, Remaining: Unlimited, Limit: l.limit}, nil
	}

	day := Day(l.now())
	var decision Decision

	err := l.store.TransactionalUpdate(ctx, recordKey(p.ID, day), l.retention, func(current []byte, exists bool) ([]byte, error) {
		count, err := countFor(current, exists, day)
		if err != nil {
			return nil, err
		}

		if count >= l.limit {
			decision = Decision{Allowed: false, Remaining: 0, Limit: l.limit}
			return nil, nil
		}

		decision = Decision{Allowed: true, Remaining: l.limit - (count + 1), Limit: l.limit}
		return json.Marshal(models.QuotaRecord{
			PrincipalID: p.ID,
			Date:        day,
			Count:       count + 1,
		})
	})
	if err != nil {
		return Decision{}, fmt.Errorf("consume quota for %s: %w", p.ID, err)
	}

	if decision.Allowed {
		metrics.QuotaDecisions.WithLabelValues("allowed").Inc()
	} else {
		metrics.QuotaDecisions.WithLabelValues("denied").Inc()
	}
	return decision, nil
}

// Status reports today's remaining slots without consuming one.
func (l *Ledger) Status(ctx context.Context, p models.Principal) (Decision, error) {
	if p.Tier.IsUnlimited() {
		return Decision{Allowed: true, Remaining: Unlimited, Limit: l.limit}, nil
	}

	day := Day(l.now())
	raw, exists, err := l.store.Get(ctx, recordKey(p.ID, day))
	if err != nil {
		return Decision{}, fmt.Errorf("read quota for %s: %w", p.ID, err)
	}

	count, err := countFor(raw, exists, day)
	if err != nil {
		return Decision{}, err
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: remaining > 0, Remaining: remaining, Limit: l.limit}, nil
}
