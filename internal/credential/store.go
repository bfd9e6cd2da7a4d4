// Package credential resolves provider secrets from a sealed record that is
// administered outside the gateway.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrNotConfigured means no usable secret exists for the requested provider.
var ErrNotConfigured = errors.New("provider credential not configured")

// Secret is a decrypted provider secret. It redacts itself when formatted
// or logged; call Reveal to get the raw value.
type Secret string

func (s Secret) Reveal() string { return string(s) }

func (Secret) String() string { return "[redacted]" }

func (Secret) GoString() string { return "[redacted]" }

func (Secret) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// Source returns the sealed fields of a record, keyed by provider id.
// A nil map with a nil error means the record does not exist.
type Source interface {
	Get(ctx context.Context, recordID string) (map[string]string, error)
}

type Store struct {
	source   Source
	recordID string
	key      []byte
	logger   *slog.Logger

	group singleflight.Group

	mu         sync.RWMutex
	loaded     bool
	generation uint64
	sealed     map[string]string
	plain      map[string]Secret
}

func NewStore(source Source, recordID string, masterKey []byte, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		source:   source,
		recordID: recordID,
		key:      masterKey,
		logger:   logger,
		plain:    make(map[string]Secret),
	}
}

// Resolve returns the decrypted secret for providerID. The record is read at
// most once until Invalidate is called; each provider is decrypted at most
// once per load.
func (s *Store) Resolve(ctx context.Context, providerID string) (Secret, error) {
	s.mu.RLock()
	if secret, ok := s.plain[providerID]; ok {
		s.mu.RUnlock()
		return secret, nil
	}
	loaded := s.loaded
	s.mu.RUnlock()

	// An Invalidate racing the load discards its result, so try again.
	for attempt := 0; !loaded && attempt < 3; attempt++ {
		if err := s.load(ctx); err != nil {
			return "", err
		}
		s.mu.RLock()
		loaded = s.loaded
		s.mu.RUnlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if secret, ok := s.plain[providerID]; ok {
		return secret, nil
	}

	sealed := s.sealed[providerID]
	if sealed == "" {
		return "", fmt.Errorf("%w: %s", ErrNotConfigured, providerID)
	}

	plain, err := Open(s.key, sealed)
	if err != nil || plain == "" {
		s.logger.Warn("credential_decrypt_failed", "provider", providerID)
		return "", fmt.Errorf("%w: %s", ErrNotConfigured, providerID)
	}

	secret := Secret(plain)
	s.plain[providerID] = secret
	return secret, nil
}

func (s *Store) load(ctx context.Context) error {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	_, err, _ := s.group.Do(fmt.Sprintf("load:%d", gen), func() (interface{}, error) {
		s.mu.RLock()
		done := s.loaded && s.generation == gen
		s.mu.RUnlock()
		if done {
			return nil, nil
		}

		fields, err := s.source.Get(ctx, s.recordID)
		if err != nil {
			return nil, fmt.Errorf("read credential record %s: %w", s.recordID, err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen || s.loaded {
			return nil, nil
		}
		if fields == nil {
			s.logger.Warn("credential_record_missing", "record", s.recordID)
			fields = map[string]string{}
		}
		s.sealed = fields
		s.loaded = true
		s.logger.Info("credential_record_loaded", "record", s.recordID, "providers", len(fields))
		return nil, nil
	})
	return err
}

// Invalidate drops the cached record and all decrypted secrets so the next
// Resolve re-reads the source.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.loaded = false
	s.sealed = nil
	s.plain = make(map[string]Secret)
	s.logger.Info("credential_cache_invalidated", "record", s.recordID)
}
