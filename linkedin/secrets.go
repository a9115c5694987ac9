package linkedin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/geiri-is/geiri/docstore"
)

const (
	secretPartition = "secret"
	secretID        = "linkedinAuth"
)

// Secret is the stored LinkedIn access token. There is at most one.
type Secret struct {
	Type        string     `json:"type"`
	PK          string     `json:"pk"`
	ID          string     `json:"id"`
	AccessToken string     `json:"accessToken"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	MemberID    string     `json:"memberId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Expired reports whether the token expired before now. A secret without
// a known expiry never expires.
func (s Secret) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// SecretStore holds the singleton LinkedIn secret.
type SecretStore interface {
	// Get returns ErrNoSecret when nothing is stored.
	Get(ctx context.Context) (*Secret, error)
	// Put replaces any stored secret.
	Put(ctx context.Context, s Secret) error
}

// DocSecretStore keeps the secret in a docstore container.
type DocSecretStore struct {
	c docstore.Container
}

func NewDocSecretStore(c docstore.Container) *DocSecretStore {
	return &DocSecretStore{c: c}
}

func (s *DocSecretStore) Get(ctx context.Context) (*Secret, error) {
	var sec Secret
	err := s.c.Read(ctx, secretPartition, secretID, &sec)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNoSecret
	}
	if err != nil {
		return nil, fmt.Errorf("read linkedin secret: %w", err)
	}
	return &sec, nil
}

func (s *DocSecretStore) Put(ctx context.Context, sec Secret) error {
	prev, err := s.Get(ctx)
	switch {
	case err == nil:
		sec.CreatedAt = prev.CreatedAt
	case !errors.Is(err, ErrNoSecret):
		return err
	}
	sec = stamp(sec)
	if err := docstore.Upsert(ctx, s.c, secretPartition, secretID, sec); err != nil {
		return fmt.Errorf("store linkedin secret: %w", err)
	}
	return nil
}

// MemorySecretStore keeps the secret in process memory.
type MemorySecretStore struct {
	mu     sync.RWMutex
	secret *Secret
}

func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{}
}

func (s *MemorySecretStore) Get(context.Context) (*Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.secret == nil {
		return nil, ErrNoSecret
	}
	c := *s.secret
	return &c, nil
}

func (s *MemorySecretStore) Put(_ context.Context, sec Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret != nil {
		sec.CreatedAt = s.secret.CreatedAt
	}
	sec = stamp(sec)
	s.secret = &sec
	return nil
}

func stamp(sec Secret) Secret {
	sec.Type, sec.PK, sec.ID = secretID, secretPartition, secretID
	if sec.CreatedAt.IsZero() {
		sec.CreatedAt = sec.UpdatedAt
	}
	return sec
}
