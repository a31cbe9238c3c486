// Package shares implements shared-session links: a session addressed by
// an opaque token, optionally password-protected, that round-trips the
// session's messages, name, and working directory bit-identical between
// creation and retrieval.
package shares

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ErrNotFound is returned when a token has no matching share.
var ErrNotFound = errors.New("shared session not found")

// ErrPasswordRequired is returned when a protected share is fetched
// without a password.
var ErrPasswordRequired = errors.New("password required")

// ErrWrongPassword is returned when a protected share's password check
// fails.
var ErrWrongPassword = errors.New("wrong password")

const tokenBytes = 16 // 32 hex chars

// NewToken generates a random 32-hex-character share token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// SharedSession is a session snapshot addressed by Token.
type SharedSession struct {
	Token       string
	SessionID   string
	Name        string
	WorkingDir  string
	Messages    []*models.Message
	Salt        string // hex, empty when unprotected
	PasswordSum string // hex sha256(salt || password), empty when unprotected
	CreatedAt   time.Time
}

// Protected reports whether the share requires a password.
func (s *SharedSession) Protected() bool {
	return s.PasswordSum != ""
}

// Store persists SharedSession records.
type Store interface {
	Put(ctx context.Context, share *SharedSession) error
	Get(ctx context.Context, token string) (*SharedSession, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu     sync.RWMutex
	shares map[string]*SharedSession
}

// NewMemoryStore creates an empty in-memory share store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shares: make(map[string]*SharedSession)}
}

func (m *MemoryStore) Put(ctx context.Context, share *SharedSession) error {
	if share == nil || share.Token == "" {
		return errors.New("share token is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *share
	clone.Messages = append([]*models.Message(nil), share.Messages...)
	m.shares[clone.Token] = &clone
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, token string) (*SharedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	share, ok := m.shares[token]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *share
	clone.Messages = append([]*models.Message(nil), share.Messages...)
	return &clone, nil
}

// hashPassword computes hex(sha256(salt || password)) for a freshly
// generated salt.
func hashPassword(password string) (salt, sum string, err error) {
	saltBuf := make([]byte, 16)
	if _, err := rand.Read(saltBuf); err != nil {
		return "", "", err
	}
	salt = hex.EncodeToString(saltBuf)
	h := sha256.Sum256([]byte(salt + password))
	return salt, hex.EncodeToString(h[:]), nil
}

func verifyPassword(salt, wantSum, password string) bool {
	h := sha256.Sum256([]byte(salt + password))
	got := hex.EncodeToString(h[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantSum)) == 1
}

// Manager creates and resolves shared-session links against a Store.
type Manager struct {
	store Store
}

// NewManager builds a Manager over store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// CreateShare snapshots session/messages under a new token, optionally
// gating retrieval behind password.
func (m *Manager) CreateShare(ctx context.Context, session *models.Session, messages []*models.Message, password string) (*SharedSession, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	share := &SharedSession{
		Token:      token,
		SessionID:  session.ID,
		Name:       session.Title,
		WorkingDir: session.WorkspacePath,
		Messages:   messages,
		CreatedAt:  time.Now(),
	}
	if strings.TrimSpace(password) != "" {
		salt, sum, err := hashPassword(password)
		if err != nil {
			return nil, err
		}
		share.Salt = salt
		share.PasswordSum = sum
	}
	if err := m.store.Put(ctx, share); err != nil {
		return nil, err
	}
	return share, nil
}

// GetSharedSession resolves token to its snapshot, verifying password in
// constant time when the share is protected.
func (m *Manager) GetSharedSession(ctx context.Context, token, password string) (*SharedSession, error) {
	share, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if share.Protected() {
		if strings.TrimSpace(password) == "" {
			return nil, ErrPasswordRequired
		}
		if !verifyPassword(share.Salt, share.PasswordSum, password) {
			return nil, ErrWrongPassword
		}
	}
	return share, nil
}
