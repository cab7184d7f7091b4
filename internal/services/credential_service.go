package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/herdsync/engine/internal/observability"
)

// CredentialService stores the bearer token for the remote API. The token
// is opaque to the engine; the UI shell obtains it from the sign-in flow
// and deposits it here. It persists to disk so a daemon restart does not
// sign the user out.
type CredentialService struct {
	path string
	log  *observability.Logger

	mu    sync.RWMutex
	token string
}

// NewCredentialService loads any persisted token from path.
func NewCredentialService(path string) (*CredentialService, error) {
	s := &CredentialService{
		path: path,
		log:  observability.GetLogger().WithField("component", "credentials"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	s.token = strings.TrimSpace(string(data))
	return s, nil
}

// Token returns the current bearer token, empty when signed out.
func (s *CredentialService) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Set stores a new token in memory and on disk.
func (s *CredentialService) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, []byte(token), 0600); err != nil {
		return err
	}
	s.token = token
	s.log.Info("credentials updated")
	return nil
}

// Clear wipes the token. Called on sign-out and by the gateway after a 401.
func (s *CredentialService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.log.Info("credentials cleared")
	return nil
}

// Authenticated reports whether a token is present.
func (s *CredentialService) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}
