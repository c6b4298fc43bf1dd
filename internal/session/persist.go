package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Persister saves the session somewhere that survives a restart. Load returns
// false when nothing has been persisted.
type Persister interface {
	Load(ctx context.Context) (Session, bool, error)
	Save(ctx context.Context, s Session) error
}

// Rehydrate populates the store from the persister before first use. The
// store is settled afterwards whether or not a session was found, so requests
// issued while logged out do not wait for a credential that is never coming.
func (s *Store) Rehydrate(ctx context.Context, p Persister) error {
	defer s.markSettled()

	sess, found, err := p.Load(ctx)
	if err != nil {
		return fmt.Errorf("session rehydration failed: %w", err)
	}

	if !found || !sess.Authenticated() {
		log.Debug().Msg("session: nothing to rehydrate")
		return nil
	}

	if err := s.Set(*sess.User, sess.Token); err != nil {
		return fmt.Errorf("session rehydration failed: %w", err)
	}

	current := s.Current()
	if current.Expired(timeNow()) {
		log.Info().Time("expiry", current.ExpiresAt).Msg("session: rehydrated credential has expired, refresh expected on first request")
	}

	return nil
}

// Persist subscribes p to the store so every change is saved. Failures are
// logged: losing persistence must not break the in-process session.
func (s *Store) Persist(ctx context.Context, p Persister) func() {
	return s.Subscribe(func(sess Session) {
		if err := p.Save(ctx, sess); err != nil {
			log.Warn().Err(err).Msg("session: persistence failed")
		}
	})
}

// FilePersister stores the session as YAML in a single file readable only by
// the current user.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

type persistedSession struct {
	User  *User  `yaml:"user,omitempty"`
	Token string `yaml:"token,omitempty"`
}

func (f *FilePersister) Load(ctx context.Context) (Session, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("could not read session file: %w", err)
	}

	var ps persistedSession
	if err := yaml.Unmarshal(data, &ps); err != nil {
		return Session{}, false, fmt.Errorf("could not parse session file %s: %w", f.path, err)
	}

	if ps.User == nil || ps.Token == "" {
		return Session{}, false, nil
	}

	return Session{
		User:      ps.User,
		Token:     ps.Token,
		ExpiresAt: ParseExpiry(ps.Token),
	}, true, nil
}

// Save writes the session, or removes the file when the session is empty.
func (f *FilePersister) Save(ctx context.Context, s Session) error {
	if !s.Authenticated() {
		err := os.Remove(f.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("could not remove session file: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(persistedSession{User: s.User, Token: s.Token})
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("could not create session directory: %w", err)
	}

	// write then rename: readers never observe a partial file
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("could not write session file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("could not write session file: %w", err)
	}

	return nil
}
