package profile

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/mrezende/courier/internal/identity"
)

// ErrNoSession is returned when no session is active for the profile.
// Absence is a fatal precondition for any send or fetch operation.
var ErrNoSession = errors.New("no active session")

// Session holds the credentials of the signed-in user. It is passed
// explicitly into stores and the orchestrator; there is no ambient
// current-user state.
type Session struct {
	Email       string `toml:"email"`
	DisplayName string `toml:"display_name"`
}

// Identity returns the canonical store key of the signed-in user.
func (s *Session) Identity() identity.Identity {
	return identity.Canonicalize(s.Email)
}

// LoadSession reads the credentials file at path. ErrNoSession when the file
// does not exist or names no user.
func LoadSession(path string) (*Session, error) {
	var s Session
	if _, err := toml.DecodeFile(path, &s); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	if s.Email == "" {
		return nil, ErrNoSession
	}
	return &s, nil
}

// SaveSession writes the credentials file, creating parent dirs as needed.
func SaveSession(path string, s *Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(s)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ClearSession removes the credentials file. Clearing an absent session is
// not an error.
func ClearSession(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
