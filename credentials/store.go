// Package credentials keeps the account identity in a JSON file next to
// the rest of the client data.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	shadowclient "github.com/vatsimnerd/shadow-client"
)

// FileName is the credentials file inside the data directory.
const FileName = "creds.json"

var log = logrus.WithField("module", "credentials")

// Store is a file-backed shadowclient.CredentialStore. Reads and writes
// hold an advisory lock on a sibling .lock file so two clients sharing
// a data directory do not interleave.
type Store struct {
	path string
	lock *flock.Flock
}

var _ shadowclient.CredentialStore = (*Store)(nil)

// Open creates dir if needed and returns the store for dir/creds.json.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory '%s': %w", dir, err)
	}
	return New(filepath.Join(dir, FileName)), nil
}

func New(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns nil, nil if the file does not exist.
func (s *Store) Load() (*shadowclient.Credentials, error) {
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking '%s': %w", s.path, err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", s.path).Debug("no stored credentials")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading '%s': %w", s.path, err)
	}

	var creds shadowclient.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing '%s': %w", s.path, err)
	}
	return &creds, nil
}

// Save replaces the whole record. The file is written to a temporary
// name and renamed so a crash never leaves a truncated file behind.
func (s *Store) Save(creds shadowclient.Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking '%s': %w", s.path, err)
	}
	defer s.lock.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing '%s': %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming '%s': %w", tmp, err)
	}

	log.WithField("path", s.path).Debug("credentials saved")
	return nil
}
