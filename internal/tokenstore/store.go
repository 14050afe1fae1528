// Package tokenstore persists OAuth2 tokens encrypted at rest. Entries
// are keyed by (user, service); each entry is the token's JSON sealed
// with AES-256-GCM. The additional authenticated data binds the entry
// to the OS identity the store was opened under and to the owning
// user's name, so a store file copied to another account fails
// decryption with an IntegrityError even under the same key, as does
// an entry re-homed to a different user.
//
// The store has an explicit Load/Save contract. Mutations change only
// the in-memory map; callers persist with Save, which writes to a
// temporary file and renames it into place.
package tokenstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"grantor/pkg/logging"
	"grantor/pkg/oauth"
)

const fileVersion = 1

// KeySource supplies the cipher key. Key takes precedence when both are
// set; otherwise the key is derived from Passphrase and the salt stored
// in the file (a fresh salt for a new store).
type KeySource struct {
	Key        []byte
	Passphrase string
}

// fileFormat is the on-disk shape. Entry values are
// base64(nonce || ciphertext) of the token JSON.
type fileFormat struct {
	Version int                          `json:"version"`
	Salt    string                       `json:"salt,omitempty"`
	Users   map[string]map[string]string `json:"users"`
}

// Store is a guarded in-memory token map backed by an encrypted file.
type Store struct {
	mu       sync.RWMutex
	path     string
	cipher   Cipher
	identity []byte
	salt     []byte
	entries  map[string]map[string][]byte
}

// Open loads the store at path, creating an empty one in memory if the
// file does not exist yet. The file itself is not created until Save.
// identity is the current OS user identity; it becomes part of every
// entry's authenticated data.
func Open(path string, source KeySource, identity []byte) (*Store, error) {
	s := &Store{
		path:     path,
		identity: identity,
		entries:  make(map[string]map[string][]byte),
	}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := s.initCipher(source, nil); err != nil {
			return nil, err
		}
		logging.Debug("TokenStore", "no store at %s, starting empty", path)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read token store: %w", err)
	}

	var file fileFormat
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("malformed token store file %s: %w", path, err)
	}
	if file.Version != fileVersion {
		return nil, fmt.Errorf("unsupported token store version %d in %s", file.Version, path)
	}

	var salt []byte
	if file.Salt != "" {
		salt, err = base64.StdEncoding.DecodeString(file.Salt)
		if err != nil {
			return nil, fmt.Errorf("malformed salt in token store file %s: %w", path, err)
		}
	}
	if err := s.initCipher(source, salt); err != nil {
		return nil, err
	}

	for user, services := range file.Users {
		s.entries[user] = make(map[string][]byte, len(services))
		for service, encoded := range services {
			ciphertext, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("malformed entry for %s/%s: %w", user, service, err)
			}
			s.entries[user][service] = ciphertext
		}
	}

	logging.Debug("TokenStore", "loaded %d users from %s", len(s.entries), path)
	return s, nil
}

func (s *Store) initCipher(source KeySource, salt []byte) error {
	if len(source.Key) > 0 {
		cipher, err := NewCipher(source.Key)
		if err != nil {
			return err
		}
		s.cipher = cipher
		return nil
	}

	if source.Passphrase == "" {
		return fmt.Errorf("no key material supplied: %w", oauth.ErrInvalidArgument)
	}

	if salt == nil {
		fresh, err := NewSalt()
		if err != nil {
			return err
		}
		salt = fresh
	}

	key, err := DeriveKey(source.Passphrase, salt)
	if err != nil {
		return err
	}
	cipher, err := NewCipher(key)
	if err != nil {
		return err
	}
	s.cipher = cipher
	s.salt = salt
	return nil
}

// entryAAD builds the authenticated data for an entry: the OS identity
// the store was opened under, then a zero byte, then the entry's owner.
func (s *Store) entryAAD(user string) []byte {
	aad := make([]byte, 0, len(s.identity)+1+len(user))
	aad = append(aad, s.identity...)
	aad = append(aad, 0)
	aad = append(aad, user...)
	return aad
}

// Get returns the stored token for (user, service). An absent entry is
// (nil, nil), not an error. A decryption failure is an IntegrityError.
func (s *Store) Get(user, service string) (*oauth.Token, error) {
	s.mu.RLock()
	ciphertext, ok := s.entries[user][service]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	plaintext, err := s.cipher.Decrypt(ciphertext, s.entryAAD(user))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token for %s/%s: %w", user, service, err)
	}

	var token oauth.Token
	if err := json.Unmarshal(plaintext, &token); err != nil {
		return nil, fmt.Errorf("malformed stored token for %s/%s: %w", user, service, err)
	}
	return &token, nil
}

// Set stores the token for (user, service), replacing any prior entry.
// The change is in memory only until Save.
func (s *Store) Set(user, service string, token *oauth.Token) error {
	if user == "" || service == "" {
		return fmt.Errorf("empty user or service: %w", oauth.ErrInvalidArgument)
	}
	if token == nil {
		return fmt.Errorf("nil token: %w", oauth.ErrInvalidArgument)
	}

	plaintext, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	ciphertext, err := s.cipher.Encrypt(plaintext, s.entryAAD(user))
	if err != nil {
		return fmt.Errorf("failed to encrypt token for %s/%s: %w", user, service, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[user] == nil {
		s.entries[user] = make(map[string][]byte)
	}
	s.entries[user][service] = ciphertext

	logging.Debug("TokenStore", "stored token for user %s service %s", user, service)
	return nil
}

// Delete removes the entry for (user, service) and reports whether it
// existed.
func (s *Store) Delete(user, service string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	services, ok := s.entries[user]
	if !ok {
		return false
	}
	if _, ok := services[service]; !ok {
		return false
	}
	delete(services, service)
	if len(services) == 0 {
		delete(s.entries, user)
	}
	return true
}

// GetApplications returns the sorted service names with stored tokens
// for the given user.
func (s *Store) GetApplications(user string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]string, 0, len(s.entries[user]))
	for service := range s.entries[user] {
		services = append(services, service)
	}
	sort.Strings(services)
	return services
}

// Users returns the sorted user names present in the store.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.entries))
	for user := range s.entries {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

// Save writes the store to disk, creating parent directories as needed.
// The file is written to a temporary sibling and renamed into place so a
// crash never leaves a torn store.
func (s *Store) Save() error {
	s.mu.RLock()
	file := fileFormat{
		Version: fileVersion,
		Users:   make(map[string]map[string]string, len(s.entries)),
	}
	if s.salt != nil {
		file.Salt = base64.StdEncoding.EncodeToString(s.salt)
	}
	for user, services := range s.entries {
		file.Users[user] = make(map[string]string, len(services))
		for service, ciphertext := range services {
			file.Users[user][service] = base64.StdEncoding.EncodeToString(ciphertext)
		}
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary store file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict store permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token store: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace token store: %w", err)
	}

	logging.Debug("TokenStore", "saved store to %s", s.path)
	return nil
}
