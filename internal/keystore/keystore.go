// Package keystore implements the encrypted credential store for the
// gateway. Each credential is encrypted with AES-256-GCM under a master key
// derived from the operator passphrase via Argon2id; the access key id is
// bound into the ciphertext as AAD so entries cannot be swapped between
// keys.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
)

const (
	// DefaultFileName is the store file under the state directory.
	DefaultFileName = "stackgate.keys"

	// Argon2id parameters: 64MB memory, 3 passes, 4 lanes.
	argonMemory  = 64 * 1024
	argonTime    = 3
	argonThreads = 4
	argonKeyLen  = 32

	saltLen  = 32
	nonceLen = 12
)

// ErrNotFound is returned when no credential exists for an access key id.
var ErrNotFound = errors.New("access key not found")

// Credential is one API signing credential and the caller it maps to.
type Credential struct {
	AccessKeyID     string    `json:"access_key_id"`
	SecretAccessKey string    `json:"secret_access_key"`
	Tenant          string    `json:"tenant"`
	Principal       string    `json:"principal"`
	CreatedAt       time.Time `json:"created_at"`
}

type entry struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

type storeFile struct {
	Salt    []byte            `json:"salt"`
	Entries map[string]*entry `json:"entries"`
}

// Store holds the unlocked credential set. The master key lives in memory
// only and is zeroed on Close.
type Store struct {
	mu        sync.RWMutex
	masterKey []byte
	salt      []byte
	entries   map[string]*entry
	path      string
	dirty     bool
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Create initializes a new store with a fresh salt. An empty path keeps the
// store memory-only, which is what tests and throwaway deployments use.
func Create(path, passphrase string) (*Store, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	s := &Store{
		masterKey: deriveKey(passphrase, salt),
		salt:      salt,
		entries:   make(map[string]*entry),
		path:      path,
		dirty:     true,
	}
	if path != "" {
		if err := s.flush(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Open loads an existing store and unlocks it with the passphrase.
func Open(path, passphrase string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keystore: %w", err)
	}
	var sf storeFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing keystore: %w", err)
	}
	s := &Store{
		masterKey: deriveKey(passphrase, sf.Salt),
		salt:      sf.Salt,
		entries:   sf.Entries,
		path:      path,
	}
	if s.entries == nil {
		s.entries = make(map[string]*entry)
	}

	// Decrypting any one entry catches a wrong passphrase early.
	for id := range s.entries {
		if _, err := s.Lookup(id); err != nil {
			for i := range s.masterKey {
				s.masterKey[i] = 0
			}
			return nil, fmt.Errorf("incorrect passphrase or corrupted keystore")
		}
		break
	}
	return s, nil
}

// OpenOrCreate opens the store at path, creating it when missing.
func OpenOrCreate(path, passphrase string) (*Store, error) {
	if path == "" {
		return Create("", passphrase)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Create(path, passphrase)
	}
	return Open(path, passphrase)
}

// Put encrypts and stores a credential keyed by its access key id. A zero
// CreatedAt is stamped with the current time.
func (s *Store) Put(cred Credential) error {
	if cred.AccessKeyID == "" {
		return fmt.Errorf("credential has no access key id")
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gcm, err := s.cipher()
	if err != nil {
		return err
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	s.entries[cred.AccessKeyID] = &entry{
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, []byte(cred.AccessKeyID)),
	}
	s.dirty = true
	return nil
}

// Lookup decrypts the credential for an access key id. Unknown ids return
// ErrNotFound so callers can treat them as an authentication failure rather
// than a server fault.
func (s *Store) Lookup(accessKeyID string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[accessKeyID]
	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrNotFound, accessKeyID)
	}
	gcm, err := s.cipher()
	if err != nil {
		return Credential{}, err
	}
	plaintext, err := gcm.Open(nil, e.Nonce, e.Ciphertext, []byte(accessKeyID))
	if err != nil {
		return Credential{}, fmt.Errorf("decrypting credential: %w", err)
	}
	var cred Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return Credential{}, fmt.Errorf("decoding credential: %w", err)
	}
	return cred, nil
}

// Remove deletes a credential.
func (s *Store) Remove(accessKeyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[accessKeyID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, accessKeyID)
	}
	delete(s.entries, accessKeyID)
	s.dirty = true
	return nil
}

// List returns the stored access key ids, sorted.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save persists pending changes. No-op for memory-only stores.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

// Close flushes pending writes and zeroes the master key.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.flush()
	for i := range s.masterKey {
		s.masterKey[i] = 0
	}
	return err
}

func (s *Store) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

func (s *Store) flush() error {
	if s.path == "" || !s.dirty {
		return nil
	}
	data, err := json.Marshal(storeFile{Salt: s.salt, Entries: s.entries})
	if err != nil {
		return fmt.Errorf("encoding keystore: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing keystore: %w", err)
	}
	s.dirty = false
	return nil
}
