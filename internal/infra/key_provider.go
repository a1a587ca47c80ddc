package infra

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

const (
	historyKeySuffix = ".key"
	keySize          = 32 // 256-bit SQLCipher key
)

// HistoryKey implements domain.KeyProvider for one history database.
// The key sits beside the database as <db>.key, hex encoded, mode 0600.
// A database and its key are only ever replaced together.
type HistoryKey struct {
	dbPath  string
	keyPath string
}

// NewHistoryKey returns the key belonging to the database at dbPath.
func NewHistoryKey(dbPath string) *HistoryKey {
	return &HistoryKey{
		dbPath:  dbPath,
		keyPath: dbPath + historyKeySuffix,
	}
}

// GetKey reads and decodes the key.
func (k *HistoryKey) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(k.keyPath)
	if err != nil {
		return nil, fmt.Errorf("read history key: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("decode history key %s: %w", k.keyPath, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("history key %s has %d bytes, want %d", k.keyPath, len(key), keySize)
	}
	return key, nil
}

// StoreKey writes the key atomically, creating the data directory.
func (k *HistoryKey) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("history key has %d bytes, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(k.keyPath), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := writeFileAtomic(k.keyPath, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		return fmt.Errorf("write history key: %w", err)
	}
	return nil
}

// KeyExists reports whether the key file is present.
func (k *HistoryKey) KeyExists() bool {
	_, err := os.Stat(k.keyPath)
	return err == nil
}

// Ensure returns the stored key, creating one on first use. A database whose
// key is gone can never be opened again, so it is set aside before a new key
// is made.
func (k *HistoryKey) Ensure() ([]byte, error) {
	if k.KeyExists() {
		return k.GetKey()
	}
	if _, err := os.Stat(k.dbPath); err == nil {
		return k.Rotate()
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := k.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Rotate renames the database and its key with a timestamp suffix and stores
// a fresh key. The old pair stays on disk and still opens together.
func (k *HistoryKey) Rotate() ([]byte, error) {
	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	for _, path := range []string{k.dbPath, k.keyPath} {
		if err := os.Rename(path, path+"."+stamp); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("set aside %s: %w", filepath.Base(path), err)
		}
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := k.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// Ensure HistoryKey implements domain.KeyProvider.
var _ domain.KeyProvider = (*HistoryKey)(nil)
