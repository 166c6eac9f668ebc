package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/fsutil"
)

const (
	vaultVersion = 1
	saltLen      = 16
	keyLen       = 32 // AES-256

	verifyEntry = "__verify__"
	verifyText  = "sqlfront-vault-ok"
)

// KDFParams are the Argon2id cost parameters recorded in the vault file.
type KDFParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory_kib"`
	Threads uint8  `json:"threads"`
}

// DefaultKDF follows the OWASP Argon2id recommendation.
var DefaultKDF = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

type sealed struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type vaultFile struct {
	Version int               `json:"version"`
	Salt    string            `json:"salt"`
	KDF     KDFParams         `json:"kdf"`
	Entries map[string]sealed `json:"entries"`
}

// Vault stores keys in a password-protected file. The password is never
// kept; only the derived key stays in memory while unlocked.
type Vault struct {
	path string
	kdf  KDFParams

	mu   sync.RWMutex
	data *vaultFile
	key  []byte
}

// NewVault returns a locked vault for the file at path.
func NewVault(path string) *Vault {
	return &Vault{path: path, kdf: DefaultKDF}
}

// OpenVault unlocks the vault at path, creating it first if it does not exist.
func OpenVault(path, password string) (*Vault, error) {
	v := NewVault(path)
	if !v.Exists() {
		if err := v.Create(password); err != nil {
			return nil, err
		}
		return v, nil
	}
	if err := v.Unlock(password); err != nil {
		return nil, err
	}
	return v, nil
}

// Exists reports whether the vault file is on disk.
func (v *Vault) Exists() bool {
	_, err := os.Stat(v.path)
	return err == nil
}

// Path returns the vault file path.
func (v *Vault) Path() string {
	return v.path
}

func (v *Vault) Name() string { return string(BackendVault) }

// IsUnlocked reports whether Get and Set can be used.
func (v *Vault) IsUnlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.key != nil
}

// Create writes a new, empty vault protected by password.
func (v *Vault) Create(password string) error {
	if password == "" {
		return errors.New("vault password required")
	}
	if v.Exists() {
		return fmt.Errorf("vault already exists at %s", v.path)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(password, salt, v.kdf)
	verify, err := seal(key, []byte(verifyText))
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.key = key
	v.data = &vaultFile{
		Version: vaultVersion,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		KDF:     v.kdf,
		Entries: map[string]sealed{verifyEntry: verify},
	}
	return v.saveLocked()
}

// Unlock reads the vault and checks password against the verification entry.
func (v *Vault) Unlock(password string) error {
	raw, err := os.ReadFile(v.path)
	if err != nil {
		return fmt.Errorf("read vault: %w", err)
	}

	var data vaultFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse vault: %w", err)
	}
	if data.Version != vaultVersion {
		return fmt.Errorf("unsupported vault version %d", data.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(data.Salt)
	if err != nil {
		return fmt.Errorf("decode salt: %w", err)
	}

	key := deriveKey(password, salt, data.KDF)
	verify, ok := data.Entries[verifyEntry]
	if !ok {
		return errors.New("vault has no verification entry")
	}
	if _, err := open(key, verify); err != nil {
		return errors.New("wrong vault password")
	}
	if data.Entries == nil {
		data.Entries = make(map[string]sealed)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.key = key
	v.data = &data
	return nil
}

// Lock zeroes the derived key.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.key {
		v.key[i] = 0
	}
	v.key = nil
	v.data = nil
}

// Get returns the key stored for path.
func (v *Vault) Get(path string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.key == nil {
		return "", ErrLocked
	}

	entry, ok := v.data.Entries[path]
	if !ok || path == verifyEntry {
		return "", ErrNotFound
	}

	plaintext, err := open(v.key, entry)
	if err != nil {
		return "", fmt.Errorf("decrypt key for %s: %w", path, err)
	}
	return string(plaintext), nil
}

// Set stores key for path and rewrites the file.
func (v *Vault) Set(path, key string) error {
	if path == verifyEntry {
		return fmt.Errorf("reserved name %q", path)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.key == nil {
		return ErrLocked
	}

	entry, err := seal(v.key, []byte(key))
	if err != nil {
		return fmt.Errorf("encrypt key for %s: %w", path, err)
	}
	v.data.Entries[path] = entry
	return v.saveLocked()
}

// Delete removes the key for path. A missing entry is not an error.
func (v *Vault) Delete(path string) error {
	if path == verifyEntry {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.key == nil {
		return ErrLocked
	}
	if _, ok := v.data.Entries[path]; !ok {
		return nil
	}

	delete(v.data.Entries, path)
	return v.saveLocked()
}

// Paths lists the database paths that have a stored key.
func (v *Vault) Paths() ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.key == nil {
		return nil, ErrLocked
	}

	out := make([]string, 0, len(v.data.Entries))
	for p := range v.data.Entries {
		if p != verifyEntry {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func deriveKey(password string, salt []byte, p KDFParams) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, keyLen)
}

func seal(key, plaintext []byte) (sealed, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return sealed{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return sealed{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return sealed{}, err
	}

	return sealed{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	}, nil
}

func open(key []byte, s sealed) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce length")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("decryption failed")
	}
	return plaintext, nil
}

// saveLocked writes the vault to disk. Caller must hold v.mu.
func (v *Vault) saveLocked() error {
	data, err := json.MarshalIndent(v.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vault: %w", err)
	}
	return fsutil.WriteFileAtomic(v.path, data, 0o600)
}
