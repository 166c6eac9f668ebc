package keystore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

// fastKDF keeps vault tests quick; the parameters are stored in the file.
func fastKDF(t *testing.T) {
	t.Helper()
	prev := DefaultKDF
	DefaultKDF = KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}
	t.Cleanup(func() { DefaultKDF = prev })
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	s := NewKeyringStore("")

	if _, err := s.Get("/data/a.db"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set("/data/a.db", "hunter2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get("/data/a.db")
	if err != nil || got != "hunter2" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if err := s.Delete("/data/a.db"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("/data/a.db"); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if _, err := s.Get("/data/a.db"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after Delete, got %v", err)
	}
	if !s.Available() {
		t.Error("mock keyring should be available")
	}
}

func TestVault_CreateUnlock(t *testing.T) {
	fastKDF(t)
	path := filepath.Join(t.TempDir(), "keys.vault")

	v, err := OpenVault(path, "master")
	if err != nil {
		t.Fatalf("OpenVault (create) failed: %v", err)
	}
	if err := v.Set("/db/one.db", "k1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := v.Set("/db/two.db", "k2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "k1") || strings.Contains(string(raw), "master") {
		t.Error("vault file contains plaintext secrets")
	}

	reopened, err := OpenVault(path, "master")
	if err != nil {
		t.Fatalf("OpenVault (unlock) failed: %v", err)
	}
	got, err := reopened.Get("/db/two.db")
	if err != nil || got != "k2" {
		t.Errorf("Get = %q, %v", got, err)
	}

	paths, err := reopened.Paths()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || paths[0] != "/db/one.db" {
		t.Errorf("Paths = %v", paths)
	}
}

func TestVault_WrongPassword(t *testing.T) {
	fastKDF(t)
	path := filepath.Join(t.TempDir(), "keys.vault")

	if _, err := OpenVault(path, "right"); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenVault(path, "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestVault_Locked(t *testing.T) {
	fastKDF(t)
	path := filepath.Join(t.TempDir(), "keys.vault")

	v, err := OpenVault(path, "pw")
	if err != nil {
		t.Fatal(err)
	}
	v.Lock()

	if v.IsUnlocked() {
		t.Error("vault should be locked")
	}
	if _, err := v.Get("/x"); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
	if err := v.Set("/x", "k"); !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}

func TestVault_DeleteAndReserved(t *testing.T) {
	fastKDF(t)
	v, err := OpenVault(filepath.Join(t.TempDir(), "keys.vault"), "pw")
	if err != nil {
		t.Fatal(err)
	}

	if err := v.Set("/a", "k"); err != nil {
		t.Fatal(err)
	}
	if err := v.Delete("/a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := v.Get("/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := v.Set(verifyEntry, "x"); err == nil {
		t.Error("verification entry must not be overwritten")
	}
	if _, err := v.Get(verifyEntry); !errors.Is(err, ErrNotFound) {
		t.Errorf("verification entry must not be readable, got %v", err)
	}
}

func TestNew(t *testing.T) {
	fastKDF(t)
	keyring.MockInit()
	dir := t.TempDir()

	tests := []struct {
		name     string
		cfg      Config
		password string
		want     string
		wantErr  bool
	}{
		{"default keyring", Config{}, "", "keyring", false},
		{"none", Config{Backend: BackendNone}, "", "none", false},
		{"vault", Config{Backend: BackendVault, VaultPath: filepath.Join(dir, "v")}, "pw", "vault", false},
		{"vault without password", Config{Backend: BackendVault, VaultPath: filepath.Join(dir, "v2")}, "", "", true},
		{"unknown", Config{Backend: "tpm"}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s.Name() != tt.want {
				t.Errorf("Name = %s, want %s", s.Name(), tt.want)
			}
		})
	}
}

func TestNopStore(t *testing.T) {
	var s Store = NopStore{}
	if _, err := s.Get("/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set("/a", "k"); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}
