package pairing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kucendro/g1/internal/glass"
	"github.com/kucendro/g1/internal/logging"
)

func testIdentities() (glass.Identity, glass.Identity) {
	left := glass.Identity{Side: glass.Left, Address: "AA:BB:CC:DD:EE:01", Name: "G1_77_L_8F2A"}
	right := glass.Identity{Side: glass.Right, Address: "AA:BB:CC:DD:EE:02", Name: "G1_77_R_8F2A"}
	return left, right
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "pairing.yaml"), logging.Nop())
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load(); !errors.Is(err, ErrNotPaired) {
		t.Errorf("Load() error = %v, want ErrNotPaired", err)
	}
}

func TestValidateAndStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	left, right := testIdentities()

	if err := s.ValidateAndStore(left, right); err != nil {
		t.Fatalf("ValidateAndStore() error = %v", err)
	}

	rec, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.LeftAddress != left.Address {
		t.Errorf("LeftAddress = %q, want %q", rec.LeftAddress, left.Address)
	}
	if rec.RightAddress != right.Address {
		t.Errorf("RightAddress = %q, want %q", rec.RightAddress, right.Address)
	}
	if !rec.Validated {
		t.Error("Validated = false, want true")
	}
	if rec.Token == "" {
		t.Error("Token is empty")
	}
	if rec.PairedAt.IsZero() {
		t.Error("PairedAt is zero")
	}
}

func TestValidateAndStoreIdempotent(t *testing.T) {
	s := newTestStore(t)
	left, right := testIdentities()

	if err := s.ValidateAndStore(left, right); err != nil {
		t.Fatalf("first ValidateAndStore() error = %v", err)
	}
	first, err := os.Stat(s.path)
	if err != nil {
		t.Fatalf("stat record: %v", err)
	}

	if err := s.ValidateAndStore(left, right); err != nil {
		t.Fatalf("second ValidateAndStore() error = %v", err)
	}
	second, err := os.Stat(s.path)
	if err != nil {
		t.Fatalf("stat record: %v", err)
	}
	if !second.ModTime().Equal(first.ModTime()) || second.Size() != first.Size() {
		t.Error("revalidation rewrote the record file")
	}
}

func TestValidateAndStoreMismatch(t *testing.T) {
	s := newTestStore(t)
	left, right := testIdentities()
	if err := s.ValidateAndStore(left, right); err != nil {
		t.Fatalf("ValidateAndStore() error = %v", err)
	}

	other := glass.Identity{Side: glass.Left, Address: "11:22:33:44:55:66", Name: "G1_42_L_0000"}
	if err := s.ValidateAndStore(other, right); !errors.Is(err, ErrIdentityMismatch) {
		t.Errorf("ValidateAndStore() error = %v, want ErrIdentityMismatch", err)
	}
}

func TestInvalidateKeepsRecord(t *testing.T) {
	s := newTestStore(t)
	left, right := testIdentities()
	if err := s.ValidateAndStore(left, right); err != nil {
		t.Fatalf("ValidateAndStore() error = %v", err)
	}

	if err := s.Invalidate(); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	rec, err := s.Load()
	if err != nil {
		t.Fatalf("Load() after Invalidate error = %v", err)
	}
	if rec.Validated {
		t.Error("Validated = true after Invalidate, want false")
	}
	if rec.LeftAddress != left.Address {
		t.Errorf("LeftAddress = %q, want %q (record must survive)", rec.LeftAddress, left.Address)
	}

	// Invalidated records accept new identities again.
	other := glass.Identity{Side: glass.Left, Address: "11:22:33:44:55:66", Name: "G1_42_L_0000"}
	if err := s.ValidateAndStore(other, right); err != nil {
		t.Errorf("ValidateAndStore() after Invalidate error = %v", err)
	}
}

func TestTamperedTokenInvalidates(t *testing.T) {
	s := newTestStore(t)
	left, right := testIdentities()
	if err := s.ValidateAndStore(left, right); err != nil {
		t.Fatalf("ValidateAndStore() error = %v", err)
	}

	// Replace the signing secret: the stored token no longer verifies.
	if err := os.WriteFile(s.path+".key", []byte("00112233445566778899aabbccddeeff"), 0o600); err != nil {
		t.Fatalf("overwrite secret: %v", err)
	}

	rec, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.Validated {
		t.Error("Validated = true with tampered secret, want false")
	}
}

func TestPersistenceErrorWrapped(t *testing.T) {
	dir := t.TempDir()
	// Point the record path at a directory so writes fail.
	s := NewStore(dir, logging.Nop())
	left, right := testIdentities()
	if err := s.ValidateAndStore(left, right); !errors.Is(err, ErrPersistence) {
		t.Errorf("ValidateAndStore() error = %v, want ErrPersistence", err)
	}
}
