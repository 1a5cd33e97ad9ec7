package pairing

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"github.com/kucendro/g1/internal/glass"
)

// Record is the persisted pairing identity for both sides. It is written
// only after both sides validate in the same pairing run. When
// revalidation fails the record is flagged, never deleted.
type Record struct {
	LeftAddress  string    `yaml:"left_address"`
	RightAddress string    `yaml:"right_address"`
	LeftName     string    `yaml:"left_name"`
	RightName    string    `yaml:"right_name"`
	Token        string    `yaml:"token"`
	PairedAt     time.Time `yaml:"paired_at"`
	Validated    bool      `yaml:"validated"`
}

// Store owns the pairing record file and the per-install signing secret
// kept next to it.
type Store struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

// NewStore creates a store over the given record path.
func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{path: path, log: log.With().Str("component", "pairing").Logger()}
}

// Load returns the stored record, ErrNotPaired when none exists. A
// record whose trust token no longer verifies is returned with
// Validated=false so the caller can demand re-pairing.
func (s *Store) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNotPaired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read record: %v", ErrPersistence, err)
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: parse record: %v", ErrPersistence, err)
	}
	if rec.Validated && !s.verifyToken(&rec) {
		s.log.Warn().Msg("trust token failed verification, record invalidated")
		rec.Validated = false
	}
	return &rec, nil
}

// ValidateAndStore records both identities after a successful dual
// handshake. It fails with ErrIdentityMismatch if either side deviates
// from a previously validated record, and is idempotent for identical
// identities: revalidation never rewrites the file.
func (s *Store) ValidateAndStore(left, right glass.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil && err != ErrNotPaired {
		return err
	}
	if existing != nil && existing.Validated {
		if existing.LeftAddress != left.Address || existing.RightAddress != right.Address {
			return ErrIdentityMismatch
		}
		// Same identities: the record stands, at most one write per
		// pairing run.
		return nil
	}

	secret, err := s.ensureSecret()
	if err != nil {
		return err
	}
	token, err := signToken(secret, left.Address, right.Address)
	if err != nil {
		return fmt.Errorf("%w: sign token: %v", ErrPersistence, err)
	}

	rec := Record{
		LeftAddress:  left.Address,
		RightAddress: right.Address,
		LeftName:     left.Name,
		RightName:    right.Name,
		Token:        token,
		PairedAt:     time.Now().UTC(),
		Validated:    true,
	}
	if err := s.write(&rec); err != nil {
		return err
	}
	s.log.Info().
		Str("left", left.Address).
		Str("right", right.Address).
		Msg("pairing record stored")
	return nil
}

// Invalidate flags the record as requiring re-pairing. The record itself
// is kept for diagnostics.
func (s *Store) Invalidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	if !rec.Validated {
		return nil
	}
	rec.Validated = false
	return s.write(rec)
}

func (s *Store) write(rec *Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", ErrPersistence, err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("%w: write record: %v", ErrPersistence, err)
	}
	return nil
}

// ensureSecret loads or creates the per-install HMAC secret.
func (s *Store) ensureSecret() ([]byte, error) {
	keyPath := s.path + ".key"
	data, err := os.ReadFile(keyPath)
	if err == nil {
		secret, decErr := hex.DecodeString(string(data))
		if decErr == nil && len(secret) > 0 {
			return secret, nil
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("%w: generate secret: %v", ErrPersistence, err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(secret)), 0o600); err != nil {
		return nil, fmt.Errorf("%w: write secret: %v", ErrPersistence, err)
	}
	return secret, nil
}

func (s *Store) verifyToken(rec *Record) bool {
	secret, err := s.ensureSecret()
	if err != nil {
		return false
	}
	parsed, err := jwt.Parse(rec.Token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	left, _ := claims["left"].(string)
	right, _ := claims["right"].(string)
	return left == rec.LeftAddress && right == rec.RightAddress
}

func signToken(secret []byte, left, right string) (string, error) {
	claims := jwt.MapClaims{
		"left":  left,
		"right": right,
		"iat":   time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
