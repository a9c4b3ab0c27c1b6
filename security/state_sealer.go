package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-psd2-sca/core"
)

// sealedPrefix marks a sealed blob: psd2-sca.sealed.v1.<kid>.<payload>
// where payload is base64url(nonce || ciphertext).
const sealedPrefix = "psd2-sca.sealed.v1."

var (
	ErrNoSealingKey   = errors.New("security: no sealing key is active")
	ErrUnknownKey     = errors.New("security: blob was sealed with an unknown key")
	ErrMalformedBlob  = errors.New("security: sealed blob is malformed")
	ErrKeyIDCollision = errors.New("security: key id already registered")
)

type SealingKey struct {
	ID       string
	Material []byte
	Window   KeyRotationWindow
}

type Option func(*StateSealer)

func WithClock(now func() time.Time) Option {
	return func(s *StateSealer) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRandom(reader io.Reader) Option {
	return func(s *StateSealer) {
		if reader != nil {
			s.random = reader
		}
	}
}

// StateSealer seals authorisation blobs with AES-GCM. Every registered key
// can open blobs; only keys whose window allows the current time can seal,
// and the most recently registered one wins.
type StateSealer struct {
	mu     sync.RWMutex
	keys   map[string]cipher.AEAD
	order  []SealingKey
	now    func() time.Time
	random io.Reader
}

func NewStateSealer(keys []SealingKey, opts ...Option) (*StateSealer, error) {
	sealer := &StateSealer{
		keys:   map[string]cipher.AEAD{},
		now:    func() time.Time { return time.Now().UTC() },
		random: rand.Reader,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(sealer)
	}
	for _, key := range keys {
		if err := sealer.AddKey(key); err != nil {
			return nil, err
		}
	}
	if len(sealer.order) == 0 {
		return nil, fmt.Errorf("security: at least one sealing key is required")
	}
	return sealer, nil
}

// NewStateSealerFromString builds a single key sealer. Key material that is
// not 16, 24 or 32 bytes long is stretched with sha256.
func NewStateSealerFromString(keyID string, material string, opts ...Option) (*StateSealer, error) {
	return NewStateSealer([]SealingKey{{ID: keyID, Material: []byte(material)}}, opts...)
}

// AddKey registers a key for sealing and opening. Rotating in a new key keeps
// older blobs readable.
func (s *StateSealer) AddKey(key SealingKey) error {
	if s == nil {
		return fmt.Errorf("security: state sealer is nil")
	}
	id := strings.TrimSpace(key.ID)
	if id == "" {
		return fmt.Errorf("security: key id is required")
	}
	if strings.ContainsAny(id, ". ") {
		return fmt.Errorf("security: key id %q must not contain dots or spaces", id)
	}
	material := bytes.TrimSpace(key.Material)
	if len(material) == 0 {
		return fmt.Errorf("security: key material is required for %q", id)
	}
	aead, err := newAEAD(normalizeKey(material))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[id]; exists {
		return fmt.Errorf("%w: %s", ErrKeyIDCollision, id)
	}
	s.keys[id] = aead
	s.order = append(s.order, SealingKey{ID: id, Window: key.Window})
	return nil
}

// ActiveKeyID returns the key that would seal a blob right now.
func (s *StateSealer) ActiveKeyID() string {
	if s == nil {
		return ""
	}
	id, _, err := s.activeKey()
	if err != nil {
		return ""
	}
	return id
}

func (s *StateSealer) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: state sealer is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	id, aead, err := s.activeKey()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, []byte(id))

	out := make([]byte, 0, len(sealedPrefix)+len(id)+1+base64.RawURLEncoding.EncodedLen(len(sealed)))
	out = append(out, sealedPrefix...)
	out = append(out, id...)
	out = append(out, '.')
	out = base64.RawURLEncoding.AppendEncode(out, sealed)
	return out, nil
}

func (s *StateSealer) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: state sealer is nil")
	}
	id, payload, err := splitSealed(ciphertext)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	aead, ok := s.keys[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, id)
	}

	sealed, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformedBlob
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("security: open sealed blob: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether blob carries the sealed prefix.
func IsSealed(blob []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(blob), []byte(sealedPrefix))
}

func (s *StateSealer) activeKey() (string, cipher.AEAD, error) {
	at := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		key := s.order[i]
		if key.Window.Allows(at) {
			return key.ID, s.keys[key.ID], nil
		}
	}
	return "", nil, ErrNoSealingKey
}

func splitSealed(blob []byte) (string, string, error) {
	raw := string(bytes.TrimSpace(blob))
	if !strings.HasPrefix(raw, sealedPrefix) {
		return "", "", ErrMalformedBlob
	}
	rest := strings.TrimPrefix(raw, sealedPrefix)
	id, payload, ok := strings.Cut(rest, ".")
	if !ok || id == "" || payload == "" {
		return "", "", ErrMalformedBlob
	}
	return id, payload, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return aead, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*StateSealer)(nil)
