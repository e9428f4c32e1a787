package discovery

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"sync"
	"time"
)

// RotationInterval is the background secret-rotation period (spec.md §3).
const RotationInterval = 5 * time.Minute

// TokenStatus classifies a validated token against the secret ring.
type TokenStatus int

const (
	TokenInvalid TokenStatus = iota
	TokenFresh               // matched S[1], the current generation
	TokenGrace               // matched S[0], the prior generation
)

// SecretRing holds the two active secret generations used to mint and
// validate per-host tokens (spec.md §3). A token issued to host H is
// base64(SHA-256(S[1] || H)); it is accepted if it matches S[1] (fresh)
// or S[0] (grace, one rotation cycle).
type SecretRing struct {
	mu      sync.Mutex
	prior   [32]byte
	current [32]byte
}

// NewSecretRing constructs a ring with two freshly generated secrets.
func NewSecretRing() (*SecretRing, error) {
	r := &SecretRing{}
	if _, err := rand.Read(r.prior[:]); err != nil {
		return nil, err
	}
	if _, err := rand.Read(r.current[:]); err != nil {
		return nil, err
	}
	return r, nil
}

// IssueToken computes base64(SHA-256(S[1] || host)).
func (r *SecretRing) IssueToken(host string) string {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	return hashToken(cur, host)
}

// ValidateToken reports whether token matches the fresh or grace
// generation for host.
func (r *SecretRing) ValidateToken(token, host string) TokenStatus {
	r.mu.Lock()
	cur, prior := r.current, r.prior
	r.mu.Unlock()

	fresh := hashToken(cur, host)
	if subtle.ConstantTimeCompare([]byte(token), []byte(fresh)) == 1 {
		return TokenFresh
	}
	grace := hashToken(prior, host)
	if subtle.ConstantTimeCompare([]byte(token), []byte(grace)) == 1 {
		return TokenGrace
	}
	return TokenInvalid
}

// Rotate shifts S[1] into S[0] and generates a new S[1]. Returns an
// error only if the entropy source fails; the ring is left unchanged in
// that case.
func (r *SecretRing) Rotate() error {
	var fresh [32]byte
	if _, err := rand.Read(fresh[:]); err != nil {
		return err
	}
	r.mu.Lock()
	r.prior = r.current
	r.current = fresh
	r.mu.Unlock()
	return nil
}

func hashToken(secret [32]byte, host string) string {
	h := sha256.New()
	h.Write(secret[:])
	h.Write([]byte(host))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// TokenTable caches the token acquired from each configured tracker,
// indexed by tracker slot (spec.md §3). A token is valid while
// age >= the table's current tick; rotation advances the tick and
// drops any slot that fell behind.
type TokenTable struct {
	mu    sync.Mutex
	tick  int64
	slots map[int]*tokenSlot
}

type tokenSlot struct {
	token string
	valid bool
	age   int64
}

// NewTokenTable constructs an empty table.
func NewTokenTable() *TokenTable {
	return &TokenTable{slots: make(map[int]*tokenSlot)}
}

// Set caches token for tracker slot i at the table's current tick.
func (t *TokenTable) Set(i int, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[i] = &tokenSlot{token: token, valid: true, age: t.tick}
}

// Get returns the cached token for slot i, if any and still valid.
func (t *TokenTable) Get(i int) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[i]
	if !ok || !s.valid {
		return "", false
	}
	return s.token, true
}

// Clear drops the cached token for slot i, forcing a re-probe on next
// use.
func (t *TokenTable) Clear(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, i)
}

// Advance increments the tick and clears any slot whose age fell
// behind it, per spec.md §3's "age >= current tick" rule.
func (t *TokenTable) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick++
	for i, s := range t.slots {
		if s.age < t.tick {
			delete(t.slots, i)
		}
	}
}

// SecretManager composes the secret ring and token table under a single
// rotation schedule (spec.md §3, §4.2): every RotationInterval, if the
// instance is listening (server mode) the ring rotates; in all modes
// the token table's tick advances, dropping stale client-side tokens.
type SecretManager struct {
	Ring   *SecretRing
	Tokens *TokenTable

	listening func() bool
}

// NewSecretManager constructs a manager. listening is polled on each
// rotation tick to decide whether the secret ring itself should rotate.
func NewSecretManager(listening func() bool) (*SecretManager, error) {
	ring, err := NewSecretRing()
	if err != nil {
		return nil, err
	}
	return &SecretManager{
		Ring:      ring,
		Tokens:    NewTokenTable(),
		listening: listening,
	}, nil
}

// Run ticks every RotationInterval until ctx is done.
func (m *SecretManager) Run(ctx <-chan struct{}) {
	ticker := time.NewTicker(RotationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx:
			return
		case <-ticker.C:
			m.rotateOnce()
		}
	}
}

func (m *SecretManager) rotateOnce() {
	if m.listening != nil && m.listening() {
		_ = m.Ring.Rotate()
	}
	m.Tokens.Advance()
}
