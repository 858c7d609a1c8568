// Package passcode owns the local passcode state: whether one is set,
// whether the app is locked behind it, and the hashes derived from it.
package passcode

import (
	"errors"
	"strings"
	"sync"

	"github.com/avolkhov/sessionkit/internal/crypto"
)

// Salts keep the verification hash and the encryption-key hash distinct,
// so the stored verification hash can never double as the encryption key.
const (
	verificationSalt = "sessionkit-passcode-verify"
	encryptionSalt   = "sessionkit-passcode-encrypt"
)

// ErrLocked is returned when an operation requires the manager unlocked.
var ErrLocked = errors.New("passcode: manager is locked")

// Manager tracks the passcode state of the process. All methods are safe
// for concurrent use.
type Manager struct {
	mu     sync.Mutex
	hash   string // verification hash of the stored passcode, "" when none
	locked bool
}

// NewManager returns a Manager in the no-passcode state.
func NewManager() *Manager {
	return &Manager{}
}

// Set stores the verification hash for the given passcode. Setting a
// passcode while locked fails with ErrLocked.
func (m *Manager) Set(passcode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return ErrLocked
	}
	m.hash = m.HashForVerification(passcode)
	return nil
}

// Reset clears the stored passcode and unlocks the manager. Idempotent:
// resetting with no passcode set is allowed and does nothing.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hash = ""
	m.locked = false
}

// Lock moves the manager to the locked state. Locking without a stored
// passcode is a no-op since there is nothing to verify against.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hash != "" {
		m.locked = true
	}
}

// Unlock verifies the passcode against the stored hash and clears the
// locked state on a match. Returns false on mismatch.
func (m *Manager) Unlock(passcode string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hash == "" {
		m.locked = false
		return true
	}
	if m.HashForVerification(passcode) != m.hash {
		return false
	}
	m.locked = false
	return true
}

// Locked reports whether the manager is in the locked state.
func (m *Manager) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// PasscodeHash returns the stored verification hash, or the empty string
// when no passcode is configured.
func (m *Manager) PasscodeHash() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hash
}

// HasStoredPasscode reports whether a passcode is currently configured.
func (m *Manager) HasStoredPasscode() bool {
	return m.PasscodeHash() != ""
}

// HashForVerification derives the hash stored (and compared) for a
// passcode. This is also the string handed around as the passcode hash,
// and therefore the key under which credential fields are encrypted while
// a passcode is set.
func (m *Manager) HashForVerification(passcode string) string {
	return crypto.Hash(strings.TrimSpace(passcode), verificationSalt)
}

// HashForEncryption derives the encryption-key string for the given
// passcode. Deterministic; in particular it defines the key used when no
// passcode is configured (the empty passcode).
func (m *Manager) HashForEncryption(passcode string) string {
	return crypto.Hash(strings.TrimSpace(passcode), encryptionSalt)
}
