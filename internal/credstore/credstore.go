// Package credstore provides persistent storage for per-account credential
// fields. Values are opaque ciphertext blobs; encryption and decryption
// happen in the caller. Stores notify registered observers after an
// account is removed, so interested parties can react to removals that
// they did not initiate themselves.
package credstore

import (
	"context"
	"errors"
	"sync"
)

// Credential field names stored per account.
const (
	FieldRefreshToken = "refresh_token"
	FieldClientID     = "client_id"
	FieldInstanceURL  = "instance_url"
)

// Store errors.
var (
	// ErrAccountNotFound indicates no record exists for the account.
	ErrAccountNotFound = errors.New("credstore: account not found")
	// ErrFieldNotFound indicates the account exists but lacks the field.
	ErrFieldNotFound = errors.New("credstore: field not found")
)

// RemovalObserver is notified after an account has been removed from the
// store. Callbacks run on the goroutine that performed the removal.
type RemovalObserver interface {
	OnAccountRemoved(accountID string)
}

// Store is the persistence contract for encrypted credential fields.
type Store interface {
	// Get returns the ciphertext stored for one field of the account.
	Get(ctx context.Context, accountID, field string) (string, error)
	// Put stores the ciphertext for one field, creating the account record
	// if needed.
	Put(ctx context.Context, accountID, field, ciphertext string) error
	// Fields returns all stored fields of the account.
	Fields(ctx context.Context, accountID string) (map[string]string, error)
	// PutAll replaces every stored field of the account in one operation.
	// Used for passcode changes: either all fields end up under the new
	// key or none do.
	PutAll(ctx context.Context, accountID string, fields map[string]string) error
	// Remove deletes the account record and notifies removal observers.
	// Removing a missing account is not an error.
	Remove(ctx context.Context, accountID string) error

	// Register subscribes an observer to removal notifications.
	Register(obs RemovalObserver)
	// Unregister detaches a previously registered observer. Detaching an
	// unknown observer is a no-op.
	Unregister(obs RemovalObserver)
}

// observers is the removal-notification set shared by store backends.
type observers struct {
	mu   sync.RWMutex
	subs []RemovalObserver
}

func (o *observers) Register(obs RemovalObserver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs = append(o.subs, obs)
}

func (o *observers) Unregister(obs RemovalObserver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s == obs {
			o.subs = append(o.subs[:i], o.subs[i+1:]...)
			return
		}
	}
}

// notifyRemoved calls every observer outside the set's lock, so an
// observer may unregister itself or others from inside the callback.
func (o *observers) notifyRemoved(accountID string) {
	o.mu.RLock()
	subs := make([]RemovalObserver, len(o.subs))
	copy(subs, o.subs)
	o.mu.RUnlock()

	for _, s := range subs {
		s.OnAccountRemoved(accountID)
	}
}
