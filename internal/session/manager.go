// Package session orchestrates the credential lifecycle of the single
// active account: sourcing the passcode-derived encryption key, login
// option resolution, and the logout sequence with its asynchronous
// account removal and refresh-token revocation.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/avolkhov/sessionkit/internal/config"
	"github.com/avolkhov/sessionkit/internal/credstore"
	"github.com/avolkhov/sessionkit/internal/crypto"
	"github.com/avolkhov/sessionkit/internal/device"
	"github.com/avolkhov/sessionkit/internal/events"
	"github.com/avolkhov/sessionkit/internal/models"
	"github.com/avolkhov/sessionkit/internal/passcode"
)

// FrontHandle is a front-facing surface (a window, a dialog) that logout
// dismisses before tearing session state down.
type FrontHandle interface {
	Dismiss()
}

// Navigator routes the user to the login entry point after logout.
type Navigator interface {
	ShowLogin()
}

// Revoker accepts refresh-token revocations without blocking the caller.
type Revoker interface {
	Enqueue(refreshToken, clientID, serverURL string)
}

// Config carries the collaborators and policy for a Manager.
type Config struct {
	// AppType selects how login options are sourced.
	AppType models.AppType
	// LoginOptions must be non-nil for native applications.
	LoginOptions *models.LoginOptions
	// BootConfig must be non-nil for hosted applications.
	BootConfig *config.BootConfig

	// Store persists the encrypted credential fields. Required.
	Store credstore.Store
	// Bus receives lifecycle events. Required.
	Bus *events.Bus

	// Passcodes defaults to a fresh passcode manager when nil.
	Passcodes *passcode.Manager
	// Devices defaults to a fresh device-identifier manager when nil.
	Devices *device.Manager
	// Revoker may be nil, in which case no revocation is attempted.
	Revoker Revoker
	// Navigator may be nil, in which case no login prompt is shown.
	Navigator Navigator
	// Logger defaults to a no-op logger when nil.
	Logger *zap.Logger

	// DisableRevoke turns off refresh-token revocation on logout. The
	// zero value keeps revocation enabled.
	DisableRevoke bool
}

// Manager coordinates passcode state, the derived-key cache and the
// active account. Construct one per process with New; tests construct a
// fresh instance per case.
type Manager struct {
	// mu guards the passcode-state/key-cache pair and the active account.
	// EncryptionKeyForPasscode, ChangePasscode and the logout cleanup all
	// run under it.
	mu            sync.Mutex
	encryptionKey string // cached empty-passcode key, "" when not derived
	accountID     string
	watching      bool // registered for store removal notifications

	appType      models.AppType
	loginOptions *models.LoginOptions
	bootConfig   *config.BootConfig

	store     credstore.Store
	bus       *events.Bus
	passcodes *passcode.Manager
	devices   *device.Manager
	revoker   Revoker
	nav       Navigator
	log       *zap.Logger

	revokeOnLogout bool
}

// New validates the configuration and returns a ready Manager. Missing
// login options for a native application, or a missing boot configuration
// for a hosted one, are configuration errors: construction fails rather
// than degrading. On success the manager registers for account-removal
// notifications and publishes AppCreateComplete once.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: credential store is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("session: event bus is required")
	}
	switch cfg.AppType {
	case models.Native:
		if cfg.LoginOptions == nil {
			return nil, errors.New("session: native applications must supply login options at initialization")
		}
	case models.Hosted:
		if cfg.BootConfig == nil {
			return nil, errors.New("session: hosted applications must supply a boot configuration")
		}
		if err := cfg.BootConfig.Validate(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("session: unknown app type %q", cfg.AppType)
	}

	m := &Manager{
		appType:        cfg.AppType,
		loginOptions:   cfg.LoginOptions,
		bootConfig:     cfg.BootConfig,
		store:          cfg.Store,
		bus:            cfg.Bus,
		passcodes:      cfg.Passcodes,
		devices:        cfg.Devices,
		revoker:        cfg.Revoker,
		nav:            cfg.Navigator,
		log:            cfg.Logger,
		revokeOnLogout: !cfg.DisableRevoke,
	}
	if m.passcodes == nil {
		m.passcodes = passcode.NewManager()
	}
	if m.devices == nil {
		m.devices = device.NewManager()
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}

	m.store.Register(m)
	m.watching = true
	m.bus.Publish(events.AppCreateComplete)
	return m, nil
}

// Close detaches the manager from its collaborators. The teardown hook
// for the application lifecycle; in-flight revocations are abandoned by
// whoever owns the revoker.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Unregister(m)
	m.watching = false
}

// Passcodes exposes the passcode manager for lock-screen flows.
func (m *Manager) Passcodes() *passcode.Manager {
	return m.passcodes
}

// Devices exposes the device-identifier manager.
func (m *Manager) Devices() *device.Manager {
	return m.devices
}

// ActiveAccountID returns the identifier of the active account, or the
// empty string when no account is logged in.
func (m *Manager) ActiveAccountID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accountID
}

// LoginOptions resolves the login options for the next login flow. For a
// hosted application they are rebuilt from the boot configuration with
// the current passcode hash; for a native application the options passed
// at initialization are returned.
func (m *Manager) LoginOptions() *models.LoginOptions {
	if m.appType == models.Hosted {
		return &models.LoginOptions{
			PasscodeHash: m.passcodes.PasscodeHash(),
			RedirectURI:  m.bootConfig.OAuthRedirectURI,
			ConsumerKey:  m.bootConfig.RemoteAccessConsumerKey,
			Scopes:       append([]string(nil), m.bootConfig.OAuthScopes...),
		}
	}
	return m.loginOptions
}

// EncryptionKeyForPasscode returns the key that encrypts stored
// credential fields. A non-blank passcode is used directly; for the blank
// passcode the derived key is memoized until passcode state changes or
// cleanup runs.
func (m *Manager) EncryptionKeyForPasscode(actual string) string {
	if strings.TrimSpace(actual) != "" {
		return actual
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emptyKeyLocked()
}

// emptyKeyLocked derives and caches the empty-passcode key. Callers must
// hold m.mu.
func (m *Manager) emptyKeyLocked() string {
	if m.encryptionKey == "" {
		m.encryptionKey = m.passcodes.HashForEncryption("")
	}
	return m.encryptionKey
}

// currentKeyLocked returns the key for the present passcode state.
// Callers must hold m.mu.
func (m *Manager) currentKeyLocked() string {
	if hash := m.passcodes.PasscodeHash(); hash != "" {
		return hash
	}
	return m.emptyKeyLocked()
}

// keyForLocked maps a raw passcode to the key its credential fields are
// stored under: the verification hash for a set passcode, the derived
// empty-passcode key otherwise. Callers must hold m.mu.
func (m *Manager) keyForLocked(pass string) string {
	if strings.TrimSpace(pass) != "" {
		return m.passcodes.HashForVerification(pass)
	}
	return m.emptyKeyLocked()
}

// ChangePasscode re-keys the stored credential fields from the old
// passcode to the new one and updates passcode state. An identical old
// and new passcode (after trimming) is a no-op, not an error. The store
// migration happens before any state changes: on failure the store is
// left entirely under the old key and the passcode state is untouched.
func (m *Manager) ChangePasscode(ctx context.Context, oldPass, newPass string) error {
	if strings.TrimSpace(oldPass) == strings.TrimSpace(newPass) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.passcodes.Locked() {
		return fmt.Errorf("change passcode: %w", passcode.ErrLocked)
	}

	oldKey := m.keyForLocked(oldPass)
	newKey := m.keyForLocked(newPass)

	if m.accountID != "" {
		fields, err := m.store.Fields(ctx, m.accountID)
		if err != nil && !errors.Is(err, credstore.ErrAccountNotFound) {
			return fmt.Errorf("change passcode: %w", err)
		}
		if err == nil {
			migrated := make(map[string]string, len(fields))
			for field, ct := range fields {
				plain, err := crypto.Decrypt(ct, oldKey)
				if err != nil {
					return fmt.Errorf("change passcode: re-key field %s: %w", field, err)
				}
				rekeyed, err := crypto.Encrypt(plain, newKey)
				if err != nil {
					return fmt.Errorf("change passcode: re-key field %s: %w", field, err)
				}
				migrated[field] = rekeyed
			}
			if err := m.store.PutAll(ctx, m.accountID, migrated); err != nil {
				return fmt.Errorf("change passcode: %w", err)
			}
		}
	}

	// The store is under the new key now; update passcode state and drop
	// the cached key in the same critical section.
	m.encryptionKey = ""
	if strings.TrimSpace(newPass) == "" {
		m.passcodes.Reset()
	} else {
		if err := m.passcodes.Set(newPass); err != nil {
			return fmt.Errorf("change passcode: %w", err)
		}
	}
	return nil
}

// Login stores the account's credential fields encrypted under the
// current key and marks the account active.
func (m *Manager) Login(ctx context.Context, acct models.Account) error {
	if acct.ID == "" {
		return errors.New("session: account id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.currentKeyLocked()
	plain := map[string]string{
		credstore.FieldRefreshToken: acct.RefreshToken,
		credstore.FieldClientID:     acct.ClientID,
		credstore.FieldInstanceURL:  acct.InstanceURL,
	}
	fields := make(map[string]string, len(plain))
	for field, value := range plain {
		ct, err := crypto.Encrypt(value, key)
		if err != nil {
			return fmt.Errorf("login: encrypt %s: %w", field, err)
		}
		fields[field] = ct
	}
	if err := m.store.PutAll(ctx, acct.ID, fields); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	m.accountID = acct.ID
	if !m.watching {
		m.store.Register(m)
		m.watching = true
	}
	m.log.Info("account logged in", zap.String("account", acct.ID))
	return nil
}

// Logout wipes the stored credentials and tears down passcode state.
// The credential fields are decrypted with the pre-reset key first, the
// removal observer is detached, cleanup runs synchronously, and the
// account removal is dispatched in the background. LogoutComplete fires
// exactly once, strictly after the removal finishes (immediately when no
// account exists). Revocation is enqueued independently and can neither
// delay nor fail the logout.
func (m *Manager) Logout(front FrontHandle, showLoginPrompt bool) {
	m.mu.Lock()
	acctID := m.accountID
	var creds models.Account
	if acctID != "" {
		creds = m.readCredentialsLocked(acctID)
	}

	// Detach before removing, so the removal notification cannot loop
	// back into a second cleanup.
	m.store.Unregister(m)
	m.watching = false

	m.cleanUpLocked(front)
	m.accountID = ""
	m.mu.Unlock()

	if acctID == "" {
		m.finishLogout(showLoginPrompt)
	} else {
		go func() {
			if err := m.store.Remove(context.Background(), acctID); err != nil {
				m.log.Error("account removal failed",
					zap.String("account", acctID),
					zap.Error(err))
			}
			m.finishLogout(showLoginPrompt)
		}()
	}

	if m.revokeOnLogout && m.revoker != nil && creds.RefreshToken != "" {
		m.revoker.Enqueue(creds.RefreshToken, creds.ClientID, creds.InstanceURL)
	}
}

// readCredentialsLocked decrypts the three credential fields with the key
// of the current passcode state. Unreadable credentials are not an error
// here: logout proceeds as if none existed. Callers must hold m.mu.
func (m *Manager) readCredentialsLocked(acctID string) models.Account {
	key := m.currentKeyLocked()
	read := func(field string) string {
		ct, err := m.store.Get(context.Background(), acctID, field)
		if err != nil {
			m.log.Warn("credential field unavailable",
				zap.String("field", field),
				zap.Error(err))
			return ""
		}
		plain, err := crypto.Decrypt(ct, key)
		if err != nil {
			m.log.Warn("credential field undecryptable",
				zap.String("field", field),
				zap.Error(err))
			return ""
		}
		return plain
	}
	return models.Account{
		ID:           acctID,
		RefreshToken: read(credstore.FieldRefreshToken),
		ClientID:     read(credstore.FieldClientID),
		InstanceURL:  read(credstore.FieldInstanceURL),
	}
}

// cleanUpLocked resets everything tied to the old passcode domain.
// Callers must hold m.mu.
func (m *Manager) cleanUpLocked(front FrontHandle) {
	if front != nil {
		front.Dismiss()
	}
	m.passcodes.Reset()
	m.encryptionKey = ""
	m.devices.Reset()
}

// finishLogout publishes LogoutComplete and, when asked, routes to the
// login entry point.
func (m *Manager) finishLogout(showLoginPrompt bool) {
	m.bus.Publish(events.LogoutComplete)
	if showLoginPrompt && m.nav != nil {
		m.nav.ShowLogin()
	}
}

// OnAccountRemoved handles removals that did not originate from Logout,
// such as the store being wiped externally. Cleanup runs so no key or
// passcode state outlives the account.
func (m *Manager) OnAccountRemoved(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountID != accountID {
		return
	}
	m.cleanUpLocked(nil)
	m.accountID = ""
	m.log.Info("account removed externally, state cleaned up",
		zap.String("account", accountID))
}
