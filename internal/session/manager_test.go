package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkhov/sessionkit/internal/config"
	"github.com/avolkhov/sessionkit/internal/credstore"
	"github.com/avolkhov/sessionkit/internal/crypto"
	"github.com/avolkhov/sessionkit/internal/events"
	"github.com/avolkhov/sessionkit/internal/models"
)

// mockRevoker records enqueued revocations.
type mockRevoker struct {
	mu    sync.Mutex
	calls []models.Account
}

func (r *mockRevoker) Enqueue(refreshToken, clientID, serverURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, models.Account{
		RefreshToken: refreshToken,
		ClientID:     clientID,
		InstanceURL:  serverURL,
	})
}

func (r *mockRevoker) snapshot() []models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Account(nil), r.calls...)
}

// mockNavigator records login-prompt requests.
type mockNavigator struct {
	mu    sync.Mutex
	shown int
}

func (n *mockNavigator) ShowLogin() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown++
}

func (n *mockNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.shown
}

// mockFront records dismissals.
type mockFront struct {
	dismissed bool
}

func (f *mockFront) Dismiss() { f.dismissed = true }

// slowRemoveStore delays account removal to make event ordering observable.
type slowRemoveStore struct {
	*credstore.FileStore
	delay time.Duration
}

func (s *slowRemoveStore) Remove(ctx context.Context, accountID string) error {
	time.Sleep(s.delay)
	return s.FileStore.Remove(ctx, accountID)
}

// countingStore counts PutAll calls to detect needless re-encryption.
type countingStore struct {
	*credstore.FileStore
	putAllCalls int
}

func (s *countingStore) PutAll(ctx context.Context, accountID string, fields map[string]string) error {
	s.putAllCalls++
	return s.FileStore.PutAll(ctx, accountID, fields)
}

func newFileStore(t *testing.T) *credstore.FileStore {
	t.Helper()
	fs, err := credstore.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)
	return fs
}

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.AppType == "" {
		cfg.AppType = models.Native
	}
	if cfg.LoginOptions == nil && cfg.AppType == models.Native {
		cfg.LoginOptions = &models.LoginOptions{
			RedirectURI: "app://oauth/done",
			ConsumerKey: "consumer-key",
			Scopes:      []string{"api"},
		}
	}
	if cfg.Store == nil {
		cfg.Store = newFileStore(t)
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus()
	}
	m, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestNew_NativeRequiresLoginOptions(t *testing.T) {
	_, err := New(Config{
		AppType: models.Native,
		Store:   newFileStore(t),
		Bus:     events.NewBus(),
	})
	require.Error(t, err)
}

func TestNew_HostedRequiresBootConfig(t *testing.T) {
	_, err := New(Config{
		AppType: models.Hosted,
		Store:   newFileStore(t),
		Bus:     events.NewBus(),
	})
	require.Error(t, err)

	_, err = New(Config{
		AppType:    models.Hosted,
		Store:      newFileStore(t),
		Bus:        events.NewBus(),
		BootConfig: &config.BootConfig{OAuthRedirectURI: "app://x"},
	})
	require.Error(t, err, "incomplete boot config must fail construction")
}

func TestNew_PublishesAppCreateComplete(t *testing.T) {
	bus := events.NewBus()
	var got []events.Type
	bus.Subscribe(func(e events.Type) { got = append(got, e) })

	newManager(t, Config{Bus: bus})
	require.Equal(t, []events.Type{events.AppCreateComplete}, got)
}

func TestLoginOptions_HostedCarriesPasscodeHash(t *testing.T) {
	m := newManager(t, Config{
		AppType: models.Hosted,
		BootConfig: &config.BootConfig{
			OAuthRedirectURI:        "app://oauth/done",
			RemoteAccessConsumerKey: "consumer-key",
			OAuthScopes:             []string{"api", "refresh_token"},
		},
	})

	opts := m.LoginOptions()
	require.NotNil(t, opts)
	assert.Empty(t, opts.PasscodeHash)
	assert.Equal(t, "consumer-key", opts.ConsumerKey)

	require.NoError(t, m.ChangePasscode(context.Background(), "", "1234"))
	opts = m.LoginOptions()
	assert.Equal(t, m.Passcodes().PasscodeHash(), opts.PasscodeHash)
}

func TestEncryptionKeyForPasscode(t *testing.T) {
	m := newManager(t, Config{})

	// Non-blank passcode is used directly.
	assert.Equal(t, "1234", m.EncryptionKeyForPasscode("1234"))

	// Blank passcode resolves to the derived key, deterministically.
	empty1 := m.EncryptionKeyForPasscode("")
	empty2 := m.EncryptionKeyForPasscode("  ")
	require.NotEmpty(t, empty1)
	assert.Equal(t, empty1, empty2)
	assert.NotEqual(t, "1234", empty1)
}

func TestChangePasscode_IdenticalIsNoOp(t *testing.T) {
	store := &countingStore{FileStore: newFileStore(t)}
	m := newManager(t, Config{Store: store})

	require.NoError(t, m.Login(context.Background(), models.Account{
		ID: "acct1", RefreshToken: "rt", ClientID: "cid", InstanceURL: "https://x",
	}))
	require.NoError(t, m.ChangePasscode(context.Background(), "", "1234"))
	callsAfterSet := store.putAllCalls
	hashAfterSet := m.Passcodes().PasscodeHash()

	// Same passcode, also with surrounding whitespace: nothing happens.
	require.NoError(t, m.ChangePasscode(context.Background(), "1234", "1234"))
	require.NoError(t, m.ChangePasscode(context.Background(), "1234", " 1234 "))
	assert.Equal(t, callsAfterSet, store.putAllCalls, "no re-encryption on identical passcode")
	assert.Equal(t, hashAfterSet, m.Passcodes().PasscodeHash(), "passcode state unchanged")
}

func TestChangePasscode_MigratesStoredFields(t *testing.T) {
	store := newFileStore(t)
	m := newManager(t, Config{Store: store})
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, models.Account{
		ID: "acct1", RefreshToken: "rt", ClientID: "cid", InstanceURL: "https://x",
	}))
	require.NoError(t, m.ChangePasscode(ctx, "", "1234"))

	// Fields must decrypt under the new passcode hash.
	newKey := m.Passcodes().HashForVerification("1234")
	ct, err := store.Get(ctx, "acct1", credstore.FieldRefreshToken)
	require.NoError(t, err)
	plain, err := crypto.Decrypt(ct, newKey)
	require.NoError(t, err)
	assert.Equal(t, "rt", plain)

	// And back to no passcode.
	require.NoError(t, m.ChangePasscode(ctx, "1234", ""))
	assert.False(t, m.Passcodes().HasStoredPasscode())
	ct, err = store.Get(ctx, "acct1", credstore.FieldClientID)
	require.NoError(t, err)
	plain, err = crypto.Decrypt(ct, m.EncryptionKeyForPasscode(""))
	require.NoError(t, err)
	assert.Equal(t, "cid", plain)
}

func TestChangePasscode_WrongOldKeyLeavesStoreIntact(t *testing.T) {
	store := newFileStore(t)
	m := newManager(t, Config{Store: store})
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, models.Account{
		ID: "acct1", RefreshToken: "rt", ClientID: "cid", InstanceURL: "https://x",
	}))
	require.NoError(t, m.ChangePasscode(ctx, "", "1234"))
	before, err := store.Fields(ctx, "acct1")
	require.NoError(t, err)

	// Wrong old passcode: migration fails, nothing changes.
	err = m.ChangePasscode(ctx, "9999", "5678")
	require.Error(t, err)
	after, err := store.Fields(ctx, "acct1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "store must stay under the old key")
	assert.Equal(t, m.Passcodes().HashForVerification("1234"), m.Passcodes().PasscodeHash(),
		"passcode state must stay unchanged")
}

func TestLogout_NoAccount(t *testing.T) {
	bus := events.NewBus()
	nav := &mockNavigator{}
	rev := &mockRevoker{}
	m := newManager(t, Config{Bus: bus, Navigator: nav, Revoker: rev})

	var completed int
	bus.Subscribe(func(e events.Type) {
		if e == events.LogoutComplete {
			completed++
		}
	})

	m.Logout(nil, true)

	assert.Equal(t, 1, completed, "exactly one LogoutComplete")
	assert.Equal(t, 1, nav.count(), "login prompt shown")
	assert.Empty(t, rev.snapshot(), "nothing to revoke")
}

func TestLogout_FullScenario(t *testing.T) {
	store := newFileStore(t)
	bus := events.NewBus()
	nav := &mockNavigator{}
	rev := &mockRevoker{}
	m := newManager(t, Config{Store: store, Bus: bus, Navigator: nav, Revoker: rev})
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, models.Account{
		ID: "acct1", RefreshToken: "rt", ClientID: "cid", InstanceURL: "https://x",
	}))

	done := make(chan events.Type, 8)
	bus.Subscribe(func(e events.Type) { done <- e })

	front := &mockFront{}
	m.Logout(front, true)

	select {
	case e := <-done:
		require.Equal(t, events.LogoutComplete, e)
	case <-time.After(2 * time.Second):
		t.Fatal("LogoutComplete never fired")
	}
	select {
	case e := <-done:
		t.Fatalf("unexpected second event %q", e)
	case <-time.After(50 * time.Millisecond):
	}

	assert.True(t, front.dismissed, "front handle dismissed")
	assert.Equal(t, 1, nav.count(), "login prompt shown after removal")
	assert.Empty(t, m.ActiveAccountID())
	_, err := store.Fields(ctx, "acct1")
	assert.ErrorIs(t, err, credstore.ErrAccountNotFound, "account removed from store")

	calls := rev.snapshot()
	require.Len(t, calls, 1, "revocation attempted exactly once")
	assert.Equal(t, "rt", calls[0].RefreshToken)
	assert.Equal(t, "cid", calls[0].ClientID)
	assert.Equal(t, "https://x", calls[0].InstanceURL)
}

func TestLogout_EventWaitsForRemoval(t *testing.T) {
	store := &slowRemoveStore{FileStore: newFileStore(t), delay: 150 * time.Millisecond}
	bus := events.NewBus()
	m := newManager(t, Config{Store: store, Bus: bus})
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, models.Account{
		ID: "acct1", RefreshToken: "rt", ClientID: "cid", InstanceURL: "https://x",
	}))

	fired := make(chan time.Time, 1)
	bus.Subscribe(func(e events.Type) {
		if e == events.LogoutComplete {
			fired <- time.Now()
		}
	})

	start := time.Now()
	m.Logout(nil, false)
	returned := time.Since(start)

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), store.delay,
			"LogoutComplete fired before removal finished")
	case <-time.After(2 * time.Second):
		t.Fatal("LogoutComplete never fired")
	}
	assert.Less(t, returned, store.delay, "Logout must not block on removal")
}

func TestLogout_RevocationFailureDoesNotAffectEvent(t *testing.T) {
	store := newFileStore(t)
	bus := events.NewBus()
	m := newManager(t, Config{Store: store, Bus: bus, Revoker: failingRevoker{}})
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, models.Account{
		ID: "acct1", RefreshToken: "rt", ClientID: "cid", InstanceURL: "https://x",
	}))

	done := make(chan struct{}, 1)
	bus.Subscribe(func(e events.Type) {
		if e == events.LogoutComplete {
			done <- struct{}{}
		}
	})

	m.Logout(nil, false)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LogoutComplete never fired despite revocation failure")
	}
}

// failingRevoker simulates a revocation path that always fails. Failures
// are internal to the revoker, so Enqueue just swallows the work.
type failingRevoker struct{}

func (failingRevoker) Enqueue(refreshToken, clientID, serverURL string) {}

func TestLogout_UndecryptableCredentials(t *testing.T) {
	store := newFileStore(t)
	bus := events.NewBus()
	rev := &mockRevoker{}
	m := newManager(t, Config{Store: store, Bus: bus, Revoker: rev})
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, models.Account{
		ID: "acct1", RefreshToken: "rt", ClientID: "cid", InstanceURL: "https://x",
	}))

	// Corrupt the stored fields so decryption fails at logout.
	require.NoError(t, store.PutAll(ctx, "acct1", map[string]string{
		credstore.FieldRefreshToken: "garbage",
		credstore.FieldClientID:     "garbage",
		credstore.FieldInstanceURL:  "garbage",
	}))

	done := make(chan struct{}, 1)
	bus.Subscribe(func(e events.Type) {
		if e == events.LogoutComplete {
			done <- struct{}{}
		}
	})

	m.Logout(nil, false)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logout did not complete with unreadable credentials")
	}
	assert.Empty(t, rev.snapshot(), "no revocation without a readable token")
	assert.Empty(t, m.ActiveAccountID())
}

func TestLogout_KeyResetScenario(t *testing.T) {
	m := newManager(t, Config{})
	ctx := context.Background()

	require.NoError(t, m.ChangePasscode(ctx, "", "1234"))
	assert.Equal(t, "1234", m.EncryptionKeyForPasscode("1234"))

	m.Logout(nil, false)

	assert.False(t, m.Passcodes().HasStoredPasscode(), "passcode cleared by logout")
	empty := m.EncryptionKeyForPasscode("")
	assert.NotEmpty(t, empty)
	assert.NotEqual(t, "1234", empty, "empty-passcode key distinct from old passcode")
}

func TestLogout_ResetsDeviceIdentifiers(t *testing.T) {
	m := newManager(t, Config{})
	inst := m.Devices().InstallationID()

	m.Logout(nil, false)

	assert.NotEqual(t, inst, m.Devices().InstallationID(),
		"installation identifier must rotate on logout")
}

func TestOnAccountRemoved_ExternalRemovalCleansUp(t *testing.T) {
	store := newFileStore(t)
	m := newManager(t, Config{Store: store})
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, models.Account{
		ID: "acct1", RefreshToken: "rt", ClientID: "cid", InstanceURL: "https://x",
	}))
	require.NoError(t, m.ChangePasscode(ctx, "", "1234"))

	// Someone else wipes the account behind the manager's back.
	require.NoError(t, store.Remove(ctx, "acct1"))

	assert.Empty(t, m.ActiveAccountID())
	assert.False(t, m.Passcodes().HasStoredPasscode(), "cleanup ran on external removal")
}

func TestLogin_RequiresAccountID(t *testing.T) {
	m := newManager(t, Config{})
	require.Error(t, m.Login(context.Background(), models.Account{}))
}
