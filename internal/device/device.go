// Package device manages the installation identifiers tied to the current
// credential domain. The identifiers are rotated whenever the passcode
// domain is torn down, so nothing issued under the old key survives a
// logout.
package device

import (
	"sync"

	"github.com/google/uuid"
)

// Manager holds lazily generated installation and boot identifiers.
// Safe for concurrent use.
type Manager struct {
	mu             sync.Mutex
	installationID string
	bootID         string
}

// NewManager returns a Manager with no identifiers generated yet.
func NewManager() *Manager {
	return &Manager{}
}

// InstallationID returns the stable identifier of this installation,
// generating it on first use.
func (m *Manager) InstallationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.installationID == "" {
		m.installationID = uuid.NewString()
	}
	return m.installationID
}

// BootID returns the identifier of the current process lifetime,
// generating it on first use.
func (m *Manager) BootID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bootID == "" {
		m.bootID = uuid.NewString()
	}
	return m.bootID
}

// Reset discards both identifiers. The next read generates fresh ones.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installationID = ""
	m.bootID = ""
}
