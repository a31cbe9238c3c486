package execengine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

// RegistrationMode controls whether re-registering a live execution id is
// permitted. ChatManager uses Exclusive to prevent a second concurrent
// execution against the same session (spec §4.2, scenario D).
type RegistrationMode int

const (
	// AllowConcurrent permits multiple live registrations of the same id
	// (TaskManager: task ids are unique per task anyway).
	AllowConcurrent RegistrationMode = iota
	// Exclusive rejects Register for an id that is already live.
	Exclusive
)

// Manager is a shared registry of ActiveExecution records, guarded by a
// read-write lock with a per-entry mutex on the ring buffer (spec §5
// "Shared-resource policy"). TaskManager, ChatManager, and MissionManager
// are each one Manager instance distinguished only by RegistrationMode and
// a name used in logs/metrics.
type Manager struct {
	name   string
	mode   RegistrationMode
	mu     sync.RWMutex
	active map[string]*ActiveExecution
	logger *slog.Logger
}

// NewManager constructs a Manager. name is used for logging ("task",
// "chat", "mission").
func NewManager(name string, mode RegistrationMode, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		name:   name,
		mode:   mode,
		active: make(map[string]*ActiveExecution),
		logger: logger.With("component", "execengine.manager", "manager", name),
	}
}

// Register creates a live ActiveExecution for id. cancelFn is invoked at
// most once, when Cancel is called. Returns false if mode is Exclusive and
// id is already registered (spec §4.2: "registration of an id that
// already exists returns None").
func (m *Manager) Register(id string, cancelFn func(reason string)) (*ActiveExecution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == Exclusive {
		if _, exists := m.active[id]; exists {
			return nil, false
		}
	}
	ae := newActiveExecution(id, cancelFn)
	m.active[id] = ae
	return ae, true
}

// Get returns the live execution for id, if any.
func (m *Manager) Get(id string) (*ActiveExecution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ae, ok := m.active[id]
	return ae, ok
}

// IsActive reports whether id currently has a live execution.
func (m *Manager) IsActive(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// ActiveCount returns the number of live executions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Broadcast stamps and fans out ev under id's ActiveExecution, if live. It
// is a no-op (not an error) if id has already completed, matching the
// spec's "absence means complete" invariant.
func (m *Manager) Broadcast(id string, ev models.AgentEvent) {
	ae, ok := m.Get(id)
	if !ok {
		return
	}
	ae.publish(ev)
}

// SubscribeWithHistory attaches a subscriber to id's live feed, replaying
// buffered events with sequence id > afterID. The bool is false if id has
// no live execution.
func (m *Manager) SubscribeWithHistory(id string, afterID uint64) (*Subscription, bool) {
	ae, ok := m.Get(id)
	if !ok {
		return nil, false
	}
	return ae.subscribeWithHistory(afterID), true
}

// Complete removes id's entry without emitting any event itself; the
// executor is responsible for the terminal Done event before calling this.
func (m *Manager) Complete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}

// Unregister removes id's entry without invoking its cancel handle, used
// when a post-registration persistence step fails (spec §4.2 "Unregister
// (rollback)").
func (m *Manager) Unregister(id string) {
	m.Complete(id)
}

// Cancel flips id's cancellation handle and removes the entry.
func (m *Manager) Cancel(id, reason string) bool {
	m.mu.Lock()
	ae, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	ae.cancel(reason)
	return true
}

// CleanupStale prunes entries whose last-activity instant predates
// olderThan, cancelling their handles with a warning log. Intended for
// periodic invocation (spec §4.2 "Cleanup stale").
func (m *Manager) CleanupStale(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	m.mu.Lock()
	var stale []*ActiveExecution
	for id, ae := range m.active {
		if ae.idleSince().Before(cutoff) {
			stale = append(stale, ae)
			delete(m.active, id)
		}
	}
	m.mu.Unlock()

	for _, ae := range stale {
		m.logger.Warn("cleaning up stale execution", "execution_id", ae.ID)
		ae.cancel("stale")
	}
	return len(stale)
}
