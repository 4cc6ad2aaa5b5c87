package store

import (
	"sync"
	"time"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Installs are keyed by ID. Subscribers receive updates via buffered channels
// (buffer size 100). Updates are sent non-blocking; if a subscriber's buffer
// is full, the update is dropped for that subscriber.
type MemoryStore struct {
	mu       sync.RWMutex
	installs map[string]Install

	subMu       sync.RWMutex
	subscribers map[chan Install]struct{}

	now func() time.Time
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		installs:    make(map[string]Install),
		subscribers: make(map[chan Install]struct{}),
		now:         time.Now,
	}
}

// Create registers a new install and notifies subscribers.
func (m *MemoryStore) Create(id, status string) (Install, error) {
	now := m.now()
	inst := Install{
		ID:        id,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	if _, exists := m.installs[id]; exists {
		m.mu.Unlock()
		return Install{}, ErrExists
	}
	m.installs[id] = inst
	m.mu.Unlock()

	m.notifySubscribers(inst)
	return inst, nil
}

// Get returns the install with the given ID.
func (m *MemoryStore) Get(id string) (Install, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.installs[id]
	return inst, ok
}

// Update applies fn to the stored install under the write lock, then
// notifies subscribers with the result.
func (m *MemoryStore) Update(id string, fn func(*Install)) (Install, error) {
	m.mu.Lock()
	inst, ok := m.installs[id]
	if !ok {
		m.mu.Unlock()
		return Install{}, ErrNotFound
	}
	fn(&inst)
	inst.ID = id
	inst.UpdatedAt = m.now()
	m.installs[id] = inst
	m.mu.Unlock()

	m.notifySubscribers(inst)
	return inst, nil
}

// GetAll returns a snapshot of all installs. Order is not guaranteed.
func (m *MemoryStore) GetAll() []Install {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Install, 0, len(m.installs))
	for _, inst := range m.installs {
		results = append(results, inst)
	}
	return results
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Install {
	ch := make(chan Install, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Install) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the install to all active subscribers without blocking.
func (m *MemoryStore) notifySubscribers(inst Install) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- inst:
		default:
			// subscriber is slow, drop the message
		}
	}
}
