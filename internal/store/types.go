package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no install has the requested ID.
	ErrNotFound = errors.New("install not found")

	// ErrExists is returned by Create when the ID is already taken.
	ErrExists = errors.New("install already exists")
)

// Install is the stored state of one provisioning workflow.
type Install struct {
	// ID is the install identifier used in /status/{ID}.
	ID string `json:"id"`
	// Status is the current workflow status (e.g., "waiting for ssh").
	Status string `json:"status"`
	// ClientToken is the Chain Core client token, set when Status is "done".
	ClientToken string `json:"client_token,omitempty"`
	// IPAddress is the droplet's public IPv4 address, set once known.
	IPAddress string `json:"ip_address,omitempty"`
	// Error is the failure reason, set when Status is "failed".
	Error string `json:"error,omitempty"`
	// CreatedAt is when the install was registered.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the install last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for storing and subscribing to install updates.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Create registers a new install with the given initial status.
	// Returns ErrExists if the ID is taken.
	Create(id, status string) (Install, error)

	// Get returns the install with the given ID.
	Get(id string) (Install, bool)

	// Update applies fn to the stored install and notifies all subscribers.
	// The ID field cannot be changed. Returns ErrNotFound for unknown IDs.
	Update(id string, fn func(*Install)) (Install, error)

	// GetAll returns a snapshot of all installs.
	GetAll() []Install

	// Subscribe returns a channel that receives every created or updated install.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Install

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Install)
}
