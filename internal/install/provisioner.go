package install

import "context"

// Machine is a host created by a [Provisioner].
type Machine struct {
	// ID is the provider's identifier for the host.
	ID string
	// IPv4Address is the public IPv4 address.
	IPv4Address string
	// IPv6Address is the public IPv6 address, if any.
	IPv6Address string
}

// Provisioner performs the stages of one install.
//
// A Provisioner is created per install by a [ProvisionerFactory] and is not
// shared, so implementations may keep per-install state such as SSH keys.
type Provisioner interface {
	// Deploy creates the host and returns once its addresses are known.
	Deploy(ctx context.Context, name string) (*Machine, error)
	// WaitForSSH blocks until the host accepts SSH connections.
	WaitForSSH(ctx context.Context, m *Machine) error
	// WaitForHTTP blocks until Chain Core accepts HTTP connections.
	WaitForHTTP(ctx context.Context, m *Machine) error
	// CreateClientToken creates a Chain Core client token on the host.
	CreateClientToken(ctx context.Context, m *Machine) (string, error)
	// Close releases credentials held by the provisioner.
	Close(ctx context.Context) error
}

// ProvisionerFactory creates a [Provisioner] authorized with the given
// access token.
type ProvisionerFactory func(accessToken string) (Provisioner, error)
