package digitalocean

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/digitalocean/godo"
	"golang.org/x/oauth2"

	"github.com/jpalmerr/provisionwatch/internal/install"
)

const (
	containerName = "chaincore"
	dashboardPort = 1999

	defaultRegion       = "nyc1"
	defaultSize         = "s-1vcpu-1gb"
	defaultImage        = "ubuntu-22-04-x64"
	defaultDockerImage  = "chaincore/developer"
	defaultVolumeSizeGB = 100

	defaultAddressPollInterval = time.Second
	defaultAddressAttempts     = 10
	defaultPortPollInterval    = 5 * time.Second

	cleanupTimeout = 30 * time.Second
)

// ErrNoAddress is returned when a droplet never reports a public IPv4 address.
var ErrNoAddress = errors.New("droplet has no public ipv4 address")

// Options configures droplet provisioning. Zero values select defaults.
type Options struct {
	Region       string
	Size         string
	Image        string
	DockerImage  string
	VolumeSizeGB int64

	// APIBaseURL overrides the DigitalOcean API endpoint.
	APIBaseURL string
	// RevokeURL overrides the token revocation endpoint. Defaults to [RevokeURL].
	RevokeURL string
	// SkipRevoke keeps the access token valid after Close.
	SkipRevoke bool

	// AddressPollInterval is the base delay between droplet address checks.
	// The n-th check waits n times this interval.
	AddressPollInterval time.Duration
	// AddressAttempts bounds the number of droplet address checks.
	AddressAttempts int
	// PortPollInterval is the delay between SSH and HTTP connection attempts.
	PortPollInterval time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Region == "" {
		o.Region = defaultRegion
	}
	if o.Size == "" {
		o.Size = defaultSize
	}
	if o.Image == "" {
		o.Image = defaultImage
	}
	if o.DockerImage == "" {
		o.DockerImage = defaultDockerImage
	}
	if o.VolumeSizeGB <= 0 {
		o.VolumeSizeGB = defaultVolumeSizeGB
	}
	if o.RevokeURL == "" {
		o.RevokeURL = RevokeURL
	}
	if o.AddressPollInterval <= 0 {
		o.AddressPollInterval = defaultAddressPollInterval
	}
	if o.AddressAttempts <= 0 {
		o.AddressAttempts = defaultAddressAttempts
	}
	if o.PortPollInterval <= 0 {
		o.PortPollInterval = defaultPortPollInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Provisioner deploys Chain Core to a single droplet. It implements
// install.Provisioner.
type Provisioner struct {
	opts        Options
	accessToken string
	client      *godo.Client
	httpClient  *http.Client
	keys        *keyPair
}

var _ install.Provisioner = (*Provisioner)(nil)

// Factory returns an install.ProvisionerFactory that creates a
// [Provisioner] per access token.
func Factory(opts Options) install.ProvisionerFactory {
	return func(accessToken string) (install.Provisioner, error) {
		return New(accessToken, opts)
	}
}

// New creates a Provisioner authorized with accessToken.
func New(accessToken string, opts Options) (*Provisioner, error) {
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}
	opts = opts.withDefaults()

	keys, err := newKeyPair()
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	var clientOpts []godo.ClientOpt
	if opts.APIBaseURL != "" {
		clientOpts = append(clientOpts, godo.SetBaseURL(opts.APIBaseURL))
	}
	client, err := godo.New(httpClient, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create digitalocean client: %w", err)
	}

	return &Provisioner{
		opts:        opts,
		accessToken: accessToken,
		client:      client,
		httpClient:  http.DefaultClient,
		keys:        keys,
	}, nil
}

// Deploy creates a volume and a droplet named name, then waits for the
// droplet's public address.
//
// When a later step fails, the volume and droplet created so far are deleted.
func (p *Provisioner) Deploy(ctx context.Context, name string) (m *install.Machine, err error) {
	logger := p.opts.Logger.With("droplet", name)

	volume, _, err := p.client.Storage.CreateVolume(ctx, &godo.VolumeCreateRequest{
		Region:        p.opts.Region,
		Name:          name,
		Description:   "Chain Core data",
		SizeGigaBytes: p.opts.VolumeSizeGB,
	})
	if err != nil {
		return nil, fmt.Errorf("create volume: %w", err)
	}
	logger.Debug("volume created", "volume_id", volume.ID)

	dropletID := 0
	defer func() {
		if err != nil {
			p.cleanup(logger, dropletID, volume.ID)
		}
	}()

	accountKeys, _, err := p.client.Keys.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return nil, fmt.Errorf("list ssh keys: %w", err)
	}
	sshKeys := make([]godo.DropletCreateSSHKey, 0, len(accountKeys))
	for _, k := range accountKeys {
		sshKeys = append(sshKeys, godo.DropletCreateSSHKey{ID: k.ID})
	}

	userData, err := buildUserData(userData{
		AuthorizedKey: p.keys.authorizedKey,
		Volume:        name,
		Container:     containerName,
		Port:          dashboardPort,
		Image:         p.opts.DockerImage,
	})
	if err != nil {
		return nil, err
	}

	droplet, _, err := p.client.Droplets.Create(ctx, &godo.DropletCreateRequest{
		Name:     name,
		Region:   p.opts.Region,
		Size:     p.opts.Size,
		Image:    godo.DropletCreateImage{Slug: p.opts.Image},
		SSHKeys:  sshKeys,
		IPv6:     true,
		UserData: userData,
		Volumes:  []godo.DropletCreateVolume{{ID: volume.ID}},
		Tags:     []string{"chain-core"},
	})
	if err != nil {
		return nil, fmt.Errorf("create droplet: %w", err)
	}
	dropletID = droplet.ID
	logger.Info("droplet requested", "droplet_id", droplet.ID)

	return p.waitForAddress(ctx, droplet.ID)
}

// cleanup deletes resources left by a failed Deploy. A zero dropletID means
// no droplet was created.
func (p *Provisioner) cleanup(logger *slog.Logger, dropletID int, volumeID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if dropletID != 0 {
		if _, err := p.client.Droplets.Delete(ctx, dropletID); err != nil {
			logger.Warn("failed to delete droplet", "droplet_id", dropletID, "error", err.Error())
		}
	}
	if _, err := p.client.Storage.DeleteVolume(ctx, volumeID); err != nil {
		logger.Warn("failed to delete volume", "volume_id", volumeID, "error", err.Error())
		return
	}
	logger.Info("removed resources of failed deploy", "volume_id", volumeID)
}

// waitForAddress polls the droplet with linear backoff until it has a public
// IPv4 address.
func (p *Provisioner) waitForAddress(ctx context.Context, dropletID int) (*install.Machine, error) {
	for attempt := 1; attempt <= p.opts.AddressAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * p.opts.AddressPollInterval):
		}

		droplet, _, err := p.client.Droplets.Get(ctx, dropletID)
		if err != nil {
			return nil, fmt.Errorf("get droplet %d: %w", dropletID, err)
		}
		ipv4, err := droplet.PublicIPv4()
		if err != nil || ipv4 == "" {
			continue
		}
		ipv6, _ := droplet.PublicIPv6()
		return &install.Machine{
			ID:          strconv.Itoa(dropletID),
			IPv4Address: ipv4,
			IPv6Address: ipv6,
		}, nil
	}
	return nil, fmt.Errorf("droplet %d after %d checks: %w", dropletID, p.opts.AddressAttempts, ErrNoAddress)
}

// WaitForSSH blocks until port 22 on the droplet accepts connections.
func (p *Provisioner) WaitForSSH(ctx context.Context, m *install.Machine) error {
	return waitForPort(ctx, m.IPv4Address, sshPort, p.opts.PortPollInterval)
}

// WaitForHTTP blocks until the Chain Core dashboard port accepts connections.
func (p *Provisioner) WaitForHTTP(ctx context.Context, m *install.Machine) error {
	return waitForPort(ctx, m.IPv4Address, dashboardPort, p.opts.PortPollInterval)
}

// CreateClientToken creates a client token with corectl over SSH.
func (p *Provisioner) CreateClientToken(ctx context.Context, m *install.Machine) (string, error) {
	out, err := runSSH(ctx, m.IPv4Address, p.keys.signer, createTokenCmd)
	if err != nil {
		return "", err
	}
	return parseClientToken(out)
}

// Close revokes the access token unless [Options.SkipRevoke] is set.
func (p *Provisioner) Close(ctx context.Context) error {
	if p.opts.SkipRevoke {
		return nil
	}
	return Revoke(ctx, p.httpClient, p.opts.RevokeURL, p.accessToken)
}
