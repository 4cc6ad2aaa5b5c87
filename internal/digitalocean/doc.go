// Package digitalocean deploys Chain Core Developer Edition to a DigitalOcean
// droplet.
//
// The [Provisioner] creates a block storage volume and a droplet whose
// cloud-config formats the volume, installs Docker and starts Chain Core. It
// then waits for SSH and HTTP to come up and creates a client token over SSH
// using a keypair generated for that install alone.
//
// Users authorize the installer through DigitalOcean's OAuth flow (see
// [OAuthConfig]); the resulting access token is revoked once the install ends.
package digitalocean
