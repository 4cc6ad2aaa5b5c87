package digitalocean

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	sshUser        = "root"
	sshPort        = 22
	sshDialTimeout = 30 * time.Second

	// createTokenCmd creates a client token named "do" inside the container.
	createTokenCmd = "docker exec " + containerName + " /usr/bin/chain/corectl create-token do"
	tokenPrefix    = "do:"
)

// runSSH runs cmd on host as root and returns its combined output.
func runSSH(ctx context.Context, host string, signer ssh.Signer, cmd string) (string, error) {
	cfg := &ssh.ClientConfig{
		User: sshUser,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// droplets are brand new and their host keys are not known in advance
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshDialTimeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(sshPort))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	// unblock the session if ctx ends first
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(cmd)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("run %q: %w: %s", cmd, err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// parseClientToken extracts the token from corectl output.
func parseClientToken(output string) (string, error) {
	token := strings.TrimSpace(output)
	if !strings.HasPrefix(token, tokenPrefix) {
		return "", fmt.Errorf("unexpected create-token output: %q", token)
	}
	return token, nil
}
