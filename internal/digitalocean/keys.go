package digitalocean

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// keyPair is a throwaway SSH identity used to reach a new droplet.
type keyPair struct {
	signer        ssh.Signer
	authorizedKey string
}

func newKeyPair() (*keyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ssh key: %w", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("create ssh signer: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("encode ssh public key: %w", err)
	}

	// MarshalAuthorizedKey appends a newline
	authorized := ssh.MarshalAuthorizedKey(sshPub)
	return &keyPair{
		signer:        signer,
		authorizedKey: string(authorized[:len(authorized)-1]),
	}, nil
}
