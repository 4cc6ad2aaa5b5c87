package digitalocean

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
)

var userDataTmpl = template.Must(template.New("userdata").Parse(`#cloud-config
package_upgrade: true
ssh_authorized_keys:
  - {{.AuthorizedKey}}
users:
  - default
  - name: chaincore
    sudo: ['ALL=(ALL) NOPASSWD:ALL']
    groups: sudo
    shell: /bin/bash
packages:
  - docker.io
runcmd:
  - mkfs.ext4 -F /dev/disk/by-id/scsi-0DO_Volume_{{.Volume}}
  - mkdir -p /mnt/{{.Volume}}
  - mount -o discard,defaults /dev/disk/by-id/scsi-0DO_Volume_{{.Volume}} /mnt/{{.Volume}}
  - echo '/dev/disk/by-id/scsi-0DO_Volume_{{.Volume}} /mnt/{{.Volume}} ext4 defaults,nofail,discard 0 0' >> /etc/fstab
  - docker run -d --restart unless-stopped --name {{.Container}} -p {{.Port}}:1999 -v /mnt/{{.Volume}}/postgresql/data:/var/lib/postgresql/data {{.Image}}
`))

// userData holds the values substituted into the droplet's cloud-config.
type userData struct {
	AuthorizedKey string
	Volume        string
	Container     string
	Port          int
	Image         string
}

func buildUserData(d userData) (string, error) {
	if d.AuthorizedKey == "" {
		return "", errors.New("user data: authorized key is required")
	}
	if d.Volume == "" {
		return "", errors.New("user data: volume name is required")
	}

	var buf bytes.Buffer
	if err := userDataTmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render user data: %w", err)
	}
	return buf.String(), nil
}
