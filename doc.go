// Package provisionwatch watches a Chain Core install on DigitalOcean until it
// finishes, reporting progress as it goes.
//
// An installer server exposes the workflow status of each install at
// /status/{InstallID}. A [Poller] fetches that resource once per interval,
// translates the reported [Status] into a status line and progress
// percentage, and stops once the install is done or has failed. On success
// it builds the Chain Core dashboard link from the returned client token and
// droplet address.
//
// # Quick Start
//
//	p, err := provisionwatch.New(installID,
//	    provisionwatch.WithBaseURL("http://localhost:8080"),
//	    provisionwatch.WithUpdateCallback(func(u provisionwatch.Update) {
//	        fmt.Printf("%3d%% %s\n", u.Percent, u.Text)
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	final, err := p.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println("dashboard:", final.AccessURL)
//
// # Status Mapping
//
// Non-terminal statuses map to a [Stage] from the [StageTable]:
//
//   - "pending auth": Provisioning droplet…, 10%
//   - "waiting for ssh": Waiting for SSH…, 20%
//   - "waiting for http": Waiting for HTTP…, 45%
//   - "creating client token": Creating client token…, 95%
//
// "done" sets progress to 100 and fills in [Update.AccessURL]. "failed" and
// any unrecognized status reset progress to 0 and end the run with
// [ErrInstallFailed], unless [WithContinueOnFailure] is set.
//
// # Architecture
//
// The repository also contains the installer itself (under internal/):
//
//   - internal/poller: Sequential status polling with bounded retry
//   - internal/store: In-memory install records with pub/sub
//   - internal/install: Workflow runner that advances install status
//   - internal/digitalocean: Droplet, volume, SSH and OAuth plumbing
//   - internal/server: Status API, progress page, SSE and WebSocket feeds
//   - internal/term: Terminal rendering of poller updates
//   - web: Embedded progress page assets
package provisionwatch
