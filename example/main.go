package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/provisionwatch"
)

func main() {
	// start mock installer (see mock_server.go)
	go StartMockInstaller(":9999", 2*time.Second)
	time.Sleep(100 * time.Millisecond)

	p, err := provisionwatch.New("demo",
		provisionwatch.WithBaseURL("http://localhost:9999"),
		provisionwatch.WithInterval(500*time.Millisecond),
		provisionwatch.WithUpdateCallback(func(u provisionwatch.Update) {
			fmt.Printf("  %3d%%  %s\n", u.Percent, u.Text)
		}),
	)
	if err != nil {
		slog.Error("failed to create poller", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Watching mock install \"demo\" (one stage every 2s)")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	final, err := p.Run(ctx)
	if err != nil {
		slog.Error("install did not complete", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Dashboard:", final.AccessURL)
}
