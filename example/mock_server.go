package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// mockSteps is the status sequence every mock install walks through.
var mockSteps = []string{
	"pending auth",
	"waiting for ssh",
	"waiting for http",
	"creating client token",
	"done",
}

// StartMockInstaller runs a fake installer whose installs advance one status
// every step. An install starts on its first /status request.
// Call this in a goroutine before polling.
func StartMockInstaller(addr string, step time.Duration) {
	var (
		started = make(map[string]time.Time)
		mu      sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		mu.Lock()
		start, ok := started[id]
		if !ok {
			start = time.Now()
			started[id] = start
		}
		mu.Unlock()

		idx := min(int(time.Since(start)/step), len(mockSteps)-1)
		resp := map[string]string{"status": mockSteps[idx]}
		if mockSteps[idx] == "done" {
			resp["client_token"] = "do:" + strings.Repeat("ab", 16)
			resp["ip_address"] = "192.0.2.10"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to encode mock status", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock installer stopped", "error", err)
	}
}
