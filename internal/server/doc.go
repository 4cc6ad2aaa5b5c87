// Package server provides the installer's HTTP server.
//
// The server starts installs and reports their progress:
//
//   - GET /: Registers a new install and sends the user to authorize it
//   - GET /progress: OAuth callback; starts the install and renders the progress page
//   - GET /status/{id}: Current install status as JSON
//   - GET /api/sse/{id}: Server-Sent Events stream of status changes
//   - GET /ws/{id}: WebSocket stream of status changes
//   - GET /api/installs: All installs as JSON
//   - GET /healthz: Liveness check
//
// Without an OAuth configuration the server runs in simulated mode: "/"
// redirects straight to the progress page and installs start with an empty
// access token.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
