// Package web provides the embedded installer UI assets.
//
// The progress page is a Go html/template rendered by the server package
// with the install ID, and polls /status/{id} from the browser.
package web

import "embed"

// Assets is an embedded filesystem containing the installer web UI.
//
// The filesystem structure is:
//
//	assets/
//	  progress.html - Install progress page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
