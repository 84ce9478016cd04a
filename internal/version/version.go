// Package version provides the application version.
package version

// Version is set at build time via ldflags:
//
//	go build -ldflags "-X github.com/sergeknystautas/githistory/internal/version.Version=1.2.3" ./cmd/githistory
var Version = "dev"
