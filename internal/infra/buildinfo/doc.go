// Package buildinfo exposes the rafter-node version.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/rafter-go/internal/infra/buildinfo.Version=v1.0.0"
//
// The Go version always comes from the runtime.
package buildinfo
