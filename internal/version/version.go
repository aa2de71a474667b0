// Package version carries the build version, set at link time with
// -ldflags "-X github.com/bnema/multisession/internal/version.Version=...".
package version

var Version = "dev"
