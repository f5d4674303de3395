// Package version holds the CLI version string. Value is overridden at
// release time via -ldflags "-X .../internal/version.Value=v1.2.3".
package version

var Value = "v0.1.0-dev"
