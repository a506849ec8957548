// Package sessioncache provides the version information for the
// session cache engine.
package sessioncache

// Version is the current version of the engine.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
