package api

import "github.com/MJE43/dragstrip/internal/sweep"

// Version information - these will be set at build time via ldflags
var (
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// EngineVersion is the simulation engine version reported on every response.
func EngineVersion() string { return sweep.EngineVersion }

// GetVersionInfo returns the current version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		EngineVersion: EngineVersion(),
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
	}
}
