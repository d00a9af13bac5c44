package buildconfig

import "runtime"

// Set via -ldflags "-X github.com/wwfm-app/wwfm/internal/buildconfig.version=..."
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = ""
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo is reported on /health and by `wwfm-queue version`.
func VersionInfo() map[string]string {
	info := map[string]string{
		"service":    "wwfm",
		"version":    version,
		"commit":     commit,
		"go_version": runtime.Version(),
	}
	if buildTime != "" {
		info["build_time"] = buildTime
	}
	return info
}
