package statemanager

import (
	"os"
	"path/filepath"
	"runtime"
)

// GetDefaultStatePath returns the path to the state file based on the operating system
// It returns an empty string if the path cannot be determined.
func GetDefaultStatePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("PROGRAMDATA"), "UpdateEngine", "state.json")
	case "darwin", "linux":
		return "/var/lib/updateengine/state.json"
	case "freebsd", "openbsd", "netbsd", "dragonfly":
		return "/var/db/updateengine/state.json"
	}

	return ""
}
