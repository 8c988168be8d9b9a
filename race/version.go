package race

import (
	"runtime"

	"github.com/kolkov/hybridrace/internal/race/racelog"
)

// Version is the hybridrace release, without the "v" of its git tag.
const Version = "0.1.0"

// Algorithm names the race criterion every Session applies.
const Algorithm = "hybrid happens-before + lockset"

// Info describes this build, as printed by `hybridrace version`.
type Info struct {
	Version   string
	Algorithm string

	// LogFormat is the format version Flush stamps into race logs. Logs
	// with another major version are ignored on load.
	LogFormat string

	// GoVersion is the toolchain that built the binary.
	GoVersion string
}

// GetInfo reports the release, criterion and race log format of this build.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Algorithm: Algorithm,
		LogFormat: racelog.FormatVersion,
		GoVersion: runtime.Version(),
	}
}
