package update

import (
	"runtime"
	"strings"
)

// Platform identifies an operating system and architecture
type Platform struct {
	OS   string
	Arch string
}

// Detect returns the current platform (OS and architecture)
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

// Suffix returns the asset name fragment for this platform
// e.g., "linux-amd64"
func (p Platform) Suffix() string {
	return p.OS + "-" + p.Arch
}

var knownOS = []string{"linux", "darwin", "windows", "freebsd"}

// AssetScore ranks a release asset for this platform: 2 when the name
// targets this platform, 1 when it names no platform, 0 when it targets
// another one or is not an archive.
func (p Platform) AssetScore(name string) int {
	if !isArchiveName(name) {
		return 0
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, p.Suffix()) {
		return 2
	}
	for _, goos := range knownOS {
		if strings.Contains(lower, goos+"-") || strings.Contains(lower, goos+"_") {
			return 0
		}
	}
	return 1
}
