package update

import (
	"runtime"
	"testing"
)

func TestDetect(t *testing.T) {
	p := Detect()

	if p.OS != runtime.GOOS {
		t.Errorf("OS mismatch: got %s, want %s", p.OS, runtime.GOOS)
	}

	if p.Arch != runtime.GOARCH {
		t.Errorf("Arch mismatch: got %s, want %s", p.Arch, runtime.GOARCH)
	}
}

func TestPlatformAssetScore(t *testing.T) {
	p := Platform{OS: "linux", Arch: "amd64"}

	tests := []struct {
		name  string
		asset string
		want  int
	}{
		{name: "matching platform", asset: "app-1.2.0-linux-amd64.tar.gz", want: 2},
		{name: "neutral zip", asset: "app-1.2.0.zip", want: 1},
		{name: "neutral tgz", asset: "app-1.2.0.tgz", want: 1},
		{name: "other arch", asset: "app-1.2.0-linux-arm64.tar.gz", want: 0},
		{name: "other os", asset: "app-1.2.0-darwin-amd64.zip", want: 0},
		{name: "underscore os", asset: "app_windows_amd64.zip", want: 0},
		{name: "not an archive", asset: "checksums.txt", want: 0},
		{name: "signature", asset: "app-1.2.0.zip.sig", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.AssetScore(tt.asset); got != tt.want {
				t.Errorf("AssetScore(%q) = %d, want %d", tt.asset, got, tt.want)
			}
		})
	}
}

func TestPlatformSuffix(t *testing.T) {
	p := Platform{OS: "darwin", Arch: "arm64"}
	if got := p.Suffix(); got != "darwin-arm64" {
		t.Errorf("Suffix() = %s, want darwin-arm64", got)
	}
}
