package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Product != "rosary-audio" {
		t.Errorf("expected product rosary-audio, got %s", info.Product)
	}
	if info.Version != Version {
		t.Errorf("expected version %s, got %s", Version, info.Version)
	}
	if info.GoVersion == "" || !strings.Contains(info.Platform, "/") {
		t.Errorf("expected runtime details, got %+v", info)
	}
}

func TestBuildInfo_String(t *testing.T) {
	b := BuildInfo{
		Product:   "rosary-audio",
		Version:   "1.2.3",
		Commit:    "abc123",
		BuildDate: "2026-01-01",
		Modified:  true,
		GoVersion: "go1.25.0",
		Platform:  "linux/arm64",
	}

	want := "rosary-audio 1.2.3 (commit: abc123+dirty, built: 2026-01-01, go1.25.0, linux/arm64)"
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestShortRevision(t *testing.T) {
	if got := shortRevision("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("expected 12 chars, got %q", got)
	}
	if got := shortRevision("abc"); got != "abc" {
		t.Errorf("expected short revision unchanged, got %q", got)
	}
}
