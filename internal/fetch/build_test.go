package fetch

import (
	"path/filepath"
	"testing"

	"github.com/large-farva/ldsentinel/internal/config"
)

func TestBuildCommandFetcher(t *testing.T) {
	cfg := config.Default().Fetcher
	f, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := f.trigger.(*CommandTrigger); !ok {
		t.Fatalf("trigger = %T, want *CommandTrigger", f.trigger)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestBuildSessionFetcherMissingLibrary(t *testing.T) {
	cfg := config.Default().Fetcher
	cfg.Method = config.FetchSession
	cfg.Session.LibraryPath = filepath.Join(t.TempDir(), "missing-t32api.so")
	cfg.Session.Commands = []string{"QUIT"}
	if _, err := Build(cfg, nil); err == nil {
		t.Fatal("expected error for a missing library")
	}
}

func TestBuildUnknownMethod(t *testing.T) {
	cfg := config.Default().Fetcher
	cfg.Method = "serial"
	if _, err := Build(cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}
