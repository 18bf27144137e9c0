package cli

import (
	"path/filepath"
	"testing"

	"github.com/matzehuels/sweeptower/pkg/config"
)

func TestCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}
	if want := filepath.Join(home, ".cache", appName); dir != want {
		t.Errorf("cacheDir() = %q, want %q", dir, want)
	}
}

func TestCacheDirXDG(t *testing.T) {
	custom := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", custom)

	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}
	if want := filepath.Join(custom, appName); dir != want {
		t.Errorf("cacheDir() with XDG_CACHE_HOME = %q, want %q", dir, want)
	}
}

func TestPlanCacheDir(t *testing.T) {
	custom := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", custom)

	dir, err := planCacheDir(config.CacheConfig{})
	if err != nil {
		t.Fatalf("planCacheDir() error: %v", err)
	}
	if want := filepath.Join(custom, appName, "plans"); dir != want {
		t.Errorf("planCacheDir() = %q, want %q", dir, want)
	}

	dir, _ = planCacheDir(config.CacheConfig{Dir: "/srv/plans"})
	if dir != "/srv/plans" {
		t.Errorf("planCacheDir() with Dir = %q", dir)
	}
}
