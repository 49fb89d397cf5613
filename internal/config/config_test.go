package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediasync/pkg/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mediasync.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
content_root: /srv/media
remote:
  backend: s3
  endpoint: minio.local:9000
  bucket: media
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConflictPolicy != models.PolicyNewerWins {
		t.Errorf("policy = %q; want newer-wins default", cfg.ConflictPolicy)
	}
	if cfg.RootPath != "/mediasync" {
		t.Errorf("root path = %q; want /mediasync", cfg.RootPath)
	}
	if cfg.SyncFrequency != 15*time.Minute {
		t.Errorf("frequency = %v; want 15m", cfg.SyncFrequency)
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	path := writeConfig(t, `
content_root: /srv/media
conflict_policy: coin-flip
remote:
  backend: s3
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown conflict policy")
	}
}

func TestLoadRejectsRelativeRootPath(t *testing.T) {
	path := writeConfig(t, `
content_root: /srv/media
root_path: media
remote:
  backend: dropbox
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for relative root_path")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
content_root: /srv/media
remote:
  backend: ftp
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MEDIASYNC_CONFLICT_POLICY", "local-wins")
	path := writeConfig(t, `
content_root: /srv/media
remote:
  backend: dropbox
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConflictPolicy != models.PolicyLocalWins {
		t.Errorf("policy = %q; want local-wins from env", cfg.ConflictPolicy)
	}
}

func TestNormalizedExtensions(t *testing.T) {
	cfg := &Config{AllowedExtensions: []string{".JPG", "png", " gif ", ""}}
	got := cfg.NormalizedExtensions()
	for _, want := range []string{"jpg", "png", "gif"} {
		if !got[want] {
			t.Errorf("missing extension %q", want)
		}
	}
	if len(got) != 3 {
		t.Errorf("len = %d; want 3", len(got))
	}
}
