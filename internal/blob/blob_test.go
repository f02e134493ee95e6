package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/joshp123/sharkd/internal/config"
)

func TestParseEndpoint(t *testing.T) {
	host, secure, err := parseEndpoint("http://minio.local:9000")
	if err != nil {
		t.Fatalf("parseEndpoint: %v", err)
	}
	if host != "minio.local:9000" || secure {
		t.Fatalf("unexpected endpoint: %s secure=%v", host, secure)
	}

	host, secure, err = parseEndpoint("s3.example.com")
	if err != nil {
		t.Fatalf("parseEndpoint: %v", err)
	}
	if host != "s3.example.com" || !secure {
		t.Fatalf("unexpected endpoint: %s secure=%v", host, secure)
	}

	if _, _, err := parseEndpoint("https://"); err == nil {
		t.Fatalf("expected error for empty host")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Save(ctx, "session/shark.json", []byte("{}"), "application/json"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := store.Load(ctx, "session/shark.json")
	if err != nil || string(data) != "{}" {
		t.Fatalf("unexpected load: %q %v", data, err)
	}
	if err := store.Delete(ctx, "session/shark.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(store.Keys()) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestNewFallsBackToMemory(t *testing.T) {
	store, err := New(config.BlobConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestNewS3StoreReadsSecrets(t *testing.T) {
	dir := t.TempDir()
	access := filepath.Join(dir, "access")
	secret := filepath.Join(dir, "secret")
	if err := os.WriteFile(access, []byte("AKIA\n"), 0o600); err != nil {
		t.Fatalf("write access: %v", err)
	}
	if err := os.WriteFile(secret, []byte(" s3cr3t \n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	store, err := NewS3Store(config.BlobConfig{
		Endpoint:      "http://127.0.0.1:9000",
		Bucket:        "sharkd",
		AccessKeyFile: access,
		SecretKeyFile: secret,
	})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	if got := store.objectName("maps/a.png"); got != "sharkd/maps/a.png" {
		t.Fatalf("unexpected object name: %s", got)
	}

	if _, err := NewS3Store(config.BlobConfig{Endpoint: "x", Bucket: "b", AccessKeyFile: filepath.Join(dir, "nope"), SecretKeyFile: secret}); err == nil {
		t.Fatalf("expected missing secret file error")
	}
}
