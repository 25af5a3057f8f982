package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestReadCachesUntilModified(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "policy.json", `{"a": ""}`)

	c := New()
	reloaded, data, err := c.Read(path, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reloaded {
		t.Error("first Read should report reloaded=true")
	}
	if string(data) != `{"a": ""}` {
		t.Errorf("data = %q", data)
	}

	reloaded, _, err = c.Read(path, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if reloaded {
		t.Error("second Read with unchanged mtime should report reloaded=false")
	}

	// Force the mtime forward so the change is observed even on
	// filesystems with coarse timestamp resolution.
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"a": "@"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	reloaded, data, err = c.Read(path, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reloaded {
		t.Error("Read after mtime advance should report reloaded=true")
	}
	if string(data) != `{"a": "@"}` {
		t.Errorf("data = %q", data)
	}
}

func TestReadForceReload(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "policy.json", `{}`)

	c := New()
	if _, _, err := c.Read(path, false); err != nil {
		t.Fatalf("Read: %v", err)
	}
	reloaded, _, err := c.Read(path, true)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reloaded {
		t.Error("forceReload should always report reloaded=true")
	}
}

func TestReadMissingFile(t *testing.T) {
	c := New()
	if _, _, err := c.Read(filepath.Join(t.TempDir(), "nope.json"), false); err == nil {
		t.Error("expected an error reading a missing file")
	}
}

func TestEvict(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "policy.json", `{}`)

	c := New()
	if _, _, err := c.Read(path, false); err != nil {
		t.Fatalf("Read: %v", err)
	}
	c.Evict(path)

	reloaded, _, err := c.Read(path, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reloaded {
		t.Error("Read after Evict should report reloaded=true")
	}
}
