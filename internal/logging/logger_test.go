package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_SplitsFilesByLevel(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Config{Level: "info", Directory: dir, MaxSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("dropped")
	log.Info("synced")
	log.Error("lms down")
	_ = log.Sync()

	info, err := os.ReadFile(filepath.Join(dir, "sync-info.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(info), `"message":"synced"`) || strings.Contains(string(info), "lms down") {
		t.Fatalf("info log = %s", info)
	}
	errs, err := os.ReadFile(filepath.Join(dir, "sync-error.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(errs), "lms down") {
		t.Fatalf("error log = %s", errs)
	}
	if _, err := os.Stat(filepath.Join(dir, "sync-debug.log")); !os.IsNotExist(err) {
		t.Fatalf("debug log should not exist below level, stat err = %v", err)
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_NoSinks(t *testing.T) {
	log, err := New(Config{})
	if err != nil || log == nil {
		t.Fatalf("log = %v, err = %v", log, err)
	}
}
