package logger

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if err := Setup(Config{Level: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestSetupWithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "imagen.log")
	if err := Setup(Config{Level: "debug", File: file, MaxSizeMB: 1}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	Infof("hello %s", "file")
	Sync()
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected the global logger as fallback")
	}
	l := NewCustomLogger().With("requestId", "abc")
	if got := FromContext(NewContext(context.Background(), l)); got != l {
		t.Fatal("expected the logger stored in the context")
	}
}
