package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("converted", "unit", "a.png")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line logged at info level:\n%s", out)
	}
	if !strings.Contains(out, "converted") || !strings.Contains(out, "unit=a.png") {
		t.Fatalf("missing info line:\n%s", out)
	}
}

func TestNewVerboseAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pixfit.log")
	logger, closer, err := New(Options{File: path, Verbose: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Debug("attempt", "quality", 80)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "quality=80") {
		t.Fatalf("debug line missing from file:\n%s", data)
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	OrDiscard(nil).Info("dropped")
}
