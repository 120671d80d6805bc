package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func TestBuildArchiveLayout(t *testing.T) {
	g, err := New("https://backend.example.com", "https://ml.example.com", "2.0.0")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := g.Build("abc123", "n1", "nk_deadbeefdeadbeefdeadbeefdeadbeef")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	want := map[string]bool{
		"config.json": false,
		"agent.py":    false,
		"install.sh":  false,
		"README.md":   false,
	}
	for _, f := range zr.File {
		if _, ok := want[f.Name]; !ok {
			t.Errorf("unexpected archive entry %q", f.Name)
			continue
		}
		want[f.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("archive missing %q", name)
		}
	}
}

func TestBuildConfigContents(t *testing.T) {
	g, err := New("https://backend.example.com", "https://ml.example.com", "2.0.0")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := g.Build("abc123", "n1", "nk_deadbeefdeadbeefdeadbeefdeadbeef")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	var cfg Config
	for _, f := range zr.File {
		if f.Name != "config.json" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open config.json: %v", err)
		}
		if err := json.NewDecoder(rc).Decode(&cfg); err != nil {
			t.Fatalf("decode config.json: %v", err)
		}
		rc.Close()
	}

	if cfg.NodeID != "abc123" {
		t.Errorf("node_id = %q", cfg.NodeID)
	}
	if cfg.NodeAPIKey != "nk_deadbeefdeadbeefdeadbeefdeadbeef" {
		t.Errorf("node_api_key = %q", cfg.NodeAPIKey)
	}
	if cfg.BackendURL != "https://backend.example.com" {
		t.Errorf("backend_url = %q", cfg.BackendURL)
	}
	if cfg.ClassifierURL != "https://ml.example.com" {
		t.Errorf("ml_service_url = %q", cfg.ClassifierURL)
	}
	if cfg.Version != "2.0.0" {
		t.Errorf("version = %q", cfg.Version)
	}
}

func TestBuildReadmeRendersNode(t *testing.T) {
	g, err := New("https://backend.example.com", "https://ml.example.com", "2.0.0")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := g.Build("abc123", "edge-probe", "nk_00")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != "README.md" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open README.md: %v", err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read README.md: %v", err)
		}
		if !strings.Contains(string(body), "edge-probe") || !strings.Contains(string(body), "abc123") {
			t.Error("README does not mention the node")
		}
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("abc123"); got != "agent-abc123.zip" {
		t.Errorf("Filename = %q", got)
	}
}
