// Package bundle builds the per-node agent archive: a zip containing the
// agent configuration, the agent program, an installation script, and a
// README. Content is constructed fresh on every request; nothing is
// persisted.
package bundle

import (
	"archive/zip"
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"
)

//go:embed templates/agent.py templates/install.sh templates/README.md
var templates embed.FS

// Config is the agent configuration document written to config.json. The
// node credential appears here in cleartext; the archive is the delivery
// channel through which an agent acquires it.
type Config struct {
	NodeID        string `json:"node_id"`
	NodeAPIKey    string `json:"node_api_key"`
	NodeName      string `json:"node_name"`
	BackendURL    string `json:"backend_url"`
	ClassifierURL string `json:"ml_service_url"`
	Version       string `json:"version"`
}

// Generator builds agent bundles for a deployment.
type Generator struct {
	backendURL    string
	classifierURL string
	version       string
	readme        *template.Template
}

// New creates a Generator.
func New(backendURL, classifierURL, version string) (*Generator, error) {
	readme, err := template.ParseFS(templates, "templates/README.md")
	if err != nil {
		return nil, fmt.Errorf("parse readme template: %w", err)
	}
	return &Generator{
		backendURL:    backendURL,
		classifierURL: classifierURL,
		version:       version,
		readme:        readme,
	}, nil
}

// Filename returns the download filename for a node's bundle.
func Filename(nodeID string) string {
	return fmt.Sprintf("agent-%s.zip", nodeID)
}

// Build assembles the zip archive for one node and its freshly issued
// credential.
func (g *Generator) Build(nodeID, nodeName, nodeAPIKey string) ([]byte, error) {
	cfg := Config{
		NodeID:        nodeID,
		NodeAPIKey:    nodeAPIKey,
		NodeName:      nodeName,
		BackendURL:    g.backendURL,
		ClassifierURL: g.classifierURL,
		Version:       g.version,
	}

	cfgJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var readme bytes.Buffer
	if err := g.readme.Execute(&readme, cfg); err != nil {
		return nil, fmt.Errorf("render readme: %w", err)
	}

	agent, err := templates.ReadFile("templates/agent.py")
	if err != nil {
		return nil, fmt.Errorf("read agent template: %w", err)
	}
	installer, err := templates.ReadFile("templates/install.sh")
	if err != nil {
		return nil, fmt.Errorf("read installer template: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	entries := []struct {
		name string
		body []byte
	}{
		{"config.json", cfgJSON},
		{"agent.py", agent},
		{"install.sh", installer},
		{"README.md", readme.Bytes()},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", e.name, err)
		}
		if _, err := w.Write(e.body); err != nil {
			return nil, fmt.Errorf("write %s: %w", e.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
