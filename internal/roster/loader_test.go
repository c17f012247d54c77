package roster

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeAgentFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	writeAgentFile(t, dir, "support.yaml", `
id: support
name: Support Bot
type: customer_service
description: Handles refunds and billing.
capabilities: [refunds, billing]
ownerId: u1
public: true
`)
	writeAgentFile(t, dir, "notes.txt", "not an agent")

	agents, err := LoadFromDirectory(dir, logger)
	if err != nil {
		t.Fatalf("LoadFromDirectory: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}
	a := agents[0]
	if a.ID != "support" || a.Name != "Support Bot" || a.Type != "customer_service" {
		t.Fatalf("unexpected agent: %+v", a)
	}
	if !a.IsPublic || !a.Active {
		t.Fatalf("flags wrong: %+v", a)
	}
	if len(a.Capabilities) != 2 {
		t.Fatalf("capabilities lost: %v", a.Capabilities)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	// No id, type, or tenant: filename, "general", and "default" fill in.
	writeAgentFile(t, dir, "helper.yml", "name: Helper\n")

	agents, err := LoadFromDirectory(dir, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("LoadFromDirectory: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}
	a := agents[0]
	if a.ID != "helper" {
		t.Fatalf("expected filename id, got %q", a.ID)
	}
	if a.Type != "general" || a.TenantID != "default" || !a.Active {
		t.Fatalf("defaults not applied: %+v", a)
	}
}

func TestLoadSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()

	writeAgentFile(t, dir, "broken.yaml", "{{{ not yaml")
	writeAgentFile(t, dir, "nameless.yaml", "type: general\n")
	writeAgentFile(t, dir, "good.yaml", "name: Good\n")

	agents, err := LoadFromDirectory(dir, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("LoadFromDirectory: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "Good" {
		t.Fatalf("expected only the valid agent, got %+v", agents)
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	agents, err := LoadFromDirectory(filepath.Join(t.TempDir(), "nope"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("missing directory must not be an error: %v", err)
	}
	if agents != nil {
		t.Fatalf("expected no agents, got %+v", agents)
	}
}

func TestLoadInactiveAgent(t *testing.T) {
	dir := t.TempDir()
	writeAgentFile(t, dir, "retired.yaml", "name: Retired\nactive: false\n")

	agents, err := LoadFromDirectory(dir, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("LoadFromDirectory: %v", err)
	}
	if len(agents) != 1 || agents[0].Active {
		t.Fatalf("explicit active: false must stick, got %+v", agents)
	}
}
