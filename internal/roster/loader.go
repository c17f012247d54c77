// Package roster loads agent definitions from YAML files and syncs them into
// the store at startup.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"agenthub/internal/domain"

	"gopkg.in/yaml.v3"
)

// Definition is the YAML schema for one agent file.
type Definition struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"systemPrompt"`
	Capabilities []string `yaml:"capabilities"`
	Knowledge    bool     `yaml:"knowledge"`
	OwnerID      string   `yaml:"ownerId"`
	TenantID     string   `yaml:"tenantId"`
	Public       bool     `yaml:"public"`
	Active       *bool    `yaml:"active"`
}

// LoadFromDirectory loads agent definitions from YAML files in a directory.
// Files must have .yaml or .yml extension. A missing directory is not an
// error; malformed files are skipped with a warning.
func LoadFromDirectory(dir string, logger *slog.Logger) ([]domain.Agent, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("agent roster directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read roster dir: %w", err)
	}

	var agents []domain.Agent
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read agent file", "path", path, "err", err)
			continue
		}

		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			logger.Warn("cannot parse agent file", "path", path, "err", err)
			continue
		}

		agent, err := def.toAgent(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			logger.Warn("invalid agent definition", "path", path, "err", err)
			continue
		}

		logger.Info("loaded agent definition", "id", agent.ID, "type", agent.Type, "path", path)
		agents = append(agents, agent)
	}

	return agents, nil
}

func (d Definition) toAgent(fallbackID string) (domain.Agent, error) {
	id := d.ID
	if id == "" {
		id = fallbackID
	}
	if d.Name == "" {
		return domain.Agent{}, fmt.Errorf("agent %s: name is required", id)
	}
	agentType := d.Type
	if agentType == "" {
		agentType = "general"
	}
	tenant := d.TenantID
	if tenant == "" {
		tenant = "default"
	}
	active := true
	if d.Active != nil {
		active = *d.Active
	}
	return domain.Agent{
		ID:           id,
		Name:         d.Name,
		Type:         agentType,
		Description:  d.Description,
		SystemPrompt: d.SystemPrompt,
		Capabilities: d.Capabilities,
		Knowledge:    d.Knowledge,
		OwnerID:      d.OwnerID,
		TenantID:     tenant,
		IsPublic:     d.Public,
		Active:       active,
	}, nil
}

// Sync upserts loaded definitions into the store. Usage counters on existing
// agents are preserved by the store.
func Sync(ctx context.Context, store domain.Store, agents []domain.Agent, logger *slog.Logger) error {
	for _, a := range agents {
		if err := store.UpsertAgent(ctx, a); err != nil {
			return fmt.Errorf("upsert agent %s: %w", a.ID, err)
		}
	}
	if len(agents) > 0 {
		logger.Info("agent roster synced", "count", len(agents))
	}
	return nil
}
