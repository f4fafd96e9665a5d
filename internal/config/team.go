package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Team describes the agent roster that takes turns in every batch conversation.
type Team struct {
	Agents []AgentSpec `yaml:"agents" toml:"agents"`
}

// AgentSpec is one seat in the round-robin conversation.
type AgentSpec struct {
	Name          string `yaml:"name" toml:"name"`
	SystemMessage string `yaml:"system_message,omitempty" toml:"system_message"`
}

const defaultSystemMessage = "You are a helpful AI assistant. Solve tasks using your language skills. Reply TERMINATE when the task is done."

// DefaultTeam is the data_agent -> assistant -> report_generator roster.
func DefaultTeam() Team {
	return Team{Agents: []AgentSpec{
		{Name: "data_agent", SystemMessage: defaultSystemMessage},
		{Name: "assistant", SystemMessage: defaultSystemMessage},
		{Name: "report_generator", SystemMessage: defaultSystemMessage},
	}}
}

// LoadTeam reads a roster file, TOML when the name ends in .toml and YAML
// otherwise. An empty path returns DefaultTeam.
func LoadTeam(path string) (Team, error) {
	if path == "" {
		return DefaultTeam(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Team{}, fmt.Errorf("read team file: %w", err)
	}

	var t Team
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &t)
	} else {
		err = yaml.Unmarshal(data, &t)
	}
	if err != nil {
		return Team{}, fmt.Errorf("parse team file: %w", err)
	}
	if err := t.applyDefaults(); err != nil {
		return Team{}, err
	}
	return t, nil
}

func (t *Team) applyDefaults() error {
	if len(t.Agents) == 0 {
		*t = DefaultTeam()
		return nil
	}
	seen := make(map[string]bool, len(t.Agents))
	for i := range t.Agents {
		a := &t.Agents[i]
		if a.Name == "" {
			return fmt.Errorf("team agent %d has no name", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate team agent %q", a.Name)
		}
		seen[a.Name] = true
		if a.SystemMessage == "" {
			a.SystemMessage = defaultSystemMessage
		}
	}
	return nil
}
