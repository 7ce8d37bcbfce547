/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mikeb26/clubnight/roster"
	"github.com/mikeb26/clubnight/schedule"
)

// PlayerConfig is one roster entry in the YAML config.
type PlayerConfig struct {
	Name   string  `yaml:"name"`
	Gender string  `yaml:"gender"`
	Mu     float64 `yaml:"mu,omitempty"`
	Sigma  float64 `yaml:"sigma,omitempty"`
	Team   string  `yaml:"team,omitempty"`
}

// Config describes a club night: the roster, court count, and optimizer
// weights. Zero-value weights fall back to the defaults.
type Config struct {
	Name    string            `yaml:"name"`
	Courts  int               `yaml:"courts"`
	Doubles *bool             `yaml:"doubles,omitempty"`
	Rounds  int               `yaml:"rounds,omitempty"`
	Weights *schedule.Weights `yaml:"weights,omitempty"`
	Players []PlayerConfig    `yaml:"players"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %v: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %v: %w", path, err)
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("config %v: missing session name", path)
	}
	if cfg.Courts < 1 {
		return nil, fmt.Errorf("config %v: courts must be at least 1", path)
	}
	if len(cfg.Players) == 0 {
		return nil, fmt.Errorf("config %v: empty roster", path)
	}
	return &cfg, nil
}

func (cfg *Config) isDoubles() bool {
	if cfg.Doubles == nil {
		return true
	}
	return *cfg.Doubles
}

func (cfg *Config) weights() schedule.Weights {
	if cfg.Weights == nil {
		return schedule.DefaultWeights()
	}
	return *cfg.Weights
}

// parseGender maps a config or flag value onto the two roster genders.
func parseGender(name, value string) (roster.Gender, error) {
	g := roster.Gender(value)
	if g != roster.Male && g != roster.Female {
		return "", fmt.Errorf("player %v: gender must be %q or %q",
			name, roster.Male, roster.Female)
	}
	return g, nil
}

func (cfg *Config) roster() ([]*roster.Player, error) {
	players := make([]*roster.Player, 0, len(cfg.Players))
	for _, pc := range cfg.Players {
		if pc.Name == "" {
			return nil, fmt.Errorf("roster entry with no name")
		}
		g, err := parseGender(pc.Name, pc.Gender)
		if err != nil {
			return nil, err
		}
		players = append(players, &roster.Player{
			Name:     pc.Name,
			Gender:   g,
			Mu:       pc.Mu,
			Sigma:    pc.Sigma,
			TeamName: pc.Team,
		})
	}
	return players, nil
}
