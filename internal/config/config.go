// Package config holds the pipeline's configurable enumerations: valid
// dispatch statuses, the status→skill routing map, registry domains, run
// modes, and the semantic section keyword list. The built-in defaults match
// the shipped contract; a YAML file can widen any of the sets without a
// rebuild, so new statuses or domains are configuration, not code changes.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dispatch status values the default contract ships with.
const (
	StatusFactFindReady  = "fact_find_ready"
	StatusBriefingReady  = "briefing_ready"
	StatusAutoExecuted   = "auto_executed"
	StatusLoggedNoAction = "logged_no_action"
)

// Run modes.
const (
	ModeTrial = "trial"
	ModeLive  = "live"
)

// Config holds all configurable pipeline parameters.
type Config struct {
	// Modes a packet or orchestrator run may carry.
	Modes []string `yaml:"modes"`
	// Statuses is the full set of valid dispatch statuses.
	Statuses []string `yaml:"statuses"`
	// ReservedStatuses are valid but must never reach the routing adapter.
	ReservedStatuses []string `yaml:"reserved_statuses"`
	// Routes maps a routable status to the downstream skill it invokes.
	Routes map[string]string `yaml:"routes"`
	// Domains is the registry v2 domain enumeration.
	Domains []string `yaml:"domains"`
	// SemanticKeywords classify a changed section as semantically material;
	// matching is case-insensitive substring.
	SemanticKeywords []string `yaml:"semantic_keywords"`
	// DeliverableFamily is stamped on fact-find packets.
	DeliverableFamily string `yaml:"deliverable_family"`
}

// Default returns the built-in configuration matching the shipped contract.
func Default() *Config {
	return &Config{
		Modes:    []string{ModeTrial, ModeLive},
		Statuses: []string{StatusFactFindReady, StatusBriefingReady, StatusAutoExecuted, StatusLoggedNoAction},
		ReservedStatuses: []string{
			StatusAutoExecuted,
		},
		Routes: map[string]string{
			StatusFactFindReady: "fact-find",
			StatusBriefingReady: "briefing",
		},
		Domains: []string{"ASSESSMENT", "MARKET", "SELL", "PRODUCTS", "LOGISTICS", "LEGAL", "STRATEGY", "BOS"},
		SemanticKeywords: []string{
			"icp",
			"pricing",
			"positioning",
			"channel strategy",
			"target customer",
			"value proposition",
		},
		DeliverableFamily: "business-artifact",
	}
}

// Load reads a YAML config file and overlays it on the defaults. Empty
// sections keep their default values.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads the config and returns the SHA-256 of the file contents,
// so callers can record which configuration produced a decision.
func LoadWithHash(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, "", fmt.Errorf("config: %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	return cfg, "sha256:" + hex.EncodeToString(sum[:]), nil
}

func (c *Config) validate() error {
	if len(c.Modes) == 0 {
		return fmt.Errorf("modes must not be empty")
	}
	if len(c.Statuses) == 0 {
		return fmt.Errorf("statuses must not be empty")
	}
	for status := range c.Routes {
		if !c.ValidStatus(status) {
			return fmt.Errorf("routes references unknown status %q", status)
		}
	}
	return nil
}

// ValidMode reports whether mode is a configured run mode.
func (c *Config) ValidMode(mode string) bool {
	return contains(c.Modes, mode)
}

// ValidStatus reports whether status is a configured dispatch status.
func (c *Config) ValidStatus(status string) bool {
	return contains(c.Statuses, status)
}

// ReservedStatus reports whether status is valid but unroutable by policy.
func (c *Config) ReservedStatus(status string) bool {
	return contains(c.ReservedStatuses, status)
}

// ValidDomain reports whether domain is a configured registry domain.
func (c *Config) ValidDomain(domain string) bool {
	return contains(c.Domains, domain)
}

// RouteFor returns the downstream skill for a routable status, or "" when the
// status has no route.
func (c *Config) RouteFor(status string) string {
	return c.Routes[status]
}

// ValidRoute reports whether skill is a configured routing target.
func (c *Config) ValidRoute(skill string) bool {
	for _, s := range c.Routes {
		if s == skill {
			return true
		}
	}
	return false
}

// SemanticMatch reports whether a changed-section name contains any of the
// configured semantic keywords (case-insensitive).
func (c *Config) SemanticMatch(section string) bool {
	lower := strings.ToLower(section)
	for _, kw := range c.SemanticKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
