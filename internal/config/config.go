// Package config provides centralized configuration management for the application.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration parameters for the application.
type Config struct {
	Jira     JiraConfig
	Obsidian ObsidianConfig
	Sync     SyncConfig
}

// JiraConfig holds JIRA specific configuration.
type JiraConfig struct {
	Server   string
	Email    string
	APIToken string
	Projects []string
}

// ObsidianConfig holds Obsidian Local REST API specific configuration.
type ObsidianConfig struct {
	APIURL         string
	APIKey         string
	Folder         string
	UpdateExisting bool
}

// SyncConfig holds sync-engine specific configuration.
type SyncConfig struct {
	// StateFile overrides the default state file location when non-empty.
	StateFile string
}

// LoadConfig initializes and loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	// Initialize Viper for environment variables
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Map specific environment variables
	v.BindEnv("jira.server", "JIRA_SERVER")
	v.BindEnv("jira.email", "JIRA_EMAIL")
	v.BindEnv("jira.token", "JIRA_API_TOKEN")
	v.BindEnv("jira.projects", "JIRA_PROJECTS")
	v.BindEnv("obsidian.api_url", "OBSIDIAN_API_URL")
	v.BindEnv("obsidian.api_key", "OBSIDIAN_API_KEY")
	v.BindEnv("obsidian.folder", "OBSIDIAN_FOLDER")
	v.BindEnv("obsidian.update_existing", "UPDATE_EXISTING_NOTES")
	v.BindEnv("sync.state_file", "OBSYNC_STATE_FILE")

	v.SetDefault("obsidian.api_url", "http://localhost:27123")
	v.SetDefault("obsidian.folder", "JIRA")
	v.SetDefault("obsidian.update_existing", true)

	// Create config structure
	config := &Config{
		Jira: JiraConfig{
			Server:   strings.TrimRight(v.GetString("jira.server"), "/"),
			Email:    v.GetString("jira.email"),
			APIToken: v.GetString("jira.token"),
			Projects: splitProjects(v.GetString("jira.projects")),
		},
		Obsidian: ObsidianConfig{
			APIURL:         strings.TrimRight(v.GetString("obsidian.api_url"), "/"),
			APIKey:         v.GetString("obsidian.api_key"),
			Folder:         v.GetString("obsidian.folder"),
			UpdateExisting: v.GetBool("obsidian.update_existing"),
		},
		Sync: SyncConfig{
			StateFile: v.GetString("sync.state_file"),
		},
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// splitProjects parses the comma-separated JIRA_PROJECTS value into a list of
// project keys, dropping empty entries.
func splitProjects(raw string) []string {
	var projects []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			projects = append(projects, trimmed)
		}
	}
	return projects
}

// validateConfig ensures that all required configuration values are provided.
func validateConfig(config *Config) error {
	var missingVars []string

	if config.Jira.Server == "" {
		missingVars = append(missingVars, "JIRA_SERVER")
	}
	if config.Jira.Email == "" {
		missingVars = append(missingVars, "JIRA_EMAIL")
	}
	if config.Jira.APIToken == "" {
		missingVars = append(missingVars, "JIRA_API_TOKEN")
	}
	if len(config.Jira.Projects) == 0 {
		missingVars = append(missingVars, "JIRA_PROJECTS")
	}
	if config.Obsidian.APIKey == "" {
		missingVars = append(missingVars, "OBSIDIAN_API_KEY")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}
