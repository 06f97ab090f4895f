package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/obsync/internal/config"
	"github.com/danielolaszy/obsync/internal/jira"
	"github.com/danielolaszy/obsync/internal/obsidian"
)

// testConnectionsCmd verifies that both JIRA and the Obsidian REST API are
// reachable with the configured credentials.
var testConnectionsCmd = &cobra.Command{
	Use:   "test-connections",
	Short: "Test connections to JIRA and Obsidian",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		jiraClient, err := jira.NewClient(cfg.Jira)
		if err != nil {
			return fmt.Errorf("failed to initialize jira client: %v", err)
		}
		obsidianClient := obsidian.NewClient(cfg.Obsidian)

		jiraStatus := jiraClient.TestConnection()
		if jiraStatus.Connected {
			fmt.Println("JIRA: connected")
			fmt.Printf("  user: %s\n", jiraStatus.User)
			fmt.Printf("  accessible projects: %s\n", strings.Join(jiraStatus.AccessibleProjects, ", "))
			if len(jiraStatus.InaccessibleProjects) > 0 {
				fmt.Printf("  inaccessible projects: %s\n", strings.Join(jiraStatus.InaccessibleProjects, ", "))
			}
		} else {
			fmt.Printf("JIRA: connection failed: %s\n", jiraStatus.Error)
		}

		obsidianStatus := obsidianClient.TestConnection()
		switch {
		case obsidianStatus.Connected && obsidianStatus.Authenticated:
			fmt.Println("Obsidian: connected and authenticated")
			fmt.Printf("  folder %q exists: %t\n", obsidianStatus.FolderPath, obsidianStatus.FolderExists)
		case obsidianStatus.Connected:
			fmt.Printf("Obsidian: connected but not authenticated: %s\n", obsidianStatus.Error)
		default:
			fmt.Printf("Obsidian: connection failed: %s\n", obsidianStatus.Error)
		}

		if !jiraStatus.Connected || !obsidianStatus.Connected || !obsidianStatus.Authenticated {
			return fmt.Errorf("some connections failed, check your configuration")
		}

		fmt.Println("All connections successful")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testConnectionsCmd)
}
