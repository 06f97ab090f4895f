package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/obsync/internal/config"
	"github.com/danielolaszy/obsync/internal/jira"
	"github.com/danielolaszy/obsync/internal/obsidian"
)

// listTicketsCmd prints the open tickets that a sync run would consider.
var listTicketsCmd = &cobra.Command{
	Use:   "list-tickets",
	Short: "List open JIRA tickets in the configured projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := cmd.Flags().GetString("project")
		if err != nil {
			return err
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}
		if project != "" {
			cfg.Jira.Projects = []string{project}
		}

		jiraClient, err := jira.NewClient(cfg.Jira)
		if err != nil {
			return fmt.Errorf("failed to initialize jira client: %v", err)
		}

		tickets, err := jiraClient.AllOpenTickets()
		if err != nil {
			return fmt.Errorf("failed to fetch tickets: %v", err)
		}

		if len(tickets) == 0 {
			fmt.Println("No tickets found in configured projects")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tPRIORITY\tSTATUS\tASSIGNEE\tSUMMARY")
		for _, t := range tickets {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.Key, t.Priority, t.Status, t.Assignee, t.Title)
		}
		w.Flush()

		fmt.Printf("\n%d ticket(s) total\n", len(tickets))
		return nil
	},
}

// listNotesCmd prints the notes currently in the vault's sync folder.
var listNotesCmd = &cobra.Command{
	Use:   "list-notes",
	Short: "List notes in the vault's sync folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := cmd.Flags().GetString("folder")
		if err != nil {
			return err
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}
		if folder == "" {
			folder = cfg.Obsidian.Folder
		}

		obsidianClient := obsidian.NewClient(cfg.Obsidian)
		notes, err := obsidianClient.ListNotes(folder)
		if err != nil {
			return fmt.Errorf("failed to list notes: %v", err)
		}

		if len(notes) == 0 {
			fmt.Printf("No notes found in %q\n", folder)
			return nil
		}

		for _, note := range notes {
			fmt.Println(note.Path)
		}
		fmt.Printf("\n%d note(s) total\n", len(notes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listTicketsCmd)
	rootCmd.AddCommand(listNotesCmd)

	listTicketsCmd.Flags().StringP("project", "p", "", "filter by a specific project key (e.g., PROJ)")
	listNotesCmd.Flags().String("folder", "", "vault folder to list (default: configured folder)")
}
