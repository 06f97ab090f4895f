package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/obsync/internal/config"
	"github.com/danielolaszy/obsync/internal/format"
	"github.com/danielolaszy/obsync/internal/jira"
	"github.com/danielolaszy/obsync/internal/logging"
	"github.com/danielolaszy/obsync/internal/obsidian"
	"github.com/danielolaszy/obsync/internal/state"
	syncpkg "github.com/danielolaszy/obsync/internal/sync"
	"github.com/danielolaszy/obsync/pkg/models"
)

// syncCmd performs one synchronization run (or a single-ticket sync).
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize JIRA tickets into the Obsidian vault",
	Long: `Synchronize JIRA tickets into the Obsidian vault as Markdown notes.

By default only tickets updated since the last successful run are fetched.
The first run (or a run with --full) fetches every open ticket.

Examples:
  obsync sync                  incremental sync
  obsync sync --full           re-sync everything, discarding saved state
  obsync sync --dry-run        show intended actions without writing
  obsync sync --ticket PROJ-1  sync exactly one ticket, ignoring state`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry-run")
		if err != nil {
			return err
		}
		fullSync, err := cmd.Flags().GetBool("full")
		if err != nil {
			return err
		}
		ticketKey, err := cmd.Flags().GetString("ticket")
		if err != nil {
			return err
		}
		stateFile, err := cmd.Flags().GetString("state-file")
		if err != nil {
			return err
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}
		if stateFile == "" {
			stateFile = cfg.Sync.StateFile
		}

		syncer, st, err := buildSyncer(cfg, stateFile)
		if err != nil {
			return err
		}

		// One run owns the state file exclusively; a concurrent run would
		// race on load/save.
		if err := st.Lock(context.Background()); err != nil {
			return err
		}
		defer st.Unlock()

		if ticketKey != "" {
			return runSyncOne(syncer, ticketKey)
		}
		return runSync(syncer, dryRun, fullSync)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().String("ticket", "", "sync a single ticket by key (e.g., PROJ-123)")
	syncCmd.Flags().Bool("dry-run", false, "show what would be done without writing to the vault")
	syncCmd.Flags().Bool("full", false, "ignore saved state and re-sync all open tickets")
	syncCmd.Flags().String("state-file", "", "override the state file location")
}

// buildSyncer constructs the sync collaborators from configuration.
func buildSyncer(cfg *config.Config, stateFile string) (*syncpkg.Syncer, *state.Store, error) {
	jiraClient, err := jira.NewClient(cfg.Jira)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize jira client: %v", err)
	}

	obsidianClient := obsidian.NewClient(cfg.Obsidian)
	formatter := format.NewFormatter(cfg.Jira.Server)

	st, err := state.Open(stateFile)
	if err != nil {
		return nil, nil, err
	}

	syncer := syncpkg.NewSyncer(
		jiraClient,
		obsidianClient,
		formatter,
		st,
		cfg.Obsidian.Folder,
		cfg.Obsidian.UpdateExisting,
		cfg.Obsidian.APIURL,
	)
	return syncer, st, nil
}

// runSync executes a full or incremental run and reports the result.
func runSync(syncer *syncpkg.Syncer, dryRun, fullSync bool) error {
	logging.Info("starting synchronization", "dry_run", dryRun, "full", fullSync)

	report, err := syncer.Sync(dryRun, fullSync)
	if err != nil {
		return err
	}

	printReport(report)

	if !report.Success() {
		return fmt.Errorf("sync completed with %d error(s)", len(report.Errors))
	}
	return nil
}

// runSyncOne syncs exactly one ticket.
func runSyncOne(syncer *syncpkg.Syncer, key string) error {
	logging.Info("syncing single ticket", "ticket", key)

	report := syncer.SyncOne(key)
	if report.Error != "" {
		return fmt.Errorf("failed to sync ticket %s: %s", key, report.Error)
	}

	switch {
	case report.NoteCreated:
		fmt.Printf("Created note for %s\n", key)
	case report.NoteUpdated:
		fmt.Printf("Updated note for %s\n", key)
	}
	return nil
}

// printReport writes the run summary to stdout.
func printReport(report *models.SyncReport) {
	mode := "sync"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Printf("Completed %s: %d ticket(s) found, %d note(s) created, %d note(s) updated\n",
		mode, report.TicketsFound, report.NotesCreated, report.NotesUpdated)

	for _, action := range report.DryRunActions {
		if action.OldFilePath != "" {
			fmt.Printf("  [%s] %s: %s -> %s (%d bytes)\n",
				action.Action, action.Ticket, action.OldFilePath, action.FilePath, action.ContentLength)
		} else {
			fmt.Printf("  [%s] %s: %s (%d bytes)\n",
				action.Action, action.Ticket, action.FilePath, action.ContentLength)
		}
	}

	for _, msg := range report.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
}
