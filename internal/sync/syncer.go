package sync

import (
	"fmt"
	"time"

	"github.com/danielolaszy/obsync/internal/logging"
	"github.com/danielolaszy/obsync/internal/state"
	"github.com/danielolaszy/obsync/pkg/models"
)

// Syncer drives one sync run end to end: fetch strategy selection, per-ticket
// reconciliation with error isolation, and the end-of-run watermark commit.
//
// A Syncer owns its state store for the duration of a run and processes
// tickets strictly sequentially; concurrent runs against the same state file
// must be prevented by the caller (see state.Store.Lock).
type Syncer struct {
	tickets  TicketSource
	notes    NoteStore
	state    *state.Store
	engine   *Engine
	renderer Renderer
	folder   string

	// now is the clock used for the watermark; swapped out in tests.
	now func() time.Time
}

// NewSyncer wires a sync run from already-constructed collaborators.
func NewSyncer(tickets TicketSource, notes NoteStore, renderer Renderer, st *state.Store, folder string, updateExisting bool, vaultBaseURL string) *Syncer {
	return &Syncer{
		tickets:  tickets,
		notes:    notes,
		state:    st,
		engine:   NewEngine(notes, renderer, folder, updateExisting, vaultBaseURL),
		renderer: renderer,
		folder:   folder,
		now:      time.Now,
	}
}

// Sync performs one synchronization run.
//
// Per-ticket failures are recorded in the report and never abort the run;
// only a total fetch failure or a state-save failure during commit returns a
// non-nil error. The watermark advances only when the run had zero errors
// and was not a dry run, so a failed run's next attempt re-fetches from the
// old watermark and idempotent reconciliation absorbs the overlap.
func (s *Syncer) Sync(dryRun, fullSync bool) (*models.SyncReport, error) {
	report := &models.SyncReport{DryRun: dryRun}
	runStart := s.now()

	// No side effects are permitted in dry-run mode, folder creation included.
	if !dryRun {
		if err := s.notes.EnsureFolder(s.folder); err != nil {
			// Racing an already-existing folder is harmless; a genuinely
			// missing folder will surface as per-ticket write failures.
			logging.Warn("failed to ensure destination folder", "folder", s.folder, "error", err)
		}
	}

	tickets, err := s.fetch(fullSync)
	if err != nil {
		msg := fmt.Sprintf("sync failed: %v", err)
		report.Errors = append(report.Errors, msg)
		return report, fmt.Errorf("failed to fetch tickets: %w", err)
	}

	report.TicketsFound = len(tickets)
	if len(tickets) == 0 {
		logging.Info("no active tickets found")
		return report, nil
	}

	for _, ticket := range tickets {
		outcome, action := s.engine.Reconcile(ticket, dryRun)
		if action != nil {
			report.DryRunActions = append(report.DryRunActions, *action)
		}

		switch outcome.Action {
		case models.ActionCreated:
			report.NotesCreated++
		case models.ActionUpdated, models.ActionUpdatedAndRenamed:
			report.NotesUpdated++
		case models.ActionSkipped:
			logging.Debug("skipped ticket", "ticket", ticket.Key, "reason", outcome.Reason)
			continue
		case models.ActionFailed:
			report.Errors = append(report.Errors,
				fmt.Sprintf("error processing ticket %s: %s", ticket.Key, outcome.Reason))
			continue
		}

		// Each ticket's state entry advances as soon as its write succeeds;
		// only the run-level watermark waits for the end of the run.
		if !dryRun {
			s.state.UpsertTicket(ticket.Key, ticket.Updated, outcome.Path)
		}
	}

	if !fullSync && !dryRun && report.Success() {
		s.logUnseenTracked(tickets)
	}

	if report.Success() && !dryRun {
		s.state.SetLastSyncTime(runStart)
		if err := s.state.Save(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("failed to persist sync state: %v", err))
			return report, fmt.Errorf("failed to persist sync state: %w", err)
		}
		logging.Info("updated sync state", "last_sync", runStart.UTC().Format(time.RFC3339))
	}

	return report, nil
}

// fetch selects the fetch strategy for this run. A full sync clears state
// first; an incremental run without a prior watermark bootstraps as a full
// fetch.
func (s *Syncer) fetch(fullSync bool) ([]models.TicketSnapshot, error) {
	if fullSync {
		s.state.Clear()
		logging.Info("performing full sync, fetching all open tickets")
		return s.tickets.AllOpenTickets()
	}

	lastSync, ok := s.state.LastSyncTime()
	if !ok {
		logging.Info("no previous sync found, performing initial full sync")
		return s.tickets.AllOpenTickets()
	}

	logging.Info("fetching tickets updated since last sync",
		"since", lastSync.Format("2006-01-02 15:04"))
	return s.tickets.UpdatedTickets(lastSync)
}

// logUnseenTracked notes tracked tickets absent from an incremental result.
// They most likely moved to a terminal status between runs; they stay
// tracked and their notes are left alone.
func (s *Syncer) logUnseenTracked(fetched []models.TicketSnapshot) {
	seen := make(map[string]struct{}, len(fetched))
	for _, t := range fetched {
		seen[t.Key] = struct{}{}
	}

	unseen := 0
	for key := range s.state.TrackedTickets() {
		if _, ok := seen[key]; ok {
			continue
		}
		unseen++
		logging.Debug("tracked ticket not in recent updates, may be done or unchanged", "ticket", key)
	}
	if unseen > 0 {
		logging.Info("tracked tickets absent from incremental fetch", "count", unseen)
	}
}

// SyncOne fetches a single ticket by key and writes its note unconditionally,
// ignoring the update-existing policy. It bypasses the incremental machinery
// entirely and never touches the stored watermark.
func (s *Syncer) SyncOne(key string) models.SyncOneReport {
	report := models.SyncOneReport{}

	ticket, err := s.tickets.TicketByKey(key)
	if err != nil {
		report.Error = fmt.Sprintf("failed to fetch ticket %s: %v", key, err)
		return report
	}
	if ticket == nil {
		report.Error = fmt.Sprintf("ticket %s not found", key)
		return report
	}
	report.TicketFound = true

	title, content := s.renderer.FormatNote(*ticket)
	notePath := fmt.Sprintf("%s/%s.md", s.folder, title)

	exists := s.notes.NoteExists(notePath)
	if err := s.notes.SaveNote(notePath, content); err != nil {
		report.Error = fmt.Sprintf("failed to save note to Obsidian: %v", err)
		return report
	}

	if exists {
		report.NoteUpdated = true
	} else {
		report.NoteCreated = true
	}
	logging.Info("synced single ticket", "ticket", key, "path", notePath, "created", report.NoteCreated)
	return report
}
