package sync

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/obsync/internal/state"
	"github.com/danielolaszy/obsync/pkg/models"
)

func newTestState(t *testing.T) *state.Store {
	t.Helper()
	st, err := state.Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return st
}

func newTestSyncer(t *testing.T, source *fakeTicketSource, store *fakeNoteStore) (*Syncer, *state.Store) {
	t.Helper()
	st := newTestState(t)
	syncer := NewSyncer(source, store, stubRenderer{}, st, "JIRA", true, "http://localhost:27123")
	return syncer, st
}

func TestSyncEmptyFetch(t *testing.T) {
	source := &fakeTicketSource{}
	store := newFakeNoteStore()
	syncer, st := newTestSyncer(t, source, store)

	report, err := syncer.Sync(false, false)
	require.NoError(t, err)

	assert.Equal(t, 0, report.TicketsFound)
	assert.Equal(t, 0, report.NotesCreated)
	assert.Equal(t, 0, report.NotesUpdated)
	assert.Empty(t, report.Errors)
	assert.True(t, report.Success())

	// Nothing was processed, so nothing was committed.
	_, ok := st.LastSyncTime()
	assert.False(t, ok)
}

func TestSyncBootstrapBehavesAsFullFetch(t *testing.T) {
	source := &fakeTicketSource{
		open: []models.TicketSnapshot{newTicket("PROJ-1", "One")},
	}
	store := newFakeNoteStore()
	syncer, _ := newTestSyncer(t, source, store)

	// No prior watermark and full=false must still fetch everything.
	report, err := syncer.Sync(false, false)
	require.NoError(t, err)

	assert.Equal(t, 1, source.allCalls)
	assert.Equal(t, 0, source.updatedCalls)
	assert.Equal(t, 1, report.NotesCreated)
}

func TestSyncIncrementalUsesWatermark(t *testing.T) {
	source := &fakeTicketSource{
		updated: []models.TicketSnapshot{newTicket("PROJ-2", "Two")},
	}
	store := newFakeNoteStore()
	syncer, st := newTestSyncer(t, source, store)

	watermark := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	st.SetLastSyncTime(watermark)

	report, err := syncer.Sync(false, false)
	require.NoError(t, err)

	assert.Equal(t, 0, source.allCalls)
	assert.Equal(t, 1, source.updatedCalls)
	assert.True(t, source.lastSince.Equal(watermark))
	assert.Equal(t, 1, report.NotesCreated)
}

func TestSyncFullClearsStateFirst(t *testing.T) {
	source := &fakeTicketSource{
		open: []models.TicketSnapshot{newTicket("PROJ-1", "One")},
	}
	store := newFakeNoteStore()
	syncer, st := newTestSyncer(t, source, store)

	st.SetLastSyncTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	st.UpsertTicket("PROJ-9", "2024-02-01T00:00:00.000+0000", "JIRA/PROJ-9 Gone.md")

	_, err := syncer.Sync(false, true)
	require.NoError(t, err)

	assert.Equal(t, 1, source.allCalls, "full sync must fetch all open tickets")
	_, tracked := st.Ticket("PROJ-9")
	assert.False(t, tracked, "full sync must clear previously tracked tickets")
	_, tracked = st.Ticket("PROJ-1")
	assert.True(t, tracked)
}

func TestSyncCommitsWatermarkOnSuccess(t *testing.T) {
	source := &fakeTicketSource{
		open: []models.TicketSnapshot{newTicket("PROJ-1", "One")},
	}
	store := newFakeNoteStore()
	syncer, st := newTestSyncer(t, source, store)

	runStart := time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)
	syncer.now = func() time.Time { return runStart }

	report, err := syncer.Sync(false, false)
	require.NoError(t, err)
	require.True(t, report.Success())

	got, ok := st.LastSyncTime()
	require.True(t, ok)
	assert.True(t, got.Equal(runStart), "watermark must be the run's start time")
}

func TestSyncWatermarkIsMonotonic(t *testing.T) {
	source := &fakeTicketSource{
		open:    []models.TicketSnapshot{newTicket("PROJ-1", "One")},
		updated: []models.TicketSnapshot{newTicket("PROJ-1", "One")},
	}
	store := newFakeNoteStore()
	syncer, st := newTestSyncer(t, source, store)

	starts := []time.Time{
		time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
	}

	var previous time.Time
	for _, start := range starts {
		syncer.now = func() time.Time { return start }
		report, err := syncer.Sync(false, false)
		require.NoError(t, err)
		require.True(t, report.Success())

		got, ok := st.LastSyncTime()
		require.True(t, ok)
		assert.True(t, got.Equal(start))
		assert.False(t, got.Before(previous), "watermark must never decrease")
		previous = got
	}
}

func TestSyncDoesNotCommitOnPerTicketFailure(t *testing.T) {
	source := &fakeTicketSource{
		open: []models.TicketSnapshot{
			newTicket("PROJ-1", "Good"),
			newTicket("PROJ-2", "Bad"),
		},
	}
	store := newFakeNoteStore()
	store.saveErrFor["JIRA/PROJ-2 Bad.md"] = errors.New("boom")
	syncer, st := newTestSyncer(t, source, store)

	report, err := syncer.Sync(false, false)
	require.NoError(t, err, "per-ticket failures must not abort the run")

	assert.Equal(t, 2, report.TicketsFound)
	assert.Equal(t, 1, report.NotesCreated)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "PROJ-2")
	assert.False(t, report.Success())

	// The succeeding ticket was still written and tracked...
	assert.True(t, store.NoteExists("JIRA/PROJ-1 Good.md"))
	_, tracked := st.Ticket("PROJ-1")
	assert.True(t, tracked)

	// ...but the watermark did not advance.
	_, ok := st.LastSyncTime()
	assert.False(t, ok)
	_, tracked = st.Ticket("PROJ-2")
	assert.False(t, tracked, "failed ticket's state must not advance")
}

func TestSyncFetchErrorIsFatal(t *testing.T) {
	source := &fakeTicketSource{openErr: errors.New("jira unreachable")}
	store := newFakeNoteStore()
	syncer, st := newTestSyncer(t, source, store)

	report, err := syncer.Sync(false, false)
	require.Error(t, err)
	assert.Equal(t, 0, report.TicketsFound)
	assert.False(t, report.Success())
	assert.Zero(t, store.saveCalls)

	_, ok := st.LastSyncTime()
	assert.False(t, ok)
}

func TestSyncDryRunIsPure(t *testing.T) {
	source := &fakeTicketSource{
		open: []models.TicketSnapshot{
			newTicket("PROJ-1", "One"),
			newTicket("PROJ-2", "Two"),
		},
	}
	store := newFakeNoteStore()
	store.notes["JIRA/PROJ-2 Old.md"] = "old"
	syncer, st := newTestSyncer(t, source, store)

	report, err := syncer.Sync(true, false)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.NotesCreated)
	assert.Equal(t, 1, report.NotesUpdated)
	assert.Len(t, report.DryRunActions, 2)

	assert.Zero(t, store.mutations(), "dry run must not mutate the vault")
	_, ok := st.LastSyncTime()
	assert.False(t, ok, "dry run must not advance the watermark")
	assert.Empty(t, st.TrackedTickets(), "dry run must not track tickets")
}

func TestSyncEnsuresFolderOnlyInLiveMode(t *testing.T) {
	source := &fakeTicketSource{}
	store := newFakeNoteStore()
	syncer, _ := newTestSyncer(t, source, store)

	_, err := syncer.Sync(true, false)
	require.NoError(t, err)
	assert.Zero(t, store.ensureCalls)

	_, err = syncer.Sync(false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, store.ensureCalls)
}

func TestSyncFolderEnsureFailureIsNonFatal(t *testing.T) {
	source := &fakeTicketSource{
		open: []models.TicketSnapshot{newTicket("PROJ-1", "One")},
	}
	store := newFakeNoteStore()
	store.ensureErr = errors.New("folder race")
	syncer, _ := newTestSyncer(t, source, store)

	report, err := syncer.Sync(false, false)
	require.NoError(t, err)
	assert.True(t, report.Success())
	assert.Equal(t, 1, report.NotesCreated)
}

func TestSyncTracksTicketState(t *testing.T) {
	ticket := newTicket("PROJ-1", "One")
	source := &fakeTicketSource{open: []models.TicketSnapshot{ticket}}
	store := newFakeNoteStore()
	syncer, st := newTestSyncer(t, source, store)

	_, err := syncer.Sync(false, false)
	require.NoError(t, err)

	tracked, ok := st.Ticket("PROJ-1")
	require.True(t, ok)
	assert.Equal(t, ticket.Updated, tracked.Updated)
	assert.Equal(t, "JIRA/PROJ-1 One.md", tracked.FilePath)

	// Re-syncing the unchanged ticket must not regress the tracked timestamp.
	source.updated = []models.TicketSnapshot{ticket}
	_, err = syncer.Sync(false, false)
	require.NoError(t, err)

	after, ok := st.Ticket("PROJ-1")
	require.True(t, ok)
	assert.Equal(t, tracked.Updated, after.Updated)
	assert.False(t, st.IsNewer("PROJ-1", ticket.Updated))
}

func TestSyncOneCreatesAndUpdates(t *testing.T) {
	ticket := newTicket("PROJ-7", "Single")
	source := &fakeTicketSource{
		byKey: map[string]models.TicketSnapshot{"PROJ-7": ticket},
	}
	store := newFakeNoteStore()
	syncer, st := newTestSyncer(t, source, store)

	report := syncer.SyncOne("PROJ-7")
	assert.True(t, report.TicketFound)
	assert.True(t, report.NoteCreated)
	assert.False(t, report.NoteUpdated)
	assert.Empty(t, report.Error)

	report = syncer.SyncOne("PROJ-7")
	assert.True(t, report.TicketFound)
	assert.False(t, report.NoteCreated)
	assert.True(t, report.NoteUpdated)

	// Single-ticket syncs never touch the watermark.
	_, ok := st.LastSyncTime()
	assert.False(t, ok)
}

func TestSyncOneMissingTicket(t *testing.T) {
	source := &fakeTicketSource{byKey: map[string]models.TicketSnapshot{}}
	store := newFakeNoteStore()
	syncer, _ := newTestSyncer(t, source, store)

	report := syncer.SyncOne("PROJ-404")
	assert.False(t, report.TicketFound)
	assert.Contains(t, report.Error, "not found")
	assert.Zero(t, store.saveCalls)
}

func TestSyncOneIgnoresUpdateExistingPolicy(t *testing.T) {
	ticket := newTicket("PROJ-7", "Single")
	source := &fakeTicketSource{
		byKey: map[string]models.TicketSnapshot{"PROJ-7": ticket},
	}
	store := newFakeNoteStore()
	store.notes["JIRA/PROJ-7 Single.md"] = "old"

	st := newTestState(t)
	syncer := NewSyncer(source, store, stubRenderer{}, st, "JIRA", false, "http://localhost:27123")

	report := syncer.SyncOne("PROJ-7")
	assert.True(t, report.NoteUpdated)
	assert.NotEqual(t, "old", store.notes["JIRA/PROJ-7 Single.md"])
}
