// Package models defines data structures shared across the application.
package models

// Comment represents a single comment on a JIRA ticket.
type Comment struct {
	// Author is the display name of the comment's author
	Author string

	// Created is the comment's creation timestamp as returned by JIRA
	Created string

	// Body is the raw comment text
	Body string
}

// TicketSnapshot represents the state of a JIRA ticket at fetch time.
// Snapshots are immutable once fetched; the Key+Updated pair is what the
// sync core uses for change detection.
type TicketSnapshot struct {
	// Key is the full JIRA ticket identifier (e.g., "PROJ-123")
	Key string

	// Project is the JIRA project key (e.g., "PROJ")
	Project string

	// Title is the ticket's summary field
	Title string

	// Description is the full body text of the ticket
	Description string

	// Assignee is the assignee's display name, or "Unassigned"
	Assignee string

	// Reporter is the reporter's display name, or "Unknown"
	Reporter string

	// Priority is the priority name, or "None"
	Priority string

	// Status is the current workflow status name
	Status string

	// Created is the creation timestamp as returned by JIRA (ISO-8601)
	Created string

	// Updated is the last-update timestamp as returned by JIRA (ISO-8601)
	Updated string

	// DueDate is the due date if set, empty otherwise
	DueDate string

	// StoryPoints is the estimate if set, nil otherwise
	StoryPoints *float64

	// Sprint is the active sprint name if any, empty otherwise
	Sprint string

	// Comments holds the ticket's comments in chronological order
	Comments []Comment
}

// NoteInfo identifies a single note inside the vault.
type NoteInfo struct {
	// Name is the filename including the .md extension
	Name string

	// Path is the vault-relative path to the note
	Path string
}

// ReconcileAction classifies the outcome of reconciling one ticket.
type ReconcileAction int

const (
	// ActionCreated means a new note was (or would be) written.
	ActionCreated ReconcileAction = iota

	// ActionUpdated means an existing note was (or would be) overwritten in place.
	ActionUpdated

	// ActionUpdatedAndRenamed means the note content was refreshed and the
	// note moved to a new path because the ticket's title changed.
	ActionUpdatedAndRenamed

	// ActionSkipped means the note exists and the update-existing policy
	// forbids touching it.
	ActionSkipped

	// ActionFailed means the write or rename did not complete.
	ActionFailed
)

// String returns the human-readable tag used in logs and dry-run output.
func (a ReconcileAction) String() string {
	switch a {
	case ActionCreated:
		return "CREATE"
	case ActionUpdated:
		return "UPDATE"
	case ActionUpdatedAndRenamed:
		return "UPDATE + RENAME"
	case ActionSkipped:
		return "SKIP"
	case ActionFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ReconcileOutcome is the per-ticket result of one reconciliation pass.
type ReconcileOutcome struct {
	// Action is the classification tag
	Action ReconcileAction

	// Path is the canonical note path the ticket maps to
	Path string

	// OldPath is the previous note path when Action is ActionUpdatedAndRenamed
	OldPath string

	// Reason carries the skip reason or failure message
	Reason string
}

// DryRunAction describes the vault mutation a live run would have performed.
type DryRunAction struct {
	// Action is the would-be classification tag (CREATE / UPDATE / UPDATE + RENAME)
	Action string

	// Ticket is the JIRA ticket key
	Ticket string

	// FilePath is the canonical note path that would be written
	FilePath string

	// OldFilePath is the current path when a rename would occur, empty otherwise
	OldFilePath string

	// Endpoint is the full API URL the write would target
	Endpoint string

	// Method is the HTTP verb of the would-be request
	Method string

	// Headers are the would-be request headers with secrets redacted
	Headers map[string]string

	// ContentLength is the note content size in bytes
	ContentLength int

	// ContentPreview holds the first 500 characters of the note content
	ContentPreview string
}

// SyncReport aggregates the results of one sync run.
type SyncReport struct {
	// TicketsFound is the number of tickets returned by the fetch
	TicketsFound int

	// NotesCreated counts tickets whose notes were (or would be) created
	NotesCreated int

	// NotesUpdated counts tickets whose notes were (or would be) updated
	NotesUpdated int

	// Errors holds one message per ticket that failed to reconcile
	Errors []string

	// DryRun indicates whether the run was a simulation
	DryRun bool

	// DryRunActions lists the intended mutations when DryRun is true
	DryRunActions []DryRunAction
}

// Success reports whether the run completed without per-ticket errors.
func (r *SyncReport) Success() bool {
	return len(r.Errors) == 0
}

// SyncOneReport is the result of syncing a single ticket by key.
type SyncOneReport struct {
	// TicketFound indicates whether the ticket exists in JIRA
	TicketFound bool

	// NoteCreated indicates a new note was written
	NoteCreated bool

	// NoteUpdated indicates an existing note was overwritten
	NoteUpdated bool

	// Error holds the failure message, if any
	Error string
}
