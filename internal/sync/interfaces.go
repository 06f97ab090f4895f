package sync

import (
	"time"

	"github.com/danielolaszy/obsync/pkg/models"
)

// TicketSource supplies ticket snapshots from the tracker. Pagination is
// internal to the source; callers always receive a fully materialized slice.
type TicketSource interface {
	// AllOpenTickets returns every non-terminal ticket in the configured projects.
	AllOpenTickets() ([]models.TicketSnapshot, error)

	// UpdatedTickets returns non-terminal tickets updated at or after since.
	UpdatedTickets(since time.Time) ([]models.TicketSnapshot, error)

	// TicketByKey returns a single ticket, or nil when it does not exist.
	TicketByKey(key string) (*models.TicketSnapshot, error)
}

// NoteStore provides access to notes in the vault.
type NoteStore interface {
	// NoteExists checks whether a note exists at the given path.
	NoteExists(path string) bool

	// SaveNote writes content to a path with create-or-overwrite semantics.
	SaveNote(path, content string) error

	// RenameNote moves a note from oldPath to newPath.
	RenameNote(oldPath, newPath string) error

	// FindNoteByTicketKey returns the path of the note whose filename starts
	// with "ticketKey " inside folder, or an empty string when none matches.
	FindNoteByTicketKey(folder, ticketKey string) (string, error)

	// EnsureFolder makes sure the destination folder exists.
	EnsureFolder(folder string) error
}

// Renderer produces the canonical note title and body for a ticket.
type Renderer interface {
	FormatNote(t models.TicketSnapshot) (title string, content string)
}
