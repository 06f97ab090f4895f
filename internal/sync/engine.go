// Package sync implements the synchronization core: the per-ticket
// reconciliation engine and the run-level orchestrator.
package sync

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/danielolaszy/obsync/internal/logging"
	"github.com/danielolaszy/obsync/pkg/models"
)

// previewLength is how much note content a dry-run action carries.
const previewLength = 500

// Engine decides, per ticket, whether the vault needs a create, an in-place
// update, an update plus rename, or nothing, and either applies the decision
// or describes it.
type Engine struct {
	notes          NoteStore
	renderer       Renderer
	folder         string
	updateExisting bool
	vaultBaseURL   string
}

// NewEngine creates a reconciliation engine writing into the given folder.
func NewEngine(notes NoteStore, renderer Renderer, folder string, updateExisting bool, vaultBaseURL string) *Engine {
	return &Engine{
		notes:          notes,
		renderer:       renderer,
		folder:         folder,
		updateExisting: updateExisting,
		vaultBaseURL:   strings.TrimRight(vaultBaseURL, "/"),
	}
}

// Reconcile processes one ticket. In dry-run mode the only note store call is
// the read-only lookup; the returned DryRunAction describes the mutation a
// live run would perform. In live mode the mutation is applied and the
// outcome reports what happened.
//
// Reconciliation is idempotent: rendering is deterministic and writes are
// create-or-overwrite, so repeating a reconcile converges on the same vault
// content.
func (e *Engine) Reconcile(ticket models.TicketSnapshot, dryRun bool) (models.ReconcileOutcome, *models.DryRunAction) {
	title, content := e.renderer.FormatNote(ticket)
	canonicalPath := fmt.Sprintf("%s/%s.md", e.folder, title)

	// The ticket key prefix is the rename-detection key: if the title
	// changed, the old note is still found here and relocated instead of
	// being orphaned next to a freshly created one.
	existingPath, err := e.notes.FindNoteByTicketKey(e.folder, ticket.Key)
	if err != nil {
		return models.ReconcileOutcome{
			Action: models.ActionFailed,
			Path:   canonicalPath,
			Reason: fmt.Sprintf("failed to look up existing note: %v", err),
		}, nil
	}

	exists := existingPath != ""
	needsRename := exists && existingPath != canonicalPath

	if exists && !e.updateExisting {
		logging.Info("skipping existing note", "ticket", ticket.Key, "path", existingPath)
		return models.ReconcileOutcome{
			Action: models.ActionSkipped,
			Path:   existingPath,
			Reason: "note exists and updating existing notes is disabled",
		}, nil
	}

	if dryRun {
		return e.describe(ticket, canonicalPath, existingPath, exists, needsRename, content)
	}

	return e.apply(ticket, canonicalPath, existingPath, exists, needsRename, content), nil
}

// describe builds the dry-run outcome and action descriptor without touching
// the vault.
func (e *Engine) describe(ticket models.TicketSnapshot, canonicalPath, existingPath string, exists, needsRename bool, content string) (models.ReconcileOutcome, *models.DryRunAction) {
	action := models.ActionCreated
	oldPath := ""
	switch {
	case needsRename:
		action = models.ActionUpdatedAndRenamed
		oldPath = existingPath
	case exists:
		action = models.ActionUpdated
	}

	preview := content
	if len(preview) > previewLength {
		preview = preview[:previewLength] + "..."
	}

	descriptor := &models.DryRunAction{
		Action:      action.String(),
		Ticket:      ticket.Key,
		FilePath:    canonicalPath,
		OldFilePath: oldPath,
		Endpoint:    e.vaultBaseURL + "/vault/" + escapePath(canonicalPath),
		Method:      "PUT",
		Headers: map[string]string{
			"Authorization": "Bearer [REDACTED]",
			"Content-Type":  "text/markdown",
		},
		ContentLength:  len(content),
		ContentPreview: preview,
	}

	logging.Info("[DRY RUN] would write note",
		"action", descriptor.Action,
		"ticket", ticket.Key,
		"path", canonicalPath)

	return models.ReconcileOutcome{
		Action:  action,
		Path:    canonicalPath,
		OldPath: oldPath,
	}, descriptor
}

// apply performs the live write (and rename, when needed).
func (e *Engine) apply(ticket models.TicketSnapshot, canonicalPath, existingPath string, exists, needsRename bool, content string) models.ReconcileOutcome {
	if !needsRename {
		if err := e.notes.SaveNote(canonicalPath, content); err != nil {
			return models.ReconcileOutcome{
				Action: models.ActionFailed,
				Path:   canonicalPath,
				Reason: fmt.Sprintf("failed to save note %s: %v", canonicalPath, err),
			}
		}

		action := models.ActionCreated
		if exists {
			action = models.ActionUpdated
		}
		logging.Info("wrote note", "action", action.String(), "ticket", ticket.Key, "path", canonicalPath)
		return models.ReconcileOutcome{Action: action, Path: canonicalPath}
	}

	// Refresh content at the old path first, so the note is current even if
	// the subsequent move fails. A half-done rename leaves the fresh note at
	// the old path, which the next run retries; deleting before the new path
	// is confirmed would risk losing the note entirely.
	if err := e.notes.SaveNote(existingPath, content); err != nil {
		return models.ReconcileOutcome{
			Action:  models.ActionFailed,
			Path:    canonicalPath,
			OldPath: existingPath,
			Reason:  fmt.Sprintf("failed to update note content before rename: %v", err),
		}
	}

	if err := e.notes.RenameNote(existingPath, canonicalPath); err != nil {
		return models.ReconcileOutcome{
			Action:  models.ActionFailed,
			Path:    canonicalPath,
			OldPath: existingPath,
			Reason:  fmt.Sprintf("failed to rename note from %s to %s: %v", existingPath, canonicalPath, err),
		}
	}

	logging.Info("renamed and updated note",
		"ticket", ticket.Key,
		"old", existingPath,
		"new", canonicalPath)
	return models.ReconcileOutcome{
		Action:  models.ActionUpdatedAndRenamed,
		Path:    canonicalPath,
		OldPath: existingPath,
	}
}

// escapePath escapes each segment of a vault-relative path for use in a URL.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
