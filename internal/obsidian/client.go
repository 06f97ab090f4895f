// Package obsidian implements a client for the Obsidian Local REST API.
//
// All paths are vault-relative with forward-slash separators; the client
// escapes each segment before it goes on the wire.
package obsidian

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/danielolaszy/obsync/internal/config"
	"github.com/danielolaszy/obsync/internal/logging"
	"github.com/danielolaszy/obsync/pkg/models"
)

// ErrNoteNotFound is returned when a read targets a path that does not exist.
var ErrNoteNotFound = errors.New("note not found")

const (
	requestTimeout  = 10 * time.Second
	retryMaxElapsed = 15 * time.Second

	markdownContentType = "text/markdown"
)

// Client handles interactions with the Obsidian Local REST API.
type Client struct {
	baseURL string
	apiKey  string
	folder  string
	http    *http.Client
}

// ConnectionStatus reports the result of a connection test.
type ConnectionStatus struct {
	Connected     bool
	Authenticated bool
	FolderExists  bool
	FolderPath    string
	Error         string
}

// NewClient creates a new Obsidian client from configuration.
func NewClient(cfg config.ObsidianConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		apiKey:  cfg.APIKey,
		folder:  cfg.Folder,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Folder returns the configured destination folder.
func (c *Client) Folder() string {
	return c.folder
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// vaultURL builds the API URL for a vault-relative path. A trailing slash
// addresses a folder listing rather than a file.
func (c *Client) vaultURL(path string, folder bool) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := c.baseURL + "/vault/" + strings.Join(segments, "/")
	if folder {
		u += "/"
	}
	return u
}

// isTransient reports whether a transport error is worth retrying. HTTP
// responses of any status are never retried here.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "broken pipe"),
		strings.Contains(errStr, "unexpected eof"),
		strings.Contains(errStr, "i/o timeout"):
		return true
	}
	return false
}

// doRequest performs one HTTP request against the vault API, retrying
// transient transport errors with exponential backoff. The caller owns the
// returned response body.
func (c *Client) doRequest(method, requestURL, contentType string, body []byte) (*http.Response, error) {
	// BackOff implementations are stateful; always use a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed

	var resp *http.Response
	err := backoff.Retry(func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, requestURL, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")

		r, err := c.http.Do(req)
		if err != nil {
			if isTransient(err) {
				logging.Debug("retrying vault request after transient error",
					"method", method,
					"url", requestURL,
					"error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}, bo)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// drainAndClose discards and closes a response body so the connection can be
// reused.
func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// TestConnection verifies the API is reachable, the key is accepted, and
// whether the destination folder exists.
func (c *Client) TestConnection() ConnectionStatus {
	resp, err := c.doRequest(http.MethodGet, c.baseURL+"/vault/", "", nil)
	if err != nil {
		return ConnectionStatus{
			Connected: false,
			Error:     fmt.Sprintf("cannot connect to Obsidian REST API: %v", err),
		}
	}
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ConnectionStatus{Connected: true, Error: "invalid API key"}
	default:
		return ConnectionStatus{
			Connected: true,
			Error:     fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
		}
	}

	folderResp, err := c.doRequest(http.MethodGet, c.vaultURL(c.folder, true), "", nil)
	folderExists := false
	if err == nil {
		folderExists = folderResp.StatusCode == http.StatusOK
		drainAndClose(folderResp)
	}

	return ConnectionStatus{
		Connected:     true,
		Authenticated: true,
		FolderExists:  folderExists,
		FolderPath:    c.folder,
	}
}

// NoteExists checks whether a note exists at the given path.
func (c *Client) NoteExists(path string) bool {
	resp, err := c.doRequest(http.MethodGet, c.vaultURL(path, false), "", nil)
	if err != nil {
		return false
	}
	defer drainAndClose(resp)
	return resp.StatusCode == http.StatusOK
}

// ReadNote returns the content of a note. Missing notes return
// ErrNoteNotFound.
func (c *Client) ReadNote(path string) (string, error) {
	resp, err := c.doRequest(http.MethodGet, c.vaultURL(path, false), "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to read note %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read note %s: %w", path, err)
		}
		return string(data), nil
	case http.StatusNotFound:
		return "", fmt.Errorf("note %s: %w", path, ErrNoteNotFound)
	default:
		return "", fmt.Errorf("failed to read note %s: status %d", path, resp.StatusCode)
	}
}

// SaveNote writes content to a note path, creating or overwriting it.
func (c *Client) SaveNote(path, content string) error {
	resp, err := c.doRequest(http.MethodPut, c.vaultURL(path, false), markdownContentType, []byte(content))
	if err != nil {
		return fmt.Errorf("failed to save note %s: %w", path, err)
	}
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		logging.Debug("saved note", "path", path)
		return nil
	default:
		return fmt.Errorf("failed to save note %s: status %d", path, resp.StatusCode)
	}
}

// DeleteNote removes a note at the given path.
func (c *Client) DeleteNote(path string) error {
	resp, err := c.doRequest(http.MethodDelete, c.vaultURL(path, false), "", nil)
	if err != nil {
		return fmt.Errorf("failed to delete note %s: %w", path, err)
	}
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		logging.Debug("deleted note", "path", path)
		return nil
	default:
		return fmt.Errorf("failed to delete note %s: status %d", path, resp.StatusCode)
	}
}

// listResponse is the folder-listing payload. The API has returned both bare
// filename strings and {"name": ...} objects across versions.
type listResponse struct {
	Files []json.RawMessage `json:"files"`
}

// ListNotes returns the markdown files in a folder, sorted by name. A missing
// folder yields an empty list.
func (c *Client) ListNotes(folder string) ([]models.NoteInfo, error) {
	resp, err := c.doRequest(http.MethodGet, c.vaultURL(folder, true), "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes in %s: %w", folder, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		logging.Warn("folder not found", "folder", folder)
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to list notes in %s: status %d", folder, resp.StatusCode)
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode listing for %s: %w", folder, err)
	}

	var notes []models.NoteInfo
	for _, raw := range payload.Files {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			var obj struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(raw, &obj); err != nil || obj.Name == "" {
				continue
			}
			name = obj.Name
		}
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		notes = append(notes, models.NoteInfo{
			Name: name,
			Path: folder + "/" + name,
		})
	}

	sort.Slice(notes, func(i, j int) bool { return notes[i].Name < notes[j].Name })
	return notes, nil
}

// EnsureFolder creates the destination folder if it does not exist. The REST
// API has no folder-creation endpoint, so a placeholder README is written
// instead.
func (c *Client) EnsureFolder(folder string) error {
	resp, err := c.doRequest(http.MethodGet, c.vaultURL(folder, true), "", nil)
	if err != nil {
		return fmt.Errorf("failed to check folder %s: %w", folder, err)
	}
	status := resp.StatusCode
	drainAndClose(resp)

	if status != http.StatusNotFound {
		return nil
	}

	readme := folder + "/README.md"
	content := fmt.Sprintf("# %s\n\nThis folder contains synchronized JIRA tickets.", folder)
	if err := c.SaveNote(readme, content); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", folder, err)
	}
	logging.Info("created folder", "folder", folder)
	return nil
}

// FindNoteByTicketKey looks for an existing note whose filename starts with
// the ticket key followed by a single space. The space delimiter keeps
// PROJ-5 from matching a note for PROJ-55. Returns an empty string when no
// note matches.
func (c *Client) FindNoteByTicketKey(folder, ticketKey string) (string, error) {
	notes, err := c.ListNotes(folder)
	if err != nil {
		return "", err
	}

	prefix := ticketKey + " "
	for _, note := range notes {
		if strings.HasPrefix(note.Name, prefix) {
			return note.Path, nil
		}
	}
	return "", nil
}

// RenameNote moves a note by writing its content to the new path and then
// deleting the old one. If the delete fails after the new path was created,
// the new note is removed again so the vault never ends up with a duplicate.
func (c *Client) RenameNote(oldPath, newPath string) error {
	content, err := c.ReadNote(oldPath)
	if err != nil {
		return fmt.Errorf("cannot read note to rename: %w", err)
	}

	if err := c.SaveNote(newPath, content); err != nil {
		return fmt.Errorf("failed to create note at new path: %w", err)
	}

	if err := c.DeleteNote(oldPath); err != nil {
		// Roll back the copy to avoid a duplicate.
		if cleanupErr := c.DeleteNote(newPath); cleanupErr != nil {
			logging.Error("failed to clean up duplicate after rename failure",
				"path", newPath,
				"error", cleanupErr)
		}
		return fmt.Errorf("failed to delete old note: %w", err)
	}

	logging.Debug("renamed note", "old", oldPath, "new", newPath)
	return nil
}
