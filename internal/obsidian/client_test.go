package obsidian

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/obsync/internal/config"
)

// fakeVault is an in-memory stand-in for the Obsidian Local REST API.
type fakeVault struct {
	mu    sync.Mutex
	notes map[string]string // vault-relative path -> content

	lastAuth   string
	deleteFail map[string]bool // paths whose DELETE returns 500
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		notes:      make(map[string]string),
		deleteFail: make(map[string]bool),
	}
}

func (v *fakeVault) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()

		v.lastAuth = r.Header.Get("Authorization")

		// r.URL.Path arrives with escaped segments already decoded.
		path := strings.TrimPrefix(r.URL.Path, "/vault/")

		switch {
		case r.Method == http.MethodGet && (path == "" || strings.HasSuffix(path, "/")):
			v.handleList(w, strings.TrimSuffix(path, "/"))
		case r.Method == http.MethodGet:
			if content, ok := v.notes[path]; ok {
				io.WriteString(w, content)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			v.notes[path] = string(body)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete:
			if v.deleteFail[path] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if _, ok := v.notes[path]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(v.notes, path)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (v *fakeVault) handleList(w http.ResponseWriter, folder string) {
	var files []string
	for path := range v.notes {
		if folder == "" {
			files = append(files, path)
			continue
		}
		if rest, ok := strings.CutPrefix(path, folder+"/"); ok && !strings.Contains(rest, "/") {
			files = append(files, rest)
		}
	}
	if folder != "" && len(files) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"files": files})
}

func newTestClient(t *testing.T, vault *fakeVault) *Client {
	t.Helper()
	server := httptest.NewServer(vault.handler())
	t.Cleanup(server.Close)

	return NewClient(config.ObsidianConfig{
		APIURL: server.URL,
		APIKey: "test-key",
		Folder: "JIRA",
	})
}

func TestSaveAndReadNote(t *testing.T) {
	vault := newFakeVault()
	client := newTestClient(t, vault)

	require.NoError(t, client.SaveNote("JIRA/PROJ-1 Title.md", "# hello"))
	assert.Equal(t, "Bearer test-key", vault.lastAuth)

	content, err := client.ReadNote("JIRA/PROJ-1 Title.md")
	require.NoError(t, err)
	assert.Equal(t, "# hello", content)
}

func TestSaveNoteOverwrites(t *testing.T) {
	vault := newFakeVault()
	client := newTestClient(t, vault)

	require.NoError(t, client.SaveNote("JIRA/PROJ-1 Title.md", "v1"))
	require.NoError(t, client.SaveNote("JIRA/PROJ-1 Title.md", "v2"))

	content, err := client.ReadNote("JIRA/PROJ-1 Title.md")
	require.NoError(t, err)
	assert.Equal(t, "v2", content)
}

func TestReadMissingNote(t *testing.T) {
	vault := newFakeVault()
	client := newTestClient(t, vault)

	_, err := client.ReadNote("JIRA/nope.md")
	assert.ErrorIs(t, err, ErrNoteNotFound)
}

func TestNoteExists(t *testing.T) {
	vault := newFakeVault()
	vault.notes["JIRA/PROJ-1 Title.md"] = "x"
	client := newTestClient(t, vault)

	assert.True(t, client.NoteExists("JIRA/PROJ-1 Title.md"))
	assert.False(t, client.NoteExists("JIRA/missing.md"))
}

func TestPathSegmentsAreEscaped(t *testing.T) {
	vault := newFakeVault()
	client := newTestClient(t, vault)

	// Spaces and reserved characters must survive the round trip intact.
	path := "JIRA/PROJ-9 Fix 50% case #2.md"
	require.NoError(t, client.SaveNote(path, "content"))

	assert.Contains(t, vault.notes, path)
	content, err := client.ReadNote(path)
	require.NoError(t, err)
	assert.Equal(t, "content", content)
}

func TestListNotes(t *testing.T) {
	vault := newFakeVault()
	vault.notes["JIRA/PROJ-2 Beta.md"] = "b"
	vault.notes["JIRA/PROJ-1 Alpha.md"] = "a"
	vault.notes["JIRA/diagram.png"] = "binary"
	vault.notes["Other/PROJ-3 Elsewhere.md"] = "c"
	client := newTestClient(t, vault)

	notes, err := client.ListNotes("JIRA")
	require.NoError(t, err)

	require.Len(t, notes, 2, "only markdown files in the folder are listed")
	assert.Equal(t, "PROJ-1 Alpha.md", notes[0].Name)
	assert.Equal(t, "JIRA/PROJ-1 Alpha.md", notes[0].Path)
	assert.Equal(t, "PROJ-2 Beta.md", notes[1].Name)
}

func TestListNotesMissingFolder(t *testing.T) {
	vault := newFakeVault()
	client := newTestClient(t, vault)

	notes, err := client.ListNotes("JIRA")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestListNotesObjectForm(t *testing.T) {
	// Some API versions return file objects instead of bare names.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"files": [{"name": "PROJ-1 A.md"}, {"name": "img.png"}, "PROJ-2 B.md"]}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(config.ObsidianConfig{APIURL: server.URL, APIKey: "k", Folder: "JIRA"})

	notes, err := client.ListNotes("JIRA")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "PROJ-1 A.md", notes[0].Name)
	assert.Equal(t, "PROJ-2 B.md", notes[1].Name)
}

func TestFindNoteByTicketKey(t *testing.T) {
	vault := newFakeVault()
	vault.notes["JIRA/PROJ-5 Foo.md"] = "x"
	vault.notes["JIRA/PROJ-55 Bar.md"] = "y"
	client := newTestClient(t, vault)

	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "exact key", key: "PROJ-5", want: "JIRA/PROJ-5 Foo.md"},
		{name: "longer key is not shadowed", key: "PROJ-55", want: "JIRA/PROJ-55 Bar.md"},
		{name: "unknown key", key: "PROJ-500", want: ""},
		{name: "case sensitive", key: "proj-5", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.FindNoteByTicketKey("JIRA", tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeleteNote(t *testing.T) {
	vault := newFakeVault()
	vault.notes["JIRA/PROJ-1 Title.md"] = "x"
	client := newTestClient(t, vault)

	require.NoError(t, client.DeleteNote("JIRA/PROJ-1 Title.md"))
	assert.False(t, client.NoteExists("JIRA/PROJ-1 Title.md"))

	assert.Error(t, client.DeleteNote("JIRA/PROJ-1 Title.md"), "deleting a missing note fails")
}

func TestRenameNote(t *testing.T) {
	vault := newFakeVault()
	vault.notes["JIRA/PROJ-1 Old.md"] = "fresh content"
	client := newTestClient(t, vault)

	require.NoError(t, client.RenameNote("JIRA/PROJ-1 Old.md", "JIRA/PROJ-1 New.md"))

	assert.NotContains(t, vault.notes, "JIRA/PROJ-1 Old.md")
	assert.Equal(t, "fresh content", vault.notes["JIRA/PROJ-1 New.md"])
}

func TestRenameNoteMissingSource(t *testing.T) {
	vault := newFakeVault()
	client := newTestClient(t, vault)

	err := client.RenameNote("JIRA/missing.md", "JIRA/new.md")
	assert.ErrorIs(t, err, ErrNoteNotFound)
	assert.NotContains(t, vault.notes, "JIRA/new.md")
}

func TestRenameNoteRollsBackOnDeleteFailure(t *testing.T) {
	vault := newFakeVault()
	vault.notes["JIRA/PROJ-1 Old.md"] = "content"
	vault.deleteFail["JIRA/PROJ-1 Old.md"] = true
	client := newTestClient(t, vault)

	err := client.RenameNote("JIRA/PROJ-1 Old.md", "JIRA/PROJ-1 New.md")
	require.Error(t, err)

	// The copy at the new path must be removed so the vault has no duplicate.
	assert.NotContains(t, vault.notes, "JIRA/PROJ-1 New.md")
	assert.Equal(t, "content", vault.notes["JIRA/PROJ-1 Old.md"])
}

func TestEnsureFolderCreatesPlaceholder(t *testing.T) {
	vault := newFakeVault()
	client := newTestClient(t, vault)

	require.NoError(t, client.EnsureFolder("JIRA"))
	assert.Contains(t, vault.notes, "JIRA/README.md")
	assert.Contains(t, vault.notes["JIRA/README.md"], "# JIRA")
}

func TestEnsureFolderNoopWhenPresent(t *testing.T) {
	vault := newFakeVault()
	vault.notes["JIRA/PROJ-1 Title.md"] = "x"
	client := newTestClient(t, vault)

	require.NoError(t, client.EnsureFolder("JIRA"))
	assert.NotContains(t, vault.notes, "JIRA/README.md")
}

func TestTestConnection(t *testing.T) {
	vault := newFakeVault()
	vault.notes["JIRA/PROJ-1 Title.md"] = "x"
	client := newTestClient(t, vault)

	status := client.TestConnection()
	assert.True(t, status.Connected)
	assert.True(t, status.Authenticated)
	assert.True(t, status.FolderExists)
	assert.Equal(t, "JIRA", status.FolderPath)
}

func TestTestConnectionRejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := NewClient(config.ObsidianConfig{APIURL: server.URL, APIKey: "bad", Folder: "JIRA"})

	status := client.TestConnection()
	assert.True(t, status.Connected)
	assert.False(t, status.Authenticated)
	assert.Equal(t, "invalid API key", status.Error)
}
