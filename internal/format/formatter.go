// Package format renders JIRA ticket snapshots as Obsidian markdown notes.
//
// The output is deterministic: the same snapshot always produces the same
// title and body, which is what makes repeated syncs idempotent.
package format

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielolaszy/obsync/pkg/models"
)

// Formatter renders tickets as notes relative to one JIRA server.
type Formatter struct {
	jiraServer string
}

// NewFormatter creates a formatter that links back to the given JIRA server.
func NewFormatter(jiraServer string) *Formatter {
	return &Formatter{jiraServer: strings.TrimRight(jiraServer, "/")}
}

// FormatNote renders a ticket as a note, returning the canonical note title
// (without extension) and the full note body.
func (f *Formatter) FormatNote(t models.TicketSnapshot) (string, string) {
	title := f.FormatTitle(t)

	sections := []string{
		f.formatFrontmatter(t),
		"# " + title,
		"## Description",
		f.formatDescription(t),
	}

	if comments := f.formatComments(t.Comments); comments != "" {
		sections = append(sections, "## Comments", comments)
	}

	sections = append(sections, f.formatFooter(t))

	return title, strings.Join(sections, "\n\n")
}

// titleReplacer strips characters that are hostile to filesystems or would
// change the note's location (a slash in a title would create a subfolder).
var titleReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "-",
	`"`, "'",
	"<", "-",
	">", "-",
	"|", "-",
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// FormatTitle returns the canonical note title: the ticket key, a single
// space, then the sanitized ticket summary. The "KEY " prefix is the lookup
// key used for rename detection.
func (f *Formatter) FormatTitle(t models.TicketSnapshot) string {
	safe := titleReplacer.Replace(t.Title)
	for strings.Contains(safe, "  ") {
		safe = strings.ReplaceAll(safe, "  ", " ")
	}
	safe = strings.TrimSpace(safe)

	return fmt.Sprintf("%s %s", t.Key, safe)
}

// frontmatter is the YAML metadata block at the top of every note. Field
// order here is the order Obsidian users see in the properties panel.
type frontmatter struct {
	Aliases     []string `yaml:"aliases"`
	Assignee    string   `yaml:"assignee"`
	Reporter    string   `yaml:"reporter"`
	Priority    string   `yaml:"priority"`
	Status      string   `yaml:"status"`
	Project     string   `yaml:"project"`
	Key         string   `yaml:"key"`
	StoryPoints *float64 `yaml:"story_points,omitempty"`
	Sprint      string   `yaml:"sprint,omitempty"`
	Created     string   `yaml:"created"`
	DueDate     string   `yaml:"due_date,omitempty"`
	Updated     string   `yaml:"updated"`
	Tags        []string `yaml:"tags"`
}

func (f *Formatter) formatFrontmatter(t models.TicketSnapshot) string {
	fm := frontmatter{
		Aliases:     []string{t.Key},
		Assignee:    wikilinkPerson(t.Assignee),
		Reporter:    wikilinkPerson(t.Reporter),
		Priority:    t.Priority,
		Status:      t.Status,
		Project:     t.Project,
		Key:         t.Key,
		StoryPoints: t.StoryPoints,
		Sprint:      t.Sprint,
		Created:     formatDate(t.Created),
		DueDate:     t.DueDate,
		Updated:     formatDate(t.Updated),
		Tags: []string{
			"jira",
			strings.ToLower(t.Project),
			strings.ReplaceAll(strings.ToLower(t.Status), " ", "-"),
		},
	}

	data, err := yaml.Marshal(&fm)
	if err != nil {
		// yaml.Marshal of a plain struct cannot realistically fail; keep the
		// note usable if it ever does.
		return "---\nkey: " + t.Key + "\n---"
	}

	return "---\n" + strings.TrimRight(string(data), "\n") + "\n---"
}

// wikilinkPerson wraps a display name in an Obsidian wikilink unless it is a
// placeholder like "Unassigned".
func wikilinkPerson(name string) string {
	switch name {
	case "", "Unassigned", "Unknown":
		return name
	}
	return "[[" + name + "]]"
}

func (f *Formatter) formatDescription(t models.TicketSnapshot) string {
	description := strings.TrimSpace(t.Description)
	if description == "" {
		return "*No description provided*"
	}
	return convertJiraToMarkdown(description)
}

func (f *Formatter) formatComments(comments []models.Comment) string {
	if len(comments) == 0 {
		return ""
	}

	formatted := make([]string, 0, len(comments))
	for _, c := range comments {
		formatted = append(formatted, fmt.Sprintf("### %s - %s\n\n%s",
			c.Author, formatDate(c.Created), convertJiraToMarkdown(c.Body)))
	}
	return strings.Join(formatted, "\n\n")
}

func (f *Formatter) formatFooter(t models.TicketSnapshot) string {
	return fmt.Sprintf("---\n[View in JIRA](%s/browse/%s)", f.jiraServer, t.Key)
}

// dateLayouts covers the timestamp shapes JIRA returns.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02",
}

// formatDate renders a timestamp for display, passing unparsable values
// through unchanged.
func formatDate(value string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02 15:04")
		}
	}
	return value
}

var (
	codeBlockRe     = regexp.MustCompile(`\{code(:[^}]*)?\}|\{noformat\}`)
	boldRe          = regexp.MustCompile(`\*([^*\s][^*\n]*?)\*`)
	italicRe        = regexp.MustCompile(`_([^_\s][^_\n]*?)_`)
	underlineRe     = regexp.MustCompile(`\+([^+\s][^+\n]*?)\+`)
	strikethroughRe = regexp.MustCompile(`(^|\s)-([^\s-][^-\n]*?)-(\s|$)`)
)

// headerPrefixes maps JIRA wiki headers to Markdown, longest level first so
// prefixes never shadow each other.
var headerPrefixes = []struct {
	jira     string
	markdown string
}{
	{"h6. ", "###### "},
	{"h5. ", "##### "},
	{"h4. ", "#### "},
	{"h3. ", "### "},
	{"h2. ", "## "},
	{"h1. ", "# "},
}

// convertJiraToMarkdown performs a basic JIRA wiki markup to Markdown
// conversion. It is line-oriented: list and header markers only apply at the
// start of a line, so converted headers are never re-interpreted as lists.
func convertJiraToMarkdown(text string) string {
	if text == "" {
		return ""
	}

	text = codeBlockRe.ReplaceAllString(text, "```")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		// Numbered list before headers, so "h1. " output is left alone.
		if strings.HasPrefix(line, "# ") {
			line = "1. " + line[2:]
		} else if strings.HasPrefix(line, "* ") {
			line = "- " + line[2:]
		} else {
			for _, h := range headerPrefixes {
				if strings.HasPrefix(line, h.jira) {
					line = h.markdown + line[len(h.jira):]
					break
				}
			}
		}

		line = boldRe.ReplaceAllString(line, "**$1**")
		line = italicRe.ReplaceAllString(line, "*$1*")
		line = underlineRe.ReplaceAllString(line, "<u>$1</u>")
		line = strikethroughRe.ReplaceAllString(line, "${1}~~$2~~$3")

		lines[i] = line
	}

	return strings.Join(lines, "\n")
}
