// Package jira fetches ticket snapshots from a JIRA server.
package jira

import (
	"fmt"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/danielolaszy/obsync/internal/config"
	"github.com/danielolaszy/obsync/internal/logging"
	"github.com/danielolaszy/obsync/pkg/models"
)

// searchBatchSize is the page size for JQL searches. JIRA performs better
// with smaller batches.
const searchBatchSize = 50

// terminalStatusFilter excludes tickets that no longer need a note refresh.
const terminalStatusFilter = "status NOT IN (Done, Resolved, Closed)"

// searchFields lists the issue fields every snapshot needs, so search
// results carry comments and custom fields without a second round trip.
var searchFields = []string{
	"summary", "description", "assignee", "reporter", "priority",
	"status", "created", "updated", "duedate", "comment",
	"customfield_10016", "customfield_10020",
}

// Client handles interactions with the JIRA API.
type Client struct {
	client   *jira.Client
	projects []string
}

// ConnectionStatus reports the result of a connection test.
type ConnectionStatus struct {
	Connected            bool
	User                 string
	AccessibleProjects   []string
	InaccessibleProjects []string
	Error                string
}

// NewClient creates a new JIRA client from configuration.
func NewClient(cfg config.JiraConfig) (*Client, error) {
	// Create JIRA authentication transport
	tp := jira.BasicAuthTransport{
		Username: cfg.Email,
		Password: cfg.APIToken,
	}

	client, err := jira.NewClient(tp.Client(), cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to create JIRA client: %v", err)
	}

	return &Client{
		client:   client,
		projects: cfg.Projects,
	}, nil
}

// TestConnection verifies credentials and per-project access.
func (c *Client) TestConnection() ConnectionStatus {
	user, _, err := c.client.User.GetSelf()
	if err != nil {
		return ConnectionStatus{
			Connected: false,
			Error:     fmt.Sprintf("JIRA connection failed: %v", err),
		}
	}

	status := ConnectionStatus{
		Connected: true,
		User:      user.DisplayName,
	}
	for _, key := range c.projects {
		if _, _, err := c.client.Project.Get(key); err != nil {
			status.InaccessibleProjects = append(status.InaccessibleProjects, key)
		} else {
			status.AccessibleProjects = append(status.AccessibleProjects, key)
		}
	}
	return status
}

// projectFilter builds the JQL clause restricting results to the configured
// projects.
func (c *Client) projectFilter() string {
	return fmt.Sprintf("project in (%s)", strings.Join(c.projects, ","))
}

// AllOpenTickets fetches every ticket in the configured projects that is not
// in a terminal status.
func (c *Client) AllOpenTickets() ([]models.TicketSnapshot, error) {
	if len(c.projects) == 0 {
		return nil, nil
	}

	jql := fmt.Sprintf("%s AND %s ORDER BY priority DESC",
		c.projectFilter(), terminalStatusFilter)
	return c.searchAll(jql)
}

// UpdatedTickets fetches tickets updated at or after the given time,
// excluding terminal statuses.
func (c *Client) UpdatedTickets(since time.Time) ([]models.TicketSnapshot, error) {
	if len(c.projects) == 0 {
		return nil, nil
	}

	// JIRA's JQL date literals only carry minute precision.
	sinceStr := since.Format("2006-01-02 15:04")
	jql := fmt.Sprintf("%s AND updated >= %q AND %s ORDER BY updated DESC",
		c.projectFilter(), sinceStr, terminalStatusFilter)
	return c.searchAll(jql)
}

// TicketByKey fetches a single ticket snapshot. A missing ticket returns
// (nil, nil).
func (c *Client) TicketByKey(key string) (*models.TicketSnapshot, error) {
	jql := fmt.Sprintf("key = %q", key)
	tickets, err := c.searchAll(jql)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, nil
	}
	snapshot := tickets[0]
	return &snapshot, nil
}

// searchAll runs a JQL query, paginating until the full result set has been
// materialized.
func (c *Client) searchAll(jql string) ([]models.TicketSnapshot, error) {
	logging.Debug("searching JIRA", "jql", jql)

	var tickets []models.TicketSnapshot
	startAt := 0

	for {
		issues, resp, err := c.client.Issue.Search(jql, &jira.SearchOptions{
			StartAt:    startAt,
			MaxResults: searchBatchSize,
			Fields:     searchFields,
		})
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("failed to search JIRA issues: %v (status: %d)", err, resp.StatusCode)
			}
			return nil, fmt.Errorf("failed to search JIRA issues: %v", err)
		}

		for _, issue := range issues {
			tickets = append(tickets, extractSnapshot(issue))
		}

		if len(issues) < searchBatchSize {
			break
		}
		startAt += searchBatchSize
		logging.Debug("fetched ticket batch", "total_so_far", len(tickets))
	}

	logging.Info("fetched tickets", "count", len(tickets))
	return tickets, nil
}

// jiraTimeFormat is the timestamp layout JIRA uses in issue fields.
const jiraTimeFormat = "2006-01-02T15:04:05.000-0700"

// extractSnapshot converts a JIRA issue into a TicketSnapshot.
func extractSnapshot(issue jira.Issue) models.TicketSnapshot {
	fields := issue.Fields

	snapshot := models.TicketSnapshot{
		Key:         issue.Key,
		Title:       fields.Summary,
		Description: fields.Description,
		Assignee:    "Unassigned",
		Reporter:    "Unknown",
		Priority:    "None",
		Created:     time.Time(fields.Created).Format(jiraTimeFormat),
		Updated:     time.Time(fields.Updated).Format(jiraTimeFormat),
	}

	snapshot.Project = fields.Project.Key
	if snapshot.Project == "" {
		// Fall back to the key prefix when the project field was not expanded.
		if idx := strings.Index(issue.Key, "-"); idx > 0 {
			snapshot.Project = issue.Key[:idx]
		}
	}

	if fields.Assignee != nil {
		snapshot.Assignee = fields.Assignee.DisplayName
	}
	if fields.Reporter != nil {
		snapshot.Reporter = fields.Reporter.DisplayName
	}
	if fields.Priority != nil {
		snapshot.Priority = fields.Priority.Name
	}
	if fields.Status != nil {
		snapshot.Status = fields.Status.Name
	}

	if due := time.Time(fields.Duedate); !due.IsZero() {
		snapshot.DueDate = due.Format("2006-01-02")
	}

	snapshot.StoryPoints = extractStoryPoints(fields)
	snapshot.Sprint = extractSprint(fields)
	snapshot.Comments = extractComments(fields)

	return snapshot
}

// extractStoryPoints reads the story points estimate from its usual custom
// field. The field id varies by instance; 10016 is the JIRA Cloud default.
func extractStoryPoints(fields *jira.IssueFields) *float64 {
	if fields.Unknowns == nil {
		return nil
	}
	raw, ok := fields.Unknowns["customfield_10016"]
	if !ok || raw == nil {
		return nil
	}
	if points, ok := raw.(float64); ok {
		return &points
	}
	return nil
}

// extractSprint reads the active sprint name from its usual custom field.
// Depending on the server version the value is either a list of objects with
// a name, or a list of opaque strings containing "name=...".
func extractSprint(fields *jira.IssueFields) string {
	if fields.Unknowns == nil {
		return ""
	}
	raw, ok := fields.Unknowns["customfield_10020"]
	if !ok {
		return ""
	}
	entries, ok := raw.([]interface{})
	if !ok || len(entries) == 0 {
		return ""
	}

	switch v := entries[0].(type) {
	case map[string]interface{}:
		if name, ok := v["name"].(string); ok {
			return name
		}
	case string:
		if idx := strings.Index(v, "name="); idx >= 0 {
			rest := v[idx+len("name="):]
			if end := strings.Index(rest, ","); end >= 0 {
				return rest[:end]
			}
			return strings.TrimSuffix(rest, "]")
		}
	}
	return ""
}

// extractComments converts the issue's comments, preserving order.
func extractComments(fields *jira.IssueFields) []models.Comment {
	if fields.Comments == nil {
		return nil
	}

	comments := make([]models.Comment, 0, len(fields.Comments.Comments))
	for _, c := range fields.Comments.Comments {
		comments = append(comments, models.Comment{
			Author:  c.Author.DisplayName,
			Created: c.Created,
			Body:    c.Body,
		})
	}
	return comments
}
