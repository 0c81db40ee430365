// Package linear is the Linear GraphQL tracker used as the feedback item
// source and as the target of assignment decisions.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"feedbacktriage/internal/domain"
)

const (
	DefaultAPIURL      = "https://api.linear.app/graphql"
	needsReviewColor   = "#f59e0b"
	maxErrorBodyLength = 512
)

var (
	ErrIssueNotFound     = errors.New("issue not found")
	ErrTeamNotFound      = errors.New("team not found")
	ErrInvalidIdentifier = errors.New("invalid issue identifier")
)

type Client struct {
	apiKey     string
	apiURL     string
	teamKey    string
	httpClient *http.Client
}

func NewClient(apiKey, apiURL, teamKey string, httpClient *http.Client) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{apiKey: apiKey, apiURL: apiURL, teamKey: teamKey, httpClient: httpClient}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any) error {
	if vars == nil {
		vars = map[string]any{}
	}
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Linear API returned %d: %s", resp.StatusCode, truncate(string(respBody)))
	}

	var result graphQLResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("GraphQL errors: %s", strings.Join(msgs, "; "))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}

const issueFields = `
	id
	identifier
	title
	description
	url
	assignee { id name }
	labels { nodes { name } }
`

type issueNode struct {
	ID          string  `json:"id"`
	Identifier  string  `json:"identifier"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	URL         string  `json:"url"`
	Assignee    *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"assignee"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
}

func (n issueNode) toItem() domain.FeedbackItem {
	item := domain.FeedbackItem{
		ID:         n.ID,
		Identifier: n.Identifier,
		Title:      n.Title,
		URL:        n.URL,
	}
	if n.Description != nil {
		item.Description = *n.Description
	}
	if n.Assignee != nil {
		item.Assignee = &domain.Assignee{ID: n.Assignee.ID, Name: n.Assignee.Name}
	}
	for _, l := range n.Labels.Nodes {
		item.Labels = append(item.Labels, l.Name)
	}
	return item
}

func (c *Client) TeamID(ctx context.Context) (string, error) {
	var data struct {
		Teams struct {
			Nodes []struct {
				ID string `json:"id"`
			} `json:"nodes"`
		} `json:"teams"`
	}
	q := `query GetTeam($teamKey: String!) {
		teams(filter: { key: { eq: $teamKey } }) { nodes { id } }
	}`
	if err := c.query(ctx, q, map[string]any{"teamKey": c.teamKey}, &data); err != nil {
		return "", fmt.Errorf("get team %s: %w", c.teamKey, err)
	}
	if len(data.Teams.Nodes) == 0 {
		return "", fmt.Errorf("%w: %s", ErrTeamNotFound, c.teamKey)
	}
	return data.Teams.Nodes[0].ID, nil
}

func (c *Client) TeamMembers(ctx context.Context) ([]domain.RosterMember, error) {
	var data struct {
		Teams struct {
			Nodes []struct {
				Members struct {
					Nodes []struct {
						ID    string `json:"id"`
						Name  string `json:"name"`
						Email string `json:"email"`
					} `json:"nodes"`
				} `json:"members"`
			} `json:"nodes"`
		} `json:"teams"`
	}
	q := `query GetTeamMembers($teamKey: String!) {
		teams(filter: { key: { eq: $teamKey } }) {
			nodes { members { nodes { id name email } } }
		}
	}`
	if err := c.query(ctx, q, map[string]any{"teamKey": c.teamKey}, &data); err != nil {
		return nil, fmt.Errorf("get team members: %w", err)
	}
	if len(data.Teams.Nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTeamNotFound, c.teamKey)
	}
	var members []domain.RosterMember
	for _, m := range data.Teams.Nodes[0].Members.Nodes {
		members = append(members, domain.RosterMember{ID: m.ID, Name: m.Name, Email: m.Email})
	}
	log.Printf("linear team members team=%s count=%d", c.teamKey, len(members))
	return members, nil
}

// TriageItems returns the team's issues in the triage workflow state.
func (c *Client) TriageItems(ctx context.Context) ([]domain.FeedbackItem, error) {
	teamID, err := c.TeamID(ctx)
	if err != nil {
		return nil, err
	}
	var data struct {
		Team struct {
			Issues struct {
				Nodes []issueNode `json:"nodes"`
			} `json:"issues"`
		} `json:"team"`
	}
	q := `query GetTriageIssues($teamId: String!) {
		team(id: $teamId) {
			issues(filter: { state: { type: { eq: "triage" } } }) {
				nodes {` + issueFields + `}
			}
		}
	}`
	if err := c.query(ctx, q, map[string]any{"teamId": teamID}, &data); err != nil {
		return nil, fmt.Errorf("get triage issues: %w", err)
	}
	items := make([]domain.FeedbackItem, 0, len(data.Team.Issues.Nodes))
	for _, n := range data.Team.Issues.Nodes {
		items = append(items, n.toItem())
	}
	log.Printf("linear triage issues team=%s count=%d", c.teamKey, len(items))
	return items, nil
}

// ItemByIdentifier fetches one issue by its human key, e.g. "PROF-23".
func (c *Client) ItemByIdentifier(ctx context.Context, identifier string) (domain.FeedbackItem, error) {
	teamKey, number, err := ParseIdentifier(identifier)
	if err != nil {
		return domain.FeedbackItem{}, err
	}
	var data struct {
		Issues struct {
			Nodes []issueNode `json:"nodes"`
		} `json:"issues"`
	}
	q := `query SearchIssue($filter: IssueFilter!) {
		issues(filter: $filter, first: 1) {
			nodes {` + issueFields + `}
		}
	}`
	vars := map[string]any{
		"filter": map[string]any{
			"team":   map[string]any{"key": map[string]any{"eq": teamKey}},
			"number": map[string]any{"eq": number},
		},
	}
	if err := c.query(ctx, q, vars, &data); err != nil {
		return domain.FeedbackItem{}, fmt.Errorf("get issue %s: %w", identifier, err)
	}
	if len(data.Issues.Nodes) == 0 {
		return domain.FeedbackItem{}, fmt.Errorf("%w: %s", ErrIssueNotFound, identifier)
	}
	return data.Issues.Nodes[0].toItem(), nil
}

func ParseIdentifier(identifier string) (string, int, error) {
	key, num, ok := strings.Cut(strings.TrimSpace(identifier), "-")
	if !ok || key == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}
	number, err := strconv.Atoi(num)
	if err != nil || number <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}
	return strings.ToUpper(key), number, nil
}

// EnsureLabel returns the ID of the named team label, creating it if needed.
func (c *Client) EnsureLabel(ctx context.Context, teamID, name string) (string, error) {
	var found struct {
		IssueLabels struct {
			Nodes []struct {
				ID string `json:"id"`
			} `json:"nodes"`
		} `json:"issueLabels"`
	}
	q := `query GetLabel($teamId: ID!, $labelName: String!) {
		issueLabels(filter: { team: { id: { eq: $teamId } }, name: { eq: $labelName } }) {
			nodes { id name }
		}
	}`
	if err := c.query(ctx, q, map[string]any{"teamId": teamID, "labelName": name}, &found); err != nil {
		return "", fmt.Errorf("find label %s: %w", name, err)
	}
	if len(found.IssueLabels.Nodes) > 0 {
		return found.IssueLabels.Nodes[0].ID, nil
	}

	var created struct {
		IssueLabelCreate struct {
			Success    bool `json:"success"`
			IssueLabel struct {
				ID string `json:"id"`
			} `json:"issueLabel"`
		} `json:"issueLabelCreate"`
	}
	m := `mutation CreateLabel($teamId: String!, $name: String!, $color: String!) {
		issueLabelCreate(input: { teamId: $teamId, name: $name, color: $color }) {
			success
			issueLabel { id name }
		}
	}`
	if err := c.query(ctx, m, map[string]any{"teamId": teamID, "name": name, "color": needsReviewColor}, &created); err != nil {
		return "", fmt.Errorf("create label %s: %w", name, err)
	}
	if !created.IssueLabelCreate.Success || created.IssueLabelCreate.IssueLabel.ID == "" {
		return "", fmt.Errorf("create label %s: not successful", name)
	}
	log.Printf("linear label created name=%s id=%s", name, created.IssueLabelCreate.IssueLabel.ID)
	return created.IssueLabelCreate.IssueLabel.ID, nil
}

// AssignItem sets the assignee and, when labelIDs is non-empty, adds those
// labels to the issue.
func (c *Client) AssignItem(ctx context.Context, itemID, assigneeID string, labelIDs []string) error {
	input := map[string]any{"assigneeId": assigneeID}
	if len(labelIDs) > 0 {
		input["addedLabelIds"] = labelIDs
	}
	var data struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	m := `mutation AssignIssue($issueId: String!, $input: IssueUpdateInput!) {
		issueUpdate(id: $issueId, input: $input) { success }
	}`
	if err := c.query(ctx, m, map[string]any{"issueId": itemID, "input": input}, &data); err != nil {
		return err
	}
	if !data.IssueUpdate.Success {
		return fmt.Errorf("issueUpdate for %s not successful", itemID)
	}
	return nil
}

func (c *Client) AddComment(ctx context.Context, itemID, body string) error {
	var data struct {
		CommentCreate struct {
			Success bool `json:"success"`
		} `json:"commentCreate"`
	}
	m := `mutation AddComment($issueId: String!, $body: String!) {
		commentCreate(input: { issueId: $issueId, body: $body }) { success }
	}`
	if err := c.query(ctx, m, map[string]any{"issueId": itemID, "body": body}, &data); err != nil {
		return err
	}
	if !data.CommentCreate.Success {
		return fmt.Errorf("commentCreate for %s not successful", itemID)
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxErrorBodyLength {
		return s
	}
	return s[:maxErrorBodyLength] + fmt.Sprintf("... [truncated, total_length=%d]", len(s))
}
