package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/arielsz/jarvisz/pkg/config"
	"github.com/arielsz/jarvisz/pkg/logger"
)

const (
	defaultCalendarBase = "https://www.googleapis.com/calendar/v3"
	defaultTasksBase    = "https://tasks.googleapis.com/tasks/v1"
	defaultTokenURL     = "https://oauth2.googleapis.com/token"
)

// googleToken mirrors the authorized-user token file written by the Google
// OAuth tooling.
type googleToken struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Expiry       time.Time `json:"expiry"`
}

// GoogleClient talks to the Calendar and Tasks REST APIs with a refreshable
// OAuth token. It implements both Calendar and Tasks.
type GoogleClient struct {
	tokenPath    string
	clientID     string
	clientSecret string
	loc          *time.Location

	httpClient   *http.Client
	calendarBase string
	tasksBase    string
	tokenURL     string
	now          func() time.Time

	mu    sync.Mutex
	token *googleToken
}

func NewGoogleClient(cfg config.GoogleConfig, tokenPath string, loc *time.Location) *GoogleClient {
	return &GoogleClient{
		tokenPath:    tokenPath,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		loc:          loc,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		calendarBase: defaultCalendarBase,
		tasksBase:    defaultTasksBase,
		tokenURL:     defaultTokenURL,
		now:          time.Now,
	}
}

func (g *GoogleClient) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token == nil {
		data, err := os.ReadFile(g.tokenPath)
		if err != nil {
			return "", fmt.Errorf("read google token: %w", err)
		}
		var tok googleToken
		if err := json.Unmarshal(data, &tok); err != nil {
			return "", fmt.Errorf("parse google token: %w", err)
		}
		g.token = &tok
	}

	if g.token.AccessToken != "" && g.now().Before(g.token.Expiry.Add(-time.Minute)) {
		return g.token.AccessToken, nil
	}
	if g.token.RefreshToken == "" {
		return "", fmt.Errorf("google token expired and no refresh token available")
	}
	if err := g.refresh(ctx); err != nil {
		return "", err
	}
	return g.token.AccessToken, nil
}

func (g *GoogleClient) refresh(ctx context.Context) error {
	clientID := g.token.ClientID
	clientSecret := g.token.ClientSecret
	if clientID == "" {
		clientID = g.clientID
		clientSecret = g.clientSecret
	}

	form := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"refresh_token": {g.token.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh google token: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh google token: status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("parse refresh response: %w", err)
	}
	g.token.AccessToken = out.AccessToken
	g.token.Expiry = g.now().Add(time.Duration(out.ExpiresIn) * time.Second)

	g.persistToken()
	logger.InfoC("google", "access token refreshed")
	return nil
}

func (g *GoogleClient) persistToken() {
	data, err := json.MarshalIndent(g.token, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(g.tokenPath, data, 0o600); err != nil {
		logger.WarnCF("google", "could not persist token", map[string]interface{}{"error": err.Error()})
	}
}

func (g *GoogleClient) do(ctx context.Context, method, rawURL string, payload interface{}, out interface{}) error {
	token, err := g.accessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("google api %s %s: status %d: %s", method, rawURL, resp.StatusCode, truncate(string(respBody), 200))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse google response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// --- Calendar ---

type apiEvent struct {
	ID      string       `json:"id,omitempty"`
	Summary string       `json:"summary,omitempty"`
	Start   *apiDateTime `json:"start,omitempty"`
	End     *apiDateTime `json:"end,omitempty"`
}

type apiDateTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

func (g *GoogleClient) parseEvent(raw apiEvent) (Event, bool) {
	ev := Event{ID: raw.ID, Summary: raw.Summary}
	if raw.Start == nil || raw.End == nil {
		return ev, false
	}
	if raw.Start.Date != "" {
		ev.AllDay = true
		start, err1 := time.ParseInLocation("2006-01-02", raw.Start.Date, g.loc)
		end, err2 := time.ParseInLocation("2006-01-02", raw.End.Date, g.loc)
		if err1 != nil || err2 != nil {
			return ev, false
		}
		ev.Start, ev.End = start, end
		return ev, true
	}
	start, err1 := time.Parse(time.RFC3339, raw.Start.DateTime)
	end, err2 := time.Parse(time.RFC3339, raw.End.DateTime)
	if err1 != nil || err2 != nil {
		return ev, false
	}
	ev.Start, ev.End = start, end
	return ev, true
}

// Agenda fetches the next daysAhead days across every calendar on the account.
func (g *GoogleClient) Agenda(ctx context.Context, daysAhead int) (string, error) {
	now := g.now().In(g.loc)
	rangeStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.loc)
	rangeEnd := rangeStart.AddDate(0, 0, daysAhead).Add(23*time.Hour + 59*time.Minute)

	var calList struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := g.do(ctx, http.MethodGet, g.calendarBase+"/users/me/calendarList", nil, &calList); err != nil {
		return "", err
	}

	var events []Event
	for _, cal := range calList.Items {
		q := url.Values{
			"timeMin":      {rangeStart.Format(time.RFC3339)},
			"timeMax":      {rangeEnd.Format(time.RFC3339)},
			"singleEvents": {"true"},
			"orderBy":      {"startTime"},
		}
		var res struct {
			Items []apiEvent `json:"items"`
		}
		u := fmt.Sprintf("%s/calendars/%s/events?%s", g.calendarBase, url.PathEscape(cal.ID), q.Encode())
		if err := g.do(ctx, http.MethodGet, u, nil, &res); err != nil {
			// One broken calendar should not hide the rest.
			logger.WarnCF("google", "calendar fetch failed", map[string]interface{}{
				"calendar": cal.ID, "error": err.Error(),
			})
			continue
		}
		for _, raw := range res.Items {
			if ev, ok := g.parseEvent(raw); ok {
				events = append(events, ev)
			}
		}
	}

	return FormatAgenda(events, now, daysAhead, g.loc), nil
}

// AddEvent creates a one hour event on the primary calendar.
func (g *GoogleClient) AddEvent(ctx context.Context, summary, startISO string) error {
	start, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		start, err = time.ParseInLocation("2006-01-02T15:04:05", startISO, g.loc)
		if err != nil {
			return fmt.Errorf("invalid start time %q: %w", startISO, err)
		}
	}
	end := start.Add(time.Hour)

	payload := apiEvent{
		Summary: summary,
		Start:   &apiDateTime{DateTime: start.Format(time.RFC3339), TimeZone: g.loc.String()},
		End:     &apiDateTime{DateTime: end.Format(time.RFC3339), TimeZone: g.loc.String()},
	}
	return g.do(ctx, http.MethodPost, g.calendarBase+"/calendars/primary/events", payload, nil)
}

// FindNextEvent scans the next 50 upcoming primary-calendar events for a
// summary containing query.
func (g *GoogleClient) FindNextEvent(ctx context.Context, query string) (*Event, error) {
	q := url.Values{
		"timeMin":      {g.now().UTC().Format(time.RFC3339)},
		"maxResults":   {"50"},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
	}
	var res struct {
		Items []apiEvent `json:"items"`
	}
	u := g.calendarBase + "/calendars/primary/events?" + q.Encode()
	if err := g.do(ctx, http.MethodGet, u, nil, &res); err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	for _, raw := range res.Items {
		if strings.Contains(strings.ToLower(raw.Summary), query) {
			if ev, ok := g.parseEvent(raw); ok {
				return &ev, nil
			}
		}
	}
	return nil, nil
}

func (g *GoogleClient) DeleteEvent(ctx context.Context, eventID string) error {
	u := g.calendarBase + "/calendars/primary/events/" + url.PathEscape(eventID)
	return g.do(ctx, http.MethodDelete, u, nil, nil)
}

// --- Tasks ---

type apiTask struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Notes string `json:"notes,omitempty"`
	Due   string `json:"due,omitempty"`
}

type apiTaskList struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (g *GoogleClient) taskLists(ctx context.Context) ([]apiTaskList, error) {
	var res struct {
		Items []apiTaskList `json:"items"`
	}
	if err := g.do(ctx, http.MethodGet, g.tasksBase+"/users/@me/lists", nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (g *GoogleClient) listTasks(ctx context.Context, listID string) ([]apiTask, error) {
	q := url.Values{
		"showCompleted": {"false"},
		"showHidden":    {"false"},
		"maxResults":    {"20"},
	}
	var res struct {
		Items []apiTask `json:"items"`
	}
	u := fmt.Sprintf("%s/lists/%s/tasks?%s", g.tasksBase, url.PathEscape(listID), q.Encode())
	if err := g.do(ctx, http.MethodGet, u, nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// PendingList returns all pending tasks across every task list.
func (g *GoogleClient) PendingList(ctx context.Context) (string, error) {
	lists, err := g.taskLists(ctx)
	if err != nil {
		return "", err
	}
	if len(lists) == 0 {
		return "Sin listas de tareas", nil
	}

	var tasks []Task
	for _, list := range lists {
		items, err := g.listTasks(ctx, list.ID)
		if err != nil {
			logger.WarnCF("google", "task list fetch failed", map[string]interface{}{
				"list": list.ID, "error": err.Error(),
			})
			continue
		}
		for _, raw := range items {
			t := Task{ID: raw.ID, ListID: list.ID, ListName: list.Title, Title: raw.Title, Notes: raw.Notes}
			if raw.Due != "" {
				if due, err := time.Parse(time.RFC3339, raw.Due); err == nil {
					t.Due = due
				}
			}
			tasks = append(tasks, t)
		}
	}
	return FormatTasks(tasks, g.loc), nil
}

// CreateTask adds a task to the first task list, with an optional due date.
func (g *GoogleClient) CreateTask(ctx context.Context, title, dueISO string) error {
	lists, err := g.taskLists(ctx)
	if err != nil {
		return err
	}
	if len(lists) == 0 {
		return fmt.Errorf("no task lists available")
	}
	u := fmt.Sprintf("%s/lists/%s/tasks", g.tasksBase, url.PathEscape(lists[0].ID))
	return g.do(ctx, http.MethodPost, u, apiTask{Title: title, Due: dueISO}, nil)
}

// FindTask scans every list for the first pending task whose title contains
// query.
func (g *GoogleClient) FindTask(ctx context.Context, query string) (*Task, error) {
	lists, err := g.taskLists(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	for _, list := range lists {
		items, err := g.listTasks(ctx, list.ID)
		if err != nil {
			continue
		}
		for _, raw := range items {
			if strings.Contains(strings.ToLower(raw.Title), query) {
				return &Task{ID: raw.ID, ListID: list.ID, ListName: list.Title, Title: raw.Title}, nil
			}
		}
	}
	return nil, nil
}

func (g *GoogleClient) DeleteTask(ctx context.Context, taskID, listID string) error {
	u := fmt.Sprintf("%s/lists/%s/tasks/%s", g.tasksBase, url.PathEscape(listID), url.PathEscape(taskID))
	return g.do(ctx, http.MethodDelete, u, nil, nil)
}
