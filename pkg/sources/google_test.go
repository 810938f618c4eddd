package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arielsz/jarvisz/pkg/config"
)

func writeToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.json")
	tok := googleToken{
		AccessToken:  "test-access",
		RefreshToken: "test-refresh",
		ClientID:     "cid",
		ClientSecret: "secret",
		Expiry:       expiry,
	}
	data, _ := json.Marshal(tok)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestGoogle(t *testing.T, handler http.Handler) (*GoogleClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g := NewGoogleClient(config.GoogleConfig{}, writeToken(t, time.Now().Add(time.Hour)), time.UTC)
	g.calendarBase = srv.URL + "/calendar/v3"
	g.tasksBase = srv.URL + "/tasks/v1"
	g.tokenURL = srv.URL + "/token"
	return g, srv
}

func TestFindNextEvent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-access" {
			t.Errorf("bad auth header: %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{
					"id": "ev1", "summary": "Dentista",
					"start": map[string]string{"dateTime": "2026-09-01T10:00:00-03:00"},
					"end":   map[string]string{"dateTime": "2026-09-01T11:00:00-03:00"},
				},
				{
					"id": "ev2", "summary": "Reunión con Juan",
					"start": map[string]string{"dateTime": "2026-09-02T15:00:00-03:00"},
					"end":   map[string]string{"dateTime": "2026-09-02T16:00:00-03:00"},
				},
			},
		})
	})
	g, _ := newTestGoogle(t, mux)

	ev, err := g.FindNextEvent(context.Background(), "juan")
	if err != nil {
		t.Fatalf("FindNextEvent: %v", err)
	}
	if ev == nil || ev.ID != "ev2" {
		t.Fatalf("expected ev2, got %+v", ev)
	}

	ev, err = g.FindNextEvent(context.Background(), "pedro")
	if err != nil {
		t.Fatalf("FindNextEvent: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected no match, got %+v", ev)
	}
}

func TestAddEventPayload(t *testing.T) {
	var got apiEvent
	mux := http.NewServeMux()
	mux.HandleFunc("/calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"new"}`))
	})
	g, _ := newTestGoogle(t, mux)

	if err := g.AddEvent(context.Background(), "Turno médico", "2026-09-01T15:00:00-03:00"); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	if got.Summary != "Turno médico" {
		t.Fatalf("summary not sent: %+v", got)
	}
	start, _ := time.Parse(time.RFC3339, got.Start.DateTime)
	end, _ := time.Parse(time.RFC3339, got.End.DateTime)
	if end.Sub(start) != time.Hour {
		t.Fatalf("expected 1h default duration, got %v", end.Sub(start))
	}
}

func TestCreateTaskPayload(t *testing.T) {
	var got apiTask
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/v1/users/@me/lists", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"id":"l1","title":"My Tasks"}]}`))
	})
	mux.HandleFunc("/tasks/v1/lists/l1/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"t9"}`))
	})
	g, _ := newTestGoogle(t, mux)

	if err := g.CreateTask(context.Background(), "Pagar alquiler", "2026-09-01T00:00:00"); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if got.Title != "Pagar alquiler" || got.Due != "2026-09-01T00:00:00" {
		t.Fatalf("task payload wrong: %+v", got)
	}
}

func TestCreateTaskWithoutDueOmitsField(t *testing.T) {
	var raw map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/v1/users/@me/lists", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"id":"l1","title":"My Tasks"}]}`))
	})
	mux.HandleFunc("/tasks/v1/lists/l1/tasks", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{"id":"t9"}`))
	})
	g, _ := newTestGoogle(t, mux)

	if err := g.CreateTask(context.Background(), "Comprar yerba", ""); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, present := raw["due"]; present {
		t.Fatalf("empty due must be omitted: %v", raw)
	}
}

func TestPendingListAcrossLists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/v1/users/@me/lists", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"id":"l1","title":"My Tasks"},{"id":"l2","title":"Casa"}]}`))
	})
	mux.HandleFunc("/tasks/v1/lists/l1/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("showCompleted") != "false" {
			t.Error("completed tasks should be excluded")
		}
		w.Write([]byte(`{"items":[{"id":"t1","title":"Pagar alquiler","due":"2026-04-05T00:00:00Z"}]}`))
	})
	mux.HandleFunc("/tasks/v1/lists/l2/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"id":"t2","title":"Comprar yerba"}]}`))
	})
	g, _ := newTestGoogle(t, mux)

	got, err := g.PendingList(context.Background())
	if err != nil {
		t.Fatalf("PendingList: %v", err)
	}
	if !strings.Contains(got, "Pagar alquiler") || !strings.Contains(got, "Comprar yerba [Casa]") {
		t.Fatalf("unexpected list:\n%s", got)
	}
}

func TestFindTask(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/v1/users/@me/lists", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"id":"l1","title":"My Tasks"}]}`))
	})
	mux.HandleFunc("/tasks/v1/lists/l1/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"id":"t9","title":"Llamar al contador"}]}`))
	})
	g, _ := newTestGoogle(t, mux)

	task, err := g.FindTask(context.Background(), "contador")
	if err != nil {
		t.Fatalf("FindTask: %v", err)
	}
	if task == nil || task.ID != "t9" || task.ListID != "l1" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestAccessTokenRefresh(t *testing.T) {
	refreshed := false
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "test-refresh" {
			t.Errorf("bad refresh form: %v", r.Form)
		}
		refreshed = true
		w.Write([]byte(`{"access_token":"fresh","expires_in":3600}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokenPath := writeToken(t, time.Now().Add(-time.Hour))
	g := NewGoogleClient(config.GoogleConfig{}, tokenPath, time.UTC)
	g.tokenURL = srv.URL + "/token"

	token, err := g.accessToken(context.Background())
	if err != nil {
		t.Fatalf("accessToken: %v", err)
	}
	if !refreshed || token != "fresh" {
		t.Fatalf("refresh not applied, token=%q", token)
	}

	// The refreshed token must land back on disk.
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		t.Fatal(err)
	}
	var tok googleToken
	if err := json.Unmarshal(data, &tok); err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "fresh" {
		t.Fatalf("token file not updated: %+v", tok)
	}
}

func TestGarminTodayMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer garmin-token" {
			t.Errorf("bad auth header: %q", got)
		}
		w.Write([]byte(`{"bodyBatteryMostRecentValue":64,"averageStressLevel":31,"sleepScore":null,"restingHeartRate":52}`))
	}))
	defer srv.Close()

	g := NewGarminClient(config.GarminConfig{APIBase: srv.URL, Token: "garmin-token"})
	metrics, err := g.TodayMetrics(context.Background())
	if err != nil {
		t.Fatalf("TodayMetrics: %v", err)
	}
	if metrics.BodyBattery == nil || *metrics.BodyBattery != 64 {
		t.Fatalf("body battery wrong: %+v", metrics)
	}
	if metrics.SleepScore != nil {
		t.Fatalf("null sleep score should stay nil: %+v", metrics)
	}
	if metrics.RestingHR == nil || *metrics.RestingHR != 52 {
		t.Fatalf("resting hr wrong: %+v", metrics)
	}
}

func TestGarminDisabled(t *testing.T) {
	g := NewGarminClient(config.GarminConfig{})
	if g.Enabled() {
		t.Fatal("empty token should disable the client")
	}
	if _, err := g.TodayMetrics(context.Background()); err == nil {
		t.Fatal("expected error when not configured")
	}
}
