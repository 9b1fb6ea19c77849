package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/eventdesk/internal/database"
	"github.com/dukerupert/eventdesk/internal/model"
)

type testEnv struct {
	srv   *Server
	http  *httptest.Server
	users map[string]*model.User
	// tokens holds a live bearer token per user key.
	tokens map[string]string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, Config{TokenTTL: time.Hour, Registry: prometheus.NewRegistry()}, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	env := &testEnv{srv: srv, http: ts, users: map[string]*model.User{}, tokens: map[string]string{}}
	for _, u := range []struct {
		key  string
		role model.Role
	}{
		{"admin", model.RoleAdmin},
		{"host", model.RoleOrganizer},
		{"ann", model.RoleParticipant},
		{"bo", model.RoleParticipant},
	} {
		created, err := srv.UserStore().Create(u.key, u.key+"@example.com", "password-"+u.key, u.role)
		if err != nil {
			t.Fatalf("create %s: %v", u.key, err)
		}
		sess, err := srv.SessionStore().Create(created.ID, time.Hour)
		if err != nil {
			t.Fatalf("session %s: %v", u.key, err)
		}
		env.users[u.key] = created
		env.tokens[u.key] = sess.Token
	}
	return env
}

func (e *testEnv) do(t *testing.T, who, method, path, body string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[who])
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func (e *testEnv) createVenue(t *testing.T, name string, capacity int) int64 {
	t.Helper()
	body := `{"name":"` + name + `","location":"Hall ` + name + `","capacity":` + strconv.Itoa(capacity) + `}`
	resp, out := e.do(t, "admin", http.MethodPost, "/api/venues/create", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create venue: status %d: %s", resp.StatusCode, out)
	}
	var v model.Venue
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode venue: %v", err)
	}
	return v.ID
}

func (e *testEnv) createEvent(t *testing.T, who string, venueID int64, start, end string) model.Event {
	t.Helper()
	body := `{"name":"Gala","date":"2025-04-10","start_time":"` + start + `","end_time":"` + end + `","venue_id":` + itoa(venueID) + `}`
	resp, out := e.do(t, who, http.MethodPost, "/api/events/create", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create event: status %d: %s", resp.StatusCode, out)
	}
	var ev model.Event
	if err := json.Unmarshal([]byte(out), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)
	resp, body := env.do(t, "", http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"ok"`) {
		t.Errorf("body = %q", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, "", http.MethodGet, "/health", "")

	resp, body := env.do(t, "", http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "eventd_http_requests_total") {
		t.Error("expected request counter in /metrics output")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupTestServer(t)
	paths := []string{"/api/events/all", "/api/events/pending", "/api/users/me", "/api/venues/all"}
	for _, p := range paths {
		resp, _ := env.do(t, "", http.MethodGet, p, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s: status = %d, want 401", p, resp.StatusCode)
		}
	}
}

func TestAdminRoutesForbidden(t *testing.T) {
	env := setupTestServer(t)
	resp, _ := env.do(t, "host", http.MethodGet, "/api/events/pending", "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestServer(t)

	resp, body := env.do(t, "", http.MethodPost, "/api/auth/register", `{"name":"Cy","email":"cy@example.com","password":"longenough"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d: %s", resp.StatusCode, body)
	}
	var tok model.Token
	json.Unmarshal([]byte(body), &tok)
	if tok.AccessToken == "" || tok.Role != model.RoleParticipant {
		t.Errorf("token = %+v", tok)
	}

	resp, _ = env.do(t, "", http.MethodPost, "/api/auth/register", `{"name":"Cy","email":"CY@example.com","password":"longenough"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register: status = %d, want 409", resp.StatusCode)
	}

	resp, _ = env.do(t, "", http.MethodPost, "/api/auth/register", `{"name":"Di","email":"di@example.com","password":"short"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short password: status = %d, want 400", resp.StatusCode)
	}

	resp, body = env.do(t, "", http.MethodPost, "/api/auth/login", `{"email":"cy@example.com","password":"wrong-password"}`)
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(body, "Invalid credentials") {
		t.Errorf("bad login: status = %d body = %q", resp.StatusCode, body)
	}

	resp, body = env.do(t, "", http.MethodPost, "/api/auth/login", `{"email":"cy@example.com","password":"longenough"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d: %s", resp.StatusCode, body)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := env.do(t, "ann", http.MethodPost, "/api/auth/logout", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, "ann", http.MethodGet, "/api/users/me", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("after logout: status = %d, want 401", resp.StatusCode)
	}
}

func TestParticipantCannotCreateEvent(t *testing.T) {
	env := setupTestServer(t)
	resp, _ := env.do(t, "ann", http.MethodPost, "/api/events/create",
		`{"name":"Picnic","date":"2025-04-10","start_time":"10:00:00","end_time":"11:00:00"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestCreateEventValidation(t *testing.T) {
	env := setupTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"date":"2025-04-10","start_time":"10:00:00","end_time":"11:00:00"}`},
		{"end before start", `{"name":"x","date":"2025-04-10","start_time":"12:00:00","end_time":"11:00:00"}`},
		{"unknown venue", `{"name":"x","date":"2025-04-10","start_time":"10:00:00","end_time":"11:00:00","venue_id":99}`},
		{"bad date", `{"name":"x","date":"10/04/2025","start_time":"10:00:00","end_time":"11:00:00"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, "host", http.MethodPost, "/api/events/create", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestApproveConflict(t *testing.T) {
	env := setupTestServer(t)
	venue := env.createVenue(t, "A", 100)

	first := env.createEvent(t, "host", venue, "10:00:00", "12:00:00")
	second := env.createEvent(t, "host", venue, "11:00:00", "13:00:00")
	if first.Status != model.StatusPending {
		t.Errorf("new event status = %q, want Pending", first.Status)
	}

	_, body := env.do(t, "admin", http.MethodGet, "/api/events/availability/"+itoa(second.ID), "")
	if body != "Available" {
		t.Errorf("availability before approval = %q, want Available", body)
	}

	resp, _ := env.do(t, "admin", http.MethodPost, "/api/events/approve/"+itoa(first.ID), `{"status":"Confirmed"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve first: status = %d", resp.StatusCode)
	}

	resp, body = env.do(t, "admin", http.MethodGet, "/api/events/availability/"+itoa(second.ID), "")
	if resp.StatusCode != http.StatusOK || body != "Unavailable" {
		t.Errorf("availability after approval = %d %q, want Unavailable", resp.StatusCode, body)
	}

	resp, body = env.do(t, "admin", http.MethodPost, "/api/events/approve/"+itoa(second.ID), `{"status":"Confirmed"}`)
	if resp.StatusCode != http.StatusConflict || !strings.Contains(body, "Another event taking place!") {
		t.Errorf("approve overlapping: status = %d body = %q", resp.StatusCode, body)
	}

	resp, _ = env.do(t, "admin", http.MethodPost, "/api/events/approve/"+itoa(second.ID), `{"status":"Rejected"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reject overlapping: status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, "admin", http.MethodPost, "/api/events/approve/"+itoa(first.ID), `{"status":"Rejected"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("decide twice: status = %d, want 409", resp.StatusCode)
	}

	resp, _ = env.do(t, "admin", http.MethodPost, "/api/events/approve/"+itoa(first.ID), `{"status":"Pending"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-terminal outcome: status = %d, want 400", resp.StatusCode)
	}
}

func TestRegistrationRules(t *testing.T) {
	env := setupTestServer(t)
	venue := env.createVenue(t, "Small", 1)
	ev := env.createEvent(t, "host", venue, "10:00:00", "11:00:00")
	path := "/api/events/register_participant/" + itoa(ev.ID)

	resp, _ := env.do(t, "ann", http.MethodPost, path, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: status = %d", resp.StatusCode)
	}

	resp, body := env.do(t, "ann", http.MethodPost, path, "")
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "Already registered") {
		t.Errorf("duplicate: status = %d body = %q", resp.StatusCode, body)
	}

	resp, body = env.do(t, "bo", http.MethodPost, path, "")
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body, "Event is full") {
		t.Errorf("full: status = %d body = %q", resp.StatusCode, body)
	}

	resp, _ = env.do(t, "bo", http.MethodPost, "/api/events/register_volunteer/"+itoa(ev.ID), "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("volunteer: status = %d", resp.StatusCode)
	}
}

func TestAttendancePermissions(t *testing.T) {
	env := setupTestServer(t)
	venue := env.createVenue(t, "B", 10)
	ev := env.createEvent(t, "host", venue, "10:00:00", "11:00:00")
	env.do(t, "ann", http.MethodPost, "/api/events/register_participant/"+itoa(ev.ID), "")

	annPath := "/api/events/" + itoa(ev.ID) + "/attendance/" + itoa(env.users["ann"].ID)
	boPath := "/api/events/" + itoa(ev.ID) + "/attendance/" + itoa(env.users["bo"].ID)

	resp, _ := env.do(t, "bo", http.MethodPost, annPath, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("unrelated user: status = %d, want 403", resp.StatusCode)
	}

	resp, _ = env.do(t, "host", http.MethodPost, boPath, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unregistered attendee: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.do(t, "host", http.MethodPost, "/api/events/"+itoa(ev.ID)+"/attendance/999", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown attendee: status = %d, want 404", resp.StatusCode)
	}

	resp, body := env.do(t, "host", http.MethodPost, annPath, "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "marked as attended for event") {
		t.Errorf("host mark: status = %d body = %q", resp.StatusCode, body)
	}

	resp, body = env.do(t, "ann", http.MethodPost, annPath, "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "already marked") {
		t.Errorf("re-mark: status = %d body = %q", resp.StatusCode, body)
	}
}

func TestParticipantListPermissions(t *testing.T) {
	env := setupTestServer(t)
	ev := env.createEvent(t, "host", env.createVenue(t, "C", 10), "10:00:00", "11:00:00")
	env.do(t, "ann", http.MethodPost, "/api/events/register_participant/"+itoa(ev.ID), "")
	path := "/api/events/participant_list/" + itoa(ev.ID)

	resp, _ := env.do(t, "ann", http.MethodGet, path, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("participant: status = %d, want 403", resp.StatusCode)
	}

	resp, body := env.do(t, "host", http.MethodGet, path, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("host: status = %d", resp.StatusCode)
	}
	var ps []model.Participant
	json.Unmarshal([]byte(body), &ps)
	if len(ps) != 1 || ps[0].ID != env.users["ann"].ID {
		t.Errorf("participants = %+v", ps)
	}
}

func TestVenueInUseCannotBeDeleted(t *testing.T) {
	env := setupTestServer(t)
	venue := env.createVenue(t, "D", 10)
	env.createEvent(t, "host", venue, "10:00:00", "11:00:00")

	resp, _ := env.do(t, "admin", http.MethodDelete, "/api/venues/delete/"+itoa(venue), "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}

	empty := env.createVenue(t, "E", 10)
	resp, _ = env.do(t, "admin", http.MethodDelete, "/api/venues/delete/"+itoa(empty), "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}
