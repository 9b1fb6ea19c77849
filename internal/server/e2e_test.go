package server

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/eventdesk/internal/api"
	"github.com/dukerupert/eventdesk/internal/approval"
	"github.com/dukerupert/eventdesk/internal/attendance"
	"github.com/dukerupert/eventdesk/internal/model"
	"github.com/dukerupert/eventdesk/internal/session"
)

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return d
}

func mustTime(t *testing.T, s string) model.TimeOfDay {
	t.Helper()
	tod, err := model.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return tod
}

// signIn logs key in through the client and returns a request context bound
// to the resulting identity.
func signIn(t *testing.T, c *api.Client, mgr *session.Manager, key string) context.Context {
	t.Helper()
	tok, err := c.Login(context.Background(), key+"@example.com", "password-"+key)
	if err != nil {
		t.Fatalf("login %s: %v", key, err)
	}
	mgr.Switch(api.Identity(tok))
	ctx, done, err := mgr.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	t.Cleanup(done)
	return ctx
}

func TestApprovalWorkflowEndToEnd(t *testing.T) {
	env := setupTestServer(t)
	client := api.NewClient(env.http.URL)
	mgr := session.NewManager()
	venue := env.createVenue(t, "Main", 50)

	hostCtx := signIn(t, client, mgr, "host")
	in := model.EventInput{
		Name:      "Morning",
		Date:      mustDate(t, "2025-04-10"),
		StartTime: mustTime(t, "09:00:00"),
		EndTime:   mustTime(t, "11:00:00"),
		VenueID:   &venue,
	}
	morning, err := client.CreateEvent(hostCtx, in)
	if err != nil {
		t.Fatalf("create morning: %v", err)
	}
	in.Name = "Overlap"
	in.StartTime, in.EndTime = mustTime(t, "10:00:00"), mustTime(t, "12:00:00")
	overlap, err := client.CreateEvent(hostCtx, in)
	if err != nil {
		t.Fatalf("create overlap: %v", err)
	}

	adminCtx := signIn(t, client, mgr, "admin")
	coord := approval.New(client, approval.WithFanoutLimit(2))

	pending, err := coord.LoadPending(adminCtx)
	if err != nil {
		t.Fatalf("load pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	for _, p := range pending {
		if p.Availability != model.Available || p.CheckErr != nil {
			t.Errorf("event %d: availability = %v err = %v, want Available", p.ID, p.Availability, p.CheckErr)
		}
	}

	if err := coord.Decide(adminCtx, morning.ID, model.StatusConfirmed); err != nil {
		t.Fatalf("confirm morning: %v", err)
	}
	if err := coord.Decide(adminCtx, morning.ID, model.StatusRejected); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second decide: err = %v, want ErrNotFound", err)
	}

	if _, err := coord.LoadPending(adminCtx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	avail := coord.Availability(adminCtx)
	if len(avail) != 1 || avail[overlap.ID] {
		t.Errorf("availability after confirm = %v, want {%d:false}", avail, overlap.ID)
	}

	err = coord.Decide(adminCtx, overlap.ID, model.StatusConfirmed)
	if api.StatusCode(err) != 409 {
		t.Errorf("confirm overlap: err = %v, want 409", err)
	}
	if len(coord.Pending(adminCtx)) != 1 {
		t.Error("failed decision should put the event back")
	}
	if err := coord.Decide(adminCtx, overlap.ID, model.StatusRejected); err != nil {
		t.Fatalf("reject overlap: %v", err)
	}

	confirmed, err := client.ListEvents(adminCtx)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(confirmed) != 1 || confirmed[0].ID != morning.ID {
		t.Errorf("confirmed = %+v, want only %d", confirmed, morning.ID)
	}
}

func TestAttendanceEndToEnd(t *testing.T) {
	env := setupTestServer(t)
	client := api.NewClient(env.http.URL)
	mgr := session.NewManager()
	ev := env.createEvent(t, "host", env.createVenue(t, "Hall", 2), "10:00:00", "11:00:00")
	coord := attendance.New(client)

	annCtx := signIn(t, client, mgr, "ann")
	annID := env.users["ann"].ID
	if err := coord.Register(annCtx, ev.ID, annID, model.KindParticipant); err != nil {
		t.Fatalf("register ann: %v", err)
	}
	if err := coord.Register(annCtx, ev.ID, annID, model.KindParticipant); !errors.Is(err, model.ErrRegistrationRejected) {
		t.Errorf("duplicate register: err = %v, want ErrRegistrationRejected", err)
	}
	m, err := coord.MarkOwnAttendance(annCtx, ev.ID)
	if err != nil {
		t.Fatalf("self mark: %v", err)
	}
	if m.Path != attendance.SelfService || m.Suppressed {
		t.Errorf("mark = %+v", m)
	}

	boCtx := signIn(t, client, mgr, "bo")
	if err := coord.Register(boCtx, ev.ID, env.users["bo"].ID, model.KindParticipant); err != nil {
		t.Fatalf("register bo: %v", err)
	}

	hostCtx := signIn(t, client, mgr, "host")
	results := coord.MarkAttendanceForAll(hostCtx, ev.ID, []int64{annID, env.users["bo"].ID, env.users["admin"].ID})
	if results[0].Err != nil || results[1].Err != nil {
		t.Errorf("registered marks failed: %v %v", results[0].Err, results[1].Err)
	}
	if !errors.Is(results[2].Err, model.ErrAttendanceMarkFailed) {
		t.Errorf("unregistered mark: err = %v, want ErrAttendanceMarkFailed", results[2].Err)
	}

	again, err := coord.MarkAttendance(hostCtx, ev.ID, annID)
	if err != nil || !again.Suppressed {
		t.Errorf("repeat mark = %+v err = %v, want suppressed", again, err)
	}

	roster, err := coord.Roster(hostCtx, ev.ID)
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster) != 2 || !roster[0].Attended || !roster[1].Attended {
		t.Errorf("roster = %+v", roster)
	}
}
