package handshake

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"yggproxy/internal/session"
)

type upstreamCall struct {
	method string
	path   string
	body   string
}

type fakeConnector struct {
	calls  []upstreamCall
	status int
	body   string
	err    error
}

func (f *fakeConnector) Request(_ context.Context, method, pathAndQuery string, body []byte) (int, []byte, error) {
	f.calls = append(f.calls, upstreamCall{method: method, path: pathAndQuery, body: string(body)})
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.status, []byte(f.body), nil
}

type fakeResolver map[string]string

func (f fakeResolver) Resolve(_ context.Context, credential string) (string, bool) {
	name, ok := f[credential]
	return name, ok
}

func newServiceForTest(t *testing.T, resolver fakeResolver, connector *fakeConnector) (*Service, session.Store) {
	t.Helper()
	store := session.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	svc := New(resolver, store, connector)
	svc.now = func() time.Time { return time.Unix(5000, 0) }
	return svc, store
}

func doJoin(t *testing.T, svc *Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/session/minecraft/join", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := svc.Join(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	return rec
}

func doHasJoined(t *testing.T, svc *Service, username, serverID string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	target := "/session/minecraft/hasJoined"
	if username != "" || serverID != "" {
		target += "?username=" + username + "&serverId=" + serverID
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	if err := svc.HasJoined(e.NewContext(req, rec)); err != nil {
		t.Fatalf("HasJoined failed: %v", err)
	}
	return rec
}

func TestJoinWithoutCredentialIsPassThrough(t *testing.T) {
	connector := &fakeConnector{status: http.StatusForbidden}
	svc, store := newServiceForTest(t, fakeResolver{}, connector)

	body := `{"selectedProfile":"Alice","serverId":"srv-1"}`
	rec := doJoin(t, svc, body)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected upstream 403 relayed, got %d", rec.Code)
	}
	if len(connector.calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(connector.calls))
	}
	call := connector.calls[0]
	if call.method != http.MethodPost || call.path != "join" {
		t.Fatalf("expected POST join, got %s %s", call.method, call.path)
	}
	if call.body != body {
		t.Fatalf("expected body forwarded verbatim, got %q", call.body)
	}
	if _, ok, _ := store.CheckJoin(context.Background(), "alice", "srv-1", time.Unix(5000, 0)); ok {
		t.Fatal("pass-through join must not record a session")
	}
}

func TestJoinUnknownCredential(t *testing.T) {
	connector := &fakeConnector{status: http.StatusOK}
	svc, store := newServiceForTest(t, fakeResolver{}, connector)

	rec := doJoin(t, svc, `{"selectedProfile":"Alice","serverId":"srv-1","authString":"bogus"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(connector.calls) != 0 {
		t.Fatalf("expected no upstream call, got %d", len(connector.calls))
	}
	if _, ok, _ := store.CheckJoin(context.Background(), "alice", "srv-1", time.Unix(5000, 0)); ok {
		t.Fatal("rejected join must not record a session")
	}
}

func TestJoinProfileNameMismatch(t *testing.T) {
	connector := &fakeConnector{status: http.StatusOK}
	svc, _ := newServiceForTest(t, fakeResolver{"tok": "Bob"}, connector)

	rec := doJoin(t, svc, `{"selectedProfile":"Carol","serverId":"srv-1","authString":"tok"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(connector.calls) != 0 {
		t.Fatalf("expected no upstream call, got %d", len(connector.calls))
	}
}

func TestJoinProfileNameMatchIsCaseSensitive(t *testing.T) {
	connector := &fakeConnector{status: http.StatusOK}
	svc, _ := newServiceForTest(t, fakeResolver{"tok": "Bob"}, connector)

	rec := doJoin(t, svc, `{"selectedProfile":"bob","serverId":"srv-1","authString":"tok"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for case mismatch, got %d", rec.Code)
	}
}

func TestJoinWithCredentialRecordsSession(t *testing.T) {
	connector := &fakeConnector{status: http.StatusOK, body: `{"id":"abc123","name":"Bob"}`}
	svc, store := newServiceForTest(t, fakeResolver{"tok": "Bob"}, connector)

	rec := doJoin(t, svc, `{"selectedProfile":"Bob","serverId":"srv-1","authString":"tok"}`)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(connector.calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(connector.calls))
	}
	if call := connector.calls[0]; call.method != http.MethodGet || call.path != "profile/Bob" {
		t.Fatalf("expected GET profile/Bob, got %s %s", call.method, call.path)
	}

	profileID, ok, _ := store.CheckJoin(context.Background(), "bob", "srv-1", time.Unix(5000, 0))
	if !ok || profileID != "Bob" {
		t.Fatalf("expected session keyed on canonical name, got %q (ok=%t)", profileID, ok)
	}
}

func TestJoinUpstreamProfileMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no name field", `{"id":"abc123"}`},
		{"not json", `<html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			connector := &fakeConnector{status: http.StatusOK, body: tc.body}
			svc, store := newServiceForTest(t, fakeResolver{"tok": "Bob"}, connector)

			rec := doJoin(t, svc, `{"selectedProfile":"Bob","serverId":"srv-1","authString":"tok"}`)

			if rec.Code != http.StatusServiceUnavailable {
				t.Fatalf("expected 503, got %d", rec.Code)
			}
			if _, ok, _ := store.CheckJoin(context.Background(), "bob", "srv-1", time.Unix(5000, 0)); ok {
				t.Fatal("failed join must not record a session")
			}
		})
	}
}

func TestJoinUpstreamTransportFailure(t *testing.T) {
	connector := &fakeConnector{err: errors.New("connection refused")}
	svc, _ := newServiceForTest(t, fakeResolver{"tok": "Bob"}, connector)

	rec := doJoin(t, svc, `{"selectedProfile":"Bob","serverId":"srv-1","authString":"tok"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on transport failure, got %d", rec.Code)
	}

	rec = doJoin(t, svc, `{"selectedProfile":"Bob","serverId":"srv-1"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on pass-through transport failure, got %d", rec.Code)
	}
}

func TestJoinMalformedBody(t *testing.T) {
	connector := &fakeConnector{status: http.StatusOK}
	svc, _ := newServiceForTest(t, fakeResolver{}, connector)

	rec := doJoin(t, svc, `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHasJoinedAnswersFromLocalSession(t *testing.T) {
	profileID := uuid.NewString()
	connector := &fakeConnector{status: http.StatusOK, body: `{"id":"` + profileID + `","name":"Bob","properties":[]}`}
	svc, store := newServiceForTest(t, fakeResolver{}, connector)

	if err := store.RecordJoin(context.Background(), "bob", profileID, "srv-1", time.Unix(5000, 0)); err != nil {
		t.Fatalf("RecordJoin failed: %v", err)
	}

	rec := doHasJoined(t, svc, "Bob", "srv-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(connector.calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(connector.calls))
	}
	if call := connector.calls[0]; call.path != "profile/"+profileID+"?unsigned=false" {
		t.Fatalf("expected signed profile fetch for stored id, got %s", call.path)
	}
	if !strings.Contains(rec.Body.String(), profileID) {
		t.Fatalf("expected upstream body relayed, got %q", rec.Body.String())
	}
}

func TestHasJoinedForwardsOnMiss(t *testing.T) {
	connector := &fakeConnector{status: http.StatusNoContent, body: ""}
	svc, _ := newServiceForTest(t, fakeResolver{}, connector)

	rec := doHasJoined(t, svc, "Bob", "srv-1")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected upstream status relayed, got %d", rec.Code)
	}
	if len(connector.calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(connector.calls))
	}
	if call := connector.calls[0]; call.path != "hasJoined?serverId=srv-1&username=bob" {
		t.Fatalf("expected forwarded hasJoined query, got %s", call.path)
	}
}

func TestHasJoinedExpiredSessionForwards(t *testing.T) {
	connector := &fakeConnector{status: http.StatusOK, body: `{}`}
	svc, store := newServiceForTest(t, fakeResolver{}, connector)

	if err := store.RecordJoin(context.Background(), "bob", "uuid-bob", "srv-1", time.Unix(5000-120, 0)); err != nil {
		t.Fatalf("RecordJoin failed: %v", err)
	}

	rec := doHasJoined(t, svc, "bob", "srv-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if call := connector.calls[0]; !strings.HasPrefix(call.path, "hasJoined?") {
		t.Fatalf("expected expired session to forward upstream, got %s", call.path)
	}
}

func TestHasJoinedMissingParams(t *testing.T) {
	connector := &fakeConnector{status: http.StatusOK}
	svc, _ := newServiceForTest(t, fakeResolver{}, connector)

	rec := doHasJoined(t, svc, "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(connector.calls) != 0 {
		t.Fatalf("expected no upstream call, got %d", len(connector.calls))
	}
}

func TestHasJoinedUpstreamTransportFailure(t *testing.T) {
	connector := &fakeConnector{err: errors.New("connection refused")}
	svc, _ := newServiceForTest(t, fakeResolver{}, connector)

	rec := doHasJoined(t, svc, "bob", "srv-1")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
