package handshake

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"yggproxy/internal/accounts"
	"yggproxy/internal/session"
	"yggproxy/internal/upstream"
)

// Service answers the join and hasJoined handshake operations in the
// authority's stead.
type Service struct {
	accounts accounts.Resolver
	sessions session.Store
	upstream upstream.Connector
	now      func() time.Time
}

func New(resolver accounts.Resolver, store session.Store, connector upstream.Connector) *Service {
	return &Service{
		accounts: resolver,
		sessions: store,
		upstream: connector,
		now:      time.Now,
	}
}

type joinRequest struct {
	SelectedProfile string `json:"selectedProfile"`
	ServerID        string `json:"serverId"`
	AuthString      string `json:"authString,omitempty"`
}

// Join handles POST /session/minecraft/join.
//
// Without an authString the client holds real authority credentials and the
// request is passed through verbatim. With one, the credential is checked
// against the local account source and, on a match, the join is recorded
// locally so the follow-up hasJoined can be answered without the authority
// ever having seen the join.
func (s *Service) Join(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	var payload joinRequest
	if err := json.Unmarshal(raw, &payload); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	ctx := c.Request().Context()
	log.Printf("%s (auth=%t) joining %s", payload.SelectedProfile, payload.AuthString != "", payload.ServerID)

	if payload.AuthString == "" {
		status, _, err := s.upstream.Request(ctx, http.MethodPost, "join", raw)
		if err != nil {
			log.Printf("upstream join forward failed: %v", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(status)
	}

	name, ok := s.accounts.Resolve(ctx, payload.AuthString)
	if !ok || name != payload.SelectedProfile {
		return c.NoContent(http.StatusUnauthorized)
	}

	// The credential vouches for the client; the authority's own profile
	// record still decides the canonical spelling the session is keyed on.
	_, body, err := s.upstream.Request(ctx, http.MethodGet, "profile/"+url.PathEscape(payload.SelectedProfile), nil)
	if err != nil {
		log.Printf("upstream profile lookup failed: %v", err)
		return c.NoContent(http.StatusServiceUnavailable)
	}
	var profile struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &profile); err != nil || profile.Name == "" {
		return c.NoContent(http.StatusServiceUnavailable)
	}

	username := strings.ToLower(profile.Name)
	if err := s.sessions.RecordJoin(ctx, username, payload.SelectedProfile, payload.ServerID, s.now()); err != nil {
		log.Printf("record join for %s failed: %v", username, err)
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusNoContent)
}

// HasJoined handles GET /session/minecraft/hasJoined.
//
// If this proxy vouched for the join itself it answers from its own record,
// fetching the signed profile for the stored id. Otherwise the query is
// forwarded to the authority and its answer relayed untouched, so clients
// that never went through the local-credential path keep working.
func (s *Service) HasJoined(c echo.Context) error {
	username := c.QueryParam("username")
	serverID := c.QueryParam("serverId")
	if username == "" || serverID == "" {
		return c.NoContent(http.StatusBadRequest)
	}
	ctx := c.Request().Context()
	username = strings.ToLower(username)

	profileID, ok, err := s.sessions.CheckJoin(ctx, username, serverID, s.now())
	if err != nil {
		// A broken store read degrades to the forwarding path, which is
		// always a correct answer.
		log.Printf("session lookup for %s failed: %v", username, err)
	}
	if ok {
		status, body, err := s.upstream.Request(ctx, http.MethodGet, "profile/"+url.PathEscape(profileID)+"?unsigned=false", nil)
		if err != nil {
			log.Printf("upstream profile fetch failed: %v", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.Blob(status, echo.MIMEApplicationJSON, body)
	}

	query := "hasJoined?serverId=" + url.QueryEscape(serverID) + "&username=" + url.QueryEscape(username)
	status, body, err := s.upstream.Request(ctx, http.MethodGet, query, nil)
	if err != nil {
		log.Printf("upstream hasJoined forward failed: %v", err)
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.Blob(status, echo.MIMEApplicationJSON, body)
}
