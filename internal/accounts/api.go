package accounts

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"
)

const apiResolveTimeout = 10 * time.Second

// APIResolver asks a remote lookup service to exchange a credential for a
// profile name. The credential travels as a query parameter; the service
// answers with a JSON object carrying a "username" field.
type APIResolver struct {
	endpoint   string
	secret     string
	httpClient *http.Client
}

// NewAPIResolver builds a resolver against the lookup service at endpoint.
// If secret is non-empty it is sent as a bearer token on every call.
func NewAPIResolver(endpoint, secret string) *APIResolver {
	return &APIResolver{
		endpoint:   endpoint,
		secret:     secret,
		httpClient: &http.Client{Timeout: apiResolveTimeout},
	}
}

func (r *APIResolver) Resolve(ctx context.Context, credential string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?token="+url.QueryEscape(credential), nil)
	if err != nil {
		return "", false
	}
	if r.secret != "" {
		req.Header.Set("Authorization", "Bearer "+r.secret)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		log.Printf("account lookup failed: %v", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false
	}
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false
	}
	if body.Username == "" {
		return "", false
	}
	return body.Username, true
}
