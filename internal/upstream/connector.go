package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	requestTimeout = 10 * time.Second
	resolveTimeout = 5 * time.Second
)

// Connector issues requests against the real session authority.
type Connector interface {
	Request(ctx context.Context, method, pathAndQuery string, body []byte) (int, []byte, error)
}

// Client reaches the authority even though the process's ambient resolution
// of the authority hostname points back at this proxy: it resolves the
// hostname through a fixed external resolver, connects to the resulting IP
// directly, and presents the real hostname in both SNI and the Host header.
// Certificate verification is disabled because the URL names an IP address;
// this is a deliberate exception scoped to the one configured authority
// host, not a pattern to extend to other calls.
type Client struct {
	host       string
	basePath   string
	port       string
	lookup     func(ctx context.Context, host string) ([]string, error)
	httpClient *http.Client
}

// NewClient builds a connector for the authority at host, resolving it
// through the DNS server at resolverAddr (host:port, e.g. "1.1.1.1:53")
// instead of the system resolver.
func NewClient(host, resolverAddr string) *Client {
	resolver := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: resolveTimeout}
			return d.DialContext(ctx, network, resolverAddr)
		},
	}
	return &Client{
		host:     host,
		basePath: "/session/minecraft/",
		port:     "443",
		lookup:   resolver.LookupHost,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true,
					ServerName:         host,
				},
			},
		},
	}
}

// ResolveAddr returns one address for the authority hostname. There is no
// fallback chain: a failed or empty lookup fails the in-flight request.
func (c *Client) ResolveAddr(ctx context.Context) (string, error) {
	addrs, err := c.lookup(ctx, c.host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", c.host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("resolve %s: no records", c.host)
	}
	return addrs[0], nil
}

// Request resolves the authority, then issues method against pathAndQuery
// relative to the session endpoint root. The returned status and body are
// the upstream's, untouched.
func (c *Client) Request(ctx context.Context, method, pathAndQuery string, body []byte) (int, []byte, error) {
	addr, err := c.ResolveAddr(ctx)
	if err != nil {
		return 0, nil, err
	}

	u := "https://" + net.JoinHostPort(addr, c.port) + c.basePath + pathAndQuery
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("upstream %s %s: %w", method, pathAndQuery, err)
	}
	// The connection goes by IP; the upstream routes by name.
	req.Host = c.host
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("upstream %s %s: %w", method, pathAndQuery, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("upstream %s %s: read body: %w", method, pathAndQuery, err)
	}
	return resp.StatusCode, respBody, nil
}
