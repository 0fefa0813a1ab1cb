// Package nodeapi is a minimal client for the configuration collector's REST
// API. All calls are bounded single GETs: the client never retries, and it
// folds every transport failure and non-2xx response into ErrUnavailable so
// callers only distinguish "got data" from "did not".
package nodeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ncm-portal/internal/observability/metrics"
)

var (
	// ErrBadBaseURL indicates a base URL that is not absolute. Raised at
	// construction, never per request.
	ErrBadBaseURL = errors.New("nodeapi: invalid base url")
	// ErrUnavailable indicates the API could not be reached or answered with
	// a non-success status.
	ErrUnavailable = errors.New("nodeapi: unavailable")
)

// Client issues GET requests against one collector API.
type Client struct {
	base   *url.URL
	client *http.Client
}

// NewClient validates baseURL and constructs a client.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, ErrBadBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadBaseURL, baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// Relative references resolve against the directory of the base path, so
	// a prefix like /collector only survives joining when it ends with a slash.
	if base.Path == "" || base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}
	return &Client{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Get fetches path (joined against the base URL) with the given query and
// returns the raw body. JSON decoding is the caller's concern.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.get(ctx, "raw", path, query)
}

// get performs the request. endpoint is a low-cardinality label for metrics;
// path may embed node addresses and must not be used as a label.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	if c == nil || c.base == nil {
		return nil, errors.New("nodeapi: nil client")
	}

	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("nodeapi: bad path %q: %w", path, err)
	}
	target := c.base.ResolveReference(ref)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveRemoteRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveRemoteRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveRemoteRequest(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.ObserveRemoteRequest(endpoint, "success", time.Since(start).Seconds())
	return body, nil
}

// Nodes fetches the full node list.
func (c *Client) Nodes(ctx context.Context) ([]Node, error) {
	body, err := c.get(ctx, "nodes", "nodes.json", nil)
	if err != nil {
		return nil, err
	}
	var nodes []Node
	if err := json.Unmarshal(body, &nodes); err != nil {
		return nil, fmt.Errorf("nodeapi: decode nodes: %w", err)
	}
	return nodes, nil
}

// NodeStats fetches the collector's per-node status statistics. The payload
// is passed through verbatim, so the raw body is returned.
func (c *Client) NodeStats(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "node_stats", "nodes/stats.json", nil)
}

// NodeShow fetches detail for one node.
func (c *Client) NodeShow(ctx context.Context, address string) (*Node, error) {
	body, err := c.get(ctx, "node_show", "node/show/"+url.PathEscape(address)+".json", nil)
	if err != nil {
		return nil, err
	}
	var node Node
	if err := json.Unmarshal(body, &node); err != nil {
		return nil, fmt.Errorf("nodeapi: decode node %s: %w", address, err)
	}
	return &node, nil
}

// NodeVersions fetches the stored version list for one node, in the order
// the collector reports it.
func (c *Client) NodeVersions(ctx context.Context, address string) ([]Version, error) {
	query := url.Values{"node_full": []string{address}}
	body, err := c.get(ctx, "node_versions", "node/version.json", query)
	if err != nil {
		return nil, err
	}
	var versions []Version
	if err := json.Unmarshal(body, &versions); err != nil {
		return nil, fmt.Errorf("nodeapi: decode versions %s: %w", address, err)
	}
	return versions, nil
}

// NodeFetch retrieves the live configuration blob for one node. The body is
// plain text, not JSON.
func (c *Client) NodeFetch(ctx context.Context, address string) ([]byte, error) {
	return c.get(ctx, "node_fetch", "node/fetch/"+url.PathEscape(address), nil)
}

// VersionView retrieves one historical configuration version as the list of
// lines the collector returns.
func (c *Client) VersionView(ctx context.Context, address, oid, date, num string) ([]string, error) {
	query := url.Values{
		"node":  []string{address},
		"group": []string{""},
		"oid":   []string{oid},
		"date":  []string{date},
		"num":   []string{num},
	}
	body, err := c.get(ctx, "version_view", "node/version/view.json", query)
	if err != nil {
		return nil, err
	}
	var lines []string
	if err := json.Unmarshal(body, &lines); err != nil {
		return nil, fmt.Errorf("nodeapi: decode version view %s: %w", address, err)
	}
	return lines, nil
}

// ReloadAll asks the collector to reload its node database. Success means
// the trigger call completed; the reload itself is asynchronous.
func (c *Client) ReloadAll(ctx context.Context) error {
	_, err := c.get(ctx, "reload", "reload.json", nil)
	return err
}

// ReloadNode asks the collector to re-fetch one node's configuration.
func (c *Client) ReloadNode(ctx context.Context, address string) error {
	_, err := c.get(ctx, "reload_node", "node/next/"+url.PathEscape(address)+".json", nil)
	return err
}
