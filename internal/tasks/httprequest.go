package tasks

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"erasure/internal/ratelimit"
)

const maxResponseBytes = 1 << 20

// HTTPRequest performs a plain HTTP call. Non-read methods are side effects;
// the runner gates them behind approval under the side-effect policy. Read
// fetches honor the host's robots.txt wildcard rules.
type HTTPRequest struct {
	Client  *http.Client
	Limiter *ratelimit.Limiter

	mu     sync.Mutex
	robots map[string][]string
}

func NewHTTPRequest(limiter *ratelimit.Limiter) *HTTPRequest {
	return &HTTPRequest{
		Client:  &http.Client{Timeout: 60 * time.Second},
		Limiter: limiter,
		robots:  map[string][]string{},
	}
}

func (h *HTTPRequest) Execute(ctx context.Context, inv Invocation) (Result, error) {
	url, err := stringInput(inv.Input, "url")
	if err != nil {
		return Result{}, err
	}
	method := strings.ToUpper(optionalString(inv.Input, "method"))
	if method == "" {
		method = http.MethodGet
	}

	if h.Limiter != nil {
		key := optionalString(inv.Input, "broker_id")
		if key == "" {
			key = optionalString(inv.Params, "broker_id")
		}
		if key != "" && !h.Limiter.Allow(key) {
			return Result{}, Transient("rate_limited", "request budget exhausted for broker %s", key)
		}
	}

	var body io.Reader
	if raw := optionalString(inv.Input, "body"); raw != "" {
		body = strings.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Result{}, Permanent("bad_request", "building request: %v", err)
	}
	if ReadOnlyMethod(method) && !h.robotsAllowed(ctx, req.URL) {
		return Result{}, Permanent("robots_disallowed", "robots.txt disallows %s", req.URL.Path)
	}
	if headers, ok := inv.Input["headers"].(map[string]any); ok {
		for k := range headers {
			req.Header.Set(k, optionalString(headers, k))
		}
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, Transient("timeout", "request timed out: %v", err)
		}
		return Result{}, Transient("network", "request failed: %v", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, Transient("network", "reading response: %v", err)
	}

	if resp.StatusCode >= 400 {
		if TransientHTTPStatus(resp.StatusCode) {
			return Result{}, Transient("http_status", "%s %s returned %d", method, url, resp.StatusCode)
		}
		return Result{}, Permanent("http_status", "%s %s returned %d", method, url, resp.StatusCode)
	}

	return Result{Output: map[string]any{
		"status":       resp.StatusCode,
		"body":         string(payload),
		"content_type": resp.Header.Get("Content-Type"),
	}}, nil
}

// robotsAllowed checks the target path against the host's cached wildcard
// disallow prefixes. An unreachable or non-200 robots.txt means no rules.
func (h *HTTPRequest) robotsAllowed(ctx context.Context, u *url.URL) bool {
	h.mu.Lock()
	rules, ok := h.robots[u.Host]
	h.mu.Unlock()
	if !ok {
		rules = h.fetchRobots(ctx, u)
		h.mu.Lock()
		h.robots[u.Host] = rules
		h.mu.Unlock()
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, prefix := range rules {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func (h *HTTPRequest) fetchRobots(ctx context.Context, u *url.URL) []string {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	return parseRobots(io.LimitReader(resp.Body, maxResponseBytes))
}

// parseRobots collects Disallow prefixes from User-agent: * groups.
func parseRobots(r io.Reader) []string {
	var rules []string
	applies := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)
		switch field {
		case "user-agent":
			applies = value == "*"
		case "disallow":
			if applies && value != "" {
				rules = append(rules, value)
			}
		}
	}
	return rules
}

// ReadOnlyMethod reports whether an HTTP method has no side effects.
func ReadOnlyMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, "":
		return true
	}
	return false
}
