package netmon

import (
	"context"
	"net/http"
	"time"
)

// Probe answers "is the backend reachable right now". Implementations should
// be cheap; Run calls them on every tick.
type Probe interface {
	Online(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Online(ctx context.Context) bool { return f(ctx) }

// HTTPProbe issues a HEAD request against a health endpoint. Any completed
// response counts as online; only transport failures count as offline,
// since a 5xx still proves the network path works.
type HTTPProbe struct {
	URL     string
	Client  *http.Client  // nil => a default client with Timeout
	Timeout time.Duration // used only when Client is nil; 0 => 3s
}

func (p HTTPProbe) Online(ctx context.Context) bool {
	client := p.Client
	if client == nil {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
