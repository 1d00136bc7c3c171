package storage

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/meshpipe/meshpipe/pkg/domain"
)

// Endpoint describes how one type is fetched over HTTP. The URL may contain
// {param} placeholders filled from the query; every placeholder must be
// present or the request is rejected before it is sent.
type Endpoint struct {
	// URL is the request template, e.g. "https://api.example.com/users/{id}".
	URL string
	// ManyURL is the template used by GetMany. Empty means GetMany is not
	// supported for the type.
	ManyURL string
	// Decode turns a single-item response body into the resident value.
	Decode func(body []byte) (any, error)
	// DecodeMany turns a multi-item response body into the resident values.
	DecodeMany func(body []byte) ([]any, error)
}

// HTTPSource is a read-only origin fetching items from a remote JSON API.
// Requests carry the caller's context and are traced through the
// instrumented transport.
type HTTPSource struct {
	client    *http.Client
	logger    *slog.Logger
	endpoints map[domain.Key]Endpoint
	types     domain.TypeSet
}

// NewHTTPSource creates a source for the given endpoints. A nil client gets
// a default with OpenTelemetry transport instrumentation and a 30s timeout.
func NewHTTPSource(endpoints map[domain.Key]Endpoint, client *http.Client, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		}
	}
	keys := make([]domain.Key, 0, len(endpoints))
	for key := range endpoints {
		keys = append(keys, key)
	}
	return &HTTPSource{
		client:    client,
		logger:    logger,
		endpoints: endpoints,
		types:     domain.NewTypeSet(keys...),
	}
}

// Provides declares the source's types.
func (s *HTTPSource) Provides() domain.TypeSet { return s.types }

// Get fetches and decodes one item.
func (s *HTTPSource) Get(ctx context.Context, key domain.Key, q domain.Query, _ *domain.Context) (any, error) {
	ep, ok := s.endpoints[key]
	if !ok {
		return nil, domain.UnsupportedType(key)
	}
	body, err := s.fetch(ctx, key, ep.URL, q)
	if err != nil {
		return nil, err
	}
	return ep.Decode(body)
}

// GetMany fetches the multi-item endpoint and yields the decoded items.
func (s *HTTPSource) GetMany(ctx context.Context, key domain.Key, q domain.Query, _ *domain.Context) (iter.Seq2[any, error], error) {
	ep, ok := s.endpoints[key]
	if !ok || ep.ManyURL == "" || ep.DecodeMany == nil {
		return nil, domain.UnsupportedType(key)
	}
	body, err := s.fetch(ctx, key, ep.ManyURL, q)
	if err != nil {
		return nil, err
	}
	items, err := ep.DecodeMany(body)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.NotFound(key)
	}
	return func(yield func(any, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}, nil
}

func (s *HTTPSource) fetch(ctx context.Context, key domain.Key, template string, q domain.Query) ([]byte, error) {
	target, err := expandTemplate(template, q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("http source %q: %w", key, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http source %q: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NotFound(key)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http source %q: unexpected status %d", key, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http source %q: read body: %w", key, err)
	}
	s.logger.Debug("http source fetch", "type", key, "url", target, "bytes", len(body))
	return body, nil
}

// expandTemplate substitutes {param} placeholders from the query. Query
// values are stringified with %v and path-escaped.
func expandTemplate(template string, q domain.Query) (string, error) {
	out := template
	for {
		start := strings.Index(out, "{")
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], "}")
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", template)
		}
		name := out[start+1 : start+end]
		value, ok := q[name]
		if !ok {
			return "", fmt.Errorf("query key %q required by %q is missing", name, template)
		}
		out = out[:start] + url.PathEscape(fmt.Sprintf("%v", value)) + out[start+end+1:]
	}
	return out, nil
}
