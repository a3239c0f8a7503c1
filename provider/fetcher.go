package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// maxResourceSize bounds how much of a fetched resource is read.
const maxResourceSize = 4 * 1024 * 1024

var (
	ErrPathNotFound = errors.New("json path not found in resource")
	ErrInvalidJSON  = errors.New("resource is not valid JSON")
)

// HTTPStatusError is returned for non-2xx answers from a resource.
type HTTPStatusError struct {
	URI        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetching %s returned status %d", e.URI, e.StatusCode)
}

// Temporary reports whether retrying may help.
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Fetcher retrieves the resource a request points at.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// HTTPFetcher fetches http(s) resources.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid resource uri: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s failed: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URI: uri, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s failed: %w", uri, err)
	}
	if len(body) > maxResourceSize {
		return nil, fmt.Errorf("resource %s exceeds %d bytes", uri, maxResourceSize)
	}
	return body, nil
}

var (
	bracketIndex  = regexp.MustCompile(`\[(\d+)\]`)
	bracketQuoted = regexp.MustCompile(`\[['"]([^'"]*)['"]\]`)
)

// GJSONPath converts a JSONPath-style expression ($.a.b[0], $['a'].b)
// into gjson syntax (a.b.0). Plain gjson paths pass through unchanged.
func GJSONPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "$" {
		return "@this"
	}
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	path = bracketQuoted.ReplaceAllStringFunc(path, func(m string) string {
		key := bracketQuoted.FindStringSubmatch(m)[1]
		key = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`).Replace(key)
		return "." + key
	})
	path = bracketIndex.ReplaceAllString(path, ".$1")
	return strings.TrimPrefix(path, ".")
}

// Extract applies path to a JSON document. String values are returned
// unquoted; any other value is returned as its raw JSON text.
func Extract(body []byte, path string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", ErrInvalidJSON
	}

	result := gjson.GetBytes(body, GJSONPath(path))
	if !result.Exists() {
		return "", fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	if result.Type == gjson.String {
		return result.Str, nil
	}
	return strings.TrimSpace(result.Raw), nil
}
