// Package usage loads the read-only usage fixture and derives the analytics
// views of the console from it: per-user daily aggregates, event lists,
// chart rows, summaries and CSV exports.
package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/zamadev/sandbox/internal/fixture"
	"github.com/zamadev/sandbox/internal/model"
)

// Loader fetches the complete usage dataset.
type Loader interface {
	Load(ctx context.Context) ([]model.KeyUsage, error)
	// Source names the loader for logs and metrics.
	Source() string
}

// HTTPLoader fetches the dataset with a GET request. It sets no timeout of
// its own; cancel ctx to abort.
type HTTPLoader struct {
	URL    string
	Client *http.Client
}

func (l *HTTPLoader) Source() string { return "http" }

func (l *HTTPLoader) Load(ctx context.Context) ([]model.KeyUsage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build usage request: %w", err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch usage data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch usage data: %s", resp.Status)
	}
	return Decode(resp.Body)
}

// FileLoader reads the dataset from a local file.
type FileLoader struct {
	Path string
}

func (l *FileLoader) Source() string { return "file" }

func (l *FileLoader) Load(ctx context.Context) ([]model.KeyUsage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("open usage data: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// EmbeddedLoader returns the dataset compiled into the binary.
type EmbeddedLoader struct{}

func (EmbeddedLoader) Source() string { return "embedded" }

func (EmbeddedLoader) Load(ctx context.Context) ([]model.KeyUsage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(fixture.UsageData))
}

// Decode parses and validates a {"usageData": [...]} document. Unlike the
// credential store, a single invalid entry fails the whole load.
func Decode(r io.Reader) ([]model.KeyUsage, error) {
	var doc struct {
		UsageData json.RawMessage `json:"usageData"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode usage data: %w", err)
	}
	if len(doc.UsageData) == 0 || doc.UsageData[0] != '[' {
		return nil, errors.New("invalid usage data format: usageData is not an array")
	}

	var items []model.KeyUsage
	if err := json.Unmarshal(doc.UsageData, &items); err != nil {
		return nil, fmt.Errorf("decode usage data: %w", err)
	}
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("usage data entry %d: %w", i, err)
		}
	}
	return items, nil
}

// NewLoader picks a loader from a fixture location: empty means embedded,
// an http(s) URL means HTTPLoader, anything else is a file path.
func NewLoader(location string, client *http.Client) Loader {
	switch {
	case location == "":
		return EmbeddedLoader{}
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return &HTTPLoader{URL: location, Client: client}
	default:
		return &FileLoader{Path: location}
	}
}
