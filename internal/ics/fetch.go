package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "signalcal/internal/log"
)

// maxCalendarBytes bounds a fetched calendar; ten years of weekly events
// is well under a megabyte.
const maxCalendarBytes = 4 << 20

// Fetcher downloads a published signal word calendar, e.g. one a family
// member subscribed to from a shared calendar service.
type Fetcher struct {
	client *http.Client
}

// NewFetcher uses client, or a client with a 15 second timeout if nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client}
}

// Fetch GETs url and parses the body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]ParsedEvent, error) {
	if url == "" {
		return nil, errors.New("calendar URL is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")

	appLog.Info("calendar fetch start", "url", redactURL(url))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", redactURL(url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", redactURL(url), resp.Status)
	}

	events, err := Parse(io.LimitReader(resp.Body, maxCalendarBytes))
	if err != nil {
		return nil, err
	}
	appLog.Info("calendar fetch success", "url", redactURL(url), "event_count", len(events))
	return events, nil
}

// IsURL reports whether s looks like an http(s) calendar location.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// redactURL keeps only scheme and host; subscription URLs usually carry a
// private token in the path or query.
//
//	https://example.com/private/abcd.ics?token=x -> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	_, rest, ok := strings.Cut(u, "://")
	if !ok {
		return "ics://...(redacted)"
	}
	host, _, _ := strings.Cut(rest, "/")
	host, _, _ = strings.Cut(host, "?")
	return u[:len(u)-len(rest)] + host + redactedSuffix
}
