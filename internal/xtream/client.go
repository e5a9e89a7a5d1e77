// Package xtream implements a client for Xtream-Codes-style IPTV backends.
// It translates catalog, account and guide requests into the backend's
// player_api.php query protocol and constructs deterministic stream URLs.
//
// The client is a value built from explicit Credentials: every call is a
// pure function of the credential triple plus call parameters, with no
// hidden mutable state. Authentication rejection is a value
// (AccountInfo.Authenticated == false), never an error; transport failures
// are *NetworkError. The client never retries — that policy belongs to
// callers.
package xtream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/opd-ai/go-xc-watch/pkg/config"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultListTimeout = 15 * time.Second
	defaultRPS         = 4

	defaultGuideLimit = 100
)

// param is one query-string key/value pair. The protocol concatenates
// parameters in a fixed order with no escaping beyond this, so values must
// not contain the parameter delimiter (enforced at config validation).
type param struct {
	key, value string
}

// Client talks to one Xtream backend on behalf of one account.
type Client struct {
	baseURL  string // normalized, no trailing slash
	username string
	password string

	httpClient  *http.Client
	limiter     *rate.Limiter
	timeout     time.Duration
	listTimeout time.Duration
	logger      *slog.Logger
}

// New creates a client for the given credentials. cfg tunes timeouts and the
// outbound request rate; nil applies the protocol defaults (10s per call,
// 15s for full catalog listings). The server URL is normalized once.
func New(creds Credentials, cfg *config.XtreamConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := defaultTimeout
	listTimeout := defaultListTimeout
	rps := float64(defaultRPS)
	if cfg != nil {
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
		if cfg.ListTimeout > 0 {
			listTimeout = cfg.ListTimeout
		}
		if cfg.RequestsPerSecond > 0 {
			rps = cfg.RequestsPerSecond
		}
	}

	return &Client{
		baseURL:     strings.TrimRight(creds.ServerURL, "/"),
		username:    creds.Username,
		password:    creds.Password,
		httpClient:  &http.Client{},
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		timeout:     timeout,
		listTimeout: listTimeout,
		logger:      logger,
	}
}

// BaseURL returns the normalized server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// buildURL assembles a player_api.php request URL. Credentials ride on every
// call; action and parameters follow in the order given.
func (c *Client) buildURL(action string, params []param) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/player_api.php?username=")
	b.WriteString(c.username)
	b.WriteString("&password=")
	b.WriteString(c.password)

	if action != "" {
		b.WriteString("&action=")
		b.WriteString(action)
	}

	for _, p := range params {
		b.WriteString("&")
		b.WriteString(p.key)
		b.WriteString("=")
		b.WriteString(p.value)
	}

	return b.String()
}

// doRequest performs a single GET against the backend with the given timeout
// and returns the raw body. All transport failures, timeouts and unexpected
// statuses come back as *NetworkError tagged with the action.
func (c *Client) doRequest(ctx context.Context, action string, params []param, timeout time.Duration) ([]byte, error) {
	op := action
	if op == "" {
		op = "authenticate"
	}

	// Outbound rate limit: catalog fan-outs must not hammer the backend.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := c.buildURL(action, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("xtream request", "action", op, "timeout", timeout)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("xtream request failed", "action", op, "error", err)
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("xtream request error", "action", op, "status", resp.StatusCode)
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	return body, nil
}

// Authenticate verifies the credentials against the backend and returns the
// account state. A rejected login is a successful call with
// Authenticated=false: callers must inspect the flag, not assume it.
func (c *Client) Authenticate(ctx context.Context) (AccountInfo, error) {
	body, err := c.doRequest(ctx, "", nil, c.timeout)
	if err != nil {
		return AccountInfo{}, err
	}

	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return AccountInfo{}, &NetworkError{Op: "authenticate", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	info := resp.toAccountInfo()
	c.logger.Info("authenticated against backend",
		"authenticated", info.Authenticated,
		"status", info.Status,
		"max_connections", info.MaxConnections)

	return info, nil
}

// categoriesAction maps a content kind to its category listing action.
func categoriesAction(kind Kind) string {
	switch kind {
	case KindLive:
		return "get_live_categories"
	case KindVod:
		return "get_vod_categories"
	default:
		return "get_series_categories"
	}
}

// streamsAction maps a content kind to its catalog listing action.
func streamsAction(kind Kind) string {
	switch kind {
	case KindLive:
		return "get_live_streams"
	case KindVod:
		return "get_vod_streams"
	default:
		return "get_series"
	}
}

// ListCategories returns the backend's categories for a kind, preserving
// backend order exactly. No synthetic entries are added here.
func (c *Client) ListCategories(ctx context.Context, kind Kind) ([]Category, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}

	action := categoriesAction(kind)
	body, err := c.doRequest(ctx, action, nil, c.timeout)
	if err != nil {
		return nil, err
	}

	var wires []categoryWire
	if err := json.Unmarshal(body, &wires); err != nil {
		return nil, &NetworkError{Op: action, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	categories := make([]Category, 0, len(wires))
	for _, w := range wires {
		categories = append(categories, Category{
			ID:   string(w.CategoryID),
			Name: w.CategoryName,
		})
	}

	return categories, nil
}

// ListStreams returns the catalog for a kind. An empty categoryID requests
// the full catalog; otherwise category_id is sent. Uses the longer list
// timeout since full catalogs run large.
func (c *Client) ListStreams(ctx context.Context, kind Kind, categoryID string) ([]CatalogItem, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}

	var params []param
	if categoryID != "" {
		params = append(params, param{"category_id", categoryID})
	}

	action := streamsAction(kind)
	body, err := c.doRequest(ctx, action, params, c.listTimeout)
	if err != nil {
		return nil, err
	}

	var wires []catalogItemWire
	if err := json.Unmarshal(body, &wires); err != nil {
		return nil, &NetworkError{Op: action, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	items := make([]CatalogItem, 0, len(wires))
	for _, w := range wires {
		items = append(items, w.toCatalogItem())
	}

	return items, nil
}

// GetVodDetail fetches detailed metadata for one VOD title. The embedded
// cast field is parsed defensively: malformed cast data yields an empty
// list, never an error.
func (c *Client) GetVodDetail(ctx context.Context, vodID int) (*VodDetail, error) {
	params := []param{{"vod_id", strconv.Itoa(vodID)}}
	body, err := c.doRequest(ctx, "get_vod_info", params, c.timeout)
	if err != nil {
		return nil, err
	}

	var wire vodInfoWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &NetworkError{Op: "get_vod_info", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	streamID := int(wire.MovieData.StreamID)
	if streamID == 0 {
		streamID = vodID
	}

	return &VodDetail{
		StreamID:           streamID,
		Name:               wire.MovieData.Name,
		ContainerExtension: wire.MovieData.ContainerExtension,
		Plot:               wire.Info.Plot,
		Genre:              wire.Info.Genre,
		Director:           wire.Info.Director,
		ReleaseDate:        wire.Info.ReleaseDate,
		Rating:             string(wire.Info.Rating),
		DurationSeconds:    int(wire.Info.DurationSecs),
		Cast:               decodeCastList(wire.Info.Cast),
		Backdrops:          decodeBackdrops(wire.Info.BackdropPath),
	}, nil
}

// GetSeriesDetail fetches a series with its seasons ordered by ascending
// season number and episodes in backend order.
func (c *Client) GetSeriesDetail(ctx context.Context, seriesID int) (*SeriesDetail, error) {
	params := []param{{"series_id", strconv.Itoa(seriesID)}}
	body, err := c.doRequest(ctx, "get_series_info", params, c.timeout)
	if err != nil {
		return nil, err
	}

	var wire seriesInfoWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &NetworkError{Op: "get_series_info", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	return wire.toSeriesDetail(seriesID), nil
}

// GetGuideEntries returns up to limit program-guide entries for a live
// stream. A limit of 0 applies the protocol default of 100.
func (c *Client) GetGuideEntries(ctx context.Context, streamID, limit int) ([]GuideEntry, error) {
	if limit <= 0 {
		limit = defaultGuideLimit
	}

	params := []param{
		{"stream_id", strconv.Itoa(streamID)},
		{"limit", strconv.Itoa(limit)},
	}
	body, err := c.doRequest(ctx, "get_simple_data_table", params, c.timeout)
	if err != nil {
		return nil, err
	}

	var resp guideResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &NetworkError{Op: "get_simple_data_table", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	entries := make([]GuideEntry, 0, len(resp.EPGListings))
	for _, w := range resp.EPGListings {
		entries = append(entries, w.toGuideEntry())
	}

	return entries, nil
}

// ResolveStreamURL builds the playback URL for a stream. Pure string
// construction, no network: identical inputs always yield the identical URL.
// An empty ext applies the kind default (m3u8 for live, mp4 otherwise).
func (c *Client) ResolveStreamURL(kind Kind, streamID int, ext string) string {
	var segment, defaultExt string
	switch kind {
	case KindLive:
		segment, defaultExt = "live", "m3u8"
	case KindVod:
		segment, defaultExt = "movie", "mp4"
	default:
		segment, defaultExt = "series", "mp4"
	}

	if ext == "" {
		ext = defaultExt
	}

	return fmt.Sprintf("%s/%s/%s/%s/%d.%s",
		c.baseURL, segment, c.username, c.password, streamID, ext)
}
