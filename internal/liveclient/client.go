// Package liveclient reads the in-match event log, the roster and the active
// player from the game client's local Live Client Data API.
package liveclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
	"github.com/gyaneshwarpardhi/scoutcue/internal/metrics"
)

// maxRejected bounds the set of undecodable entries remembered between polls.
const maxRejected = 1024

// DefaultBaseURL is where the game client serves the API while a match runs.
const DefaultBaseURL = "https://127.0.0.1:2999"

// ErrUnavailable means no match is running or the API is not answering yet.
// It is expected between matches and safe to retry.
var ErrUnavailable = errors.New("live client unavailable")

// Client talks to the Live Client Data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	rejected map[string]struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default insecure, short-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for skipped entries.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for baseURL. The game serves a self-signed certificate,
// so the default transport skips verification.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // local self-signed endpoint
			},
		},
		logger:   slog.Default(),
		rejected: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrUnavailable, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).DecodeContext(ctx, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

type eventData struct {
	Events []json.RawMessage `json:"Events"`
}

// Poll returns the full event log of the current match. Entries without a
// sequence id are dropped here; everything else, including event names this
// package does not know, is returned.
func (c *Client) Poll(ctx context.Context) ([]event.GameEvent, error) {
	var data eventData
	if err := c.get(ctx, "/liveclientdata/eventdata", &data); err != nil {
		return nil, err
	}
	out := make([]event.GameEvent, 0, len(data.Events))
	for _, raw := range data.Events {
		ev, err := event.Decode(raw)
		if err != nil {
			c.reject(raw, err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// reject reports an undecodable entry the first time it shows up. The log is
// re-read on every poll, so the same entry comes back until the match ends.
func (c *Client) reject(raw json.RawMessage, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := string(raw)
	if _, seen := c.rejected[key]; seen {
		return
	}
	if len(c.rejected) >= maxRejected {
		clear(c.rejected)
	}
	c.rejected[key] = struct{}{}
	metrics.EventsMalformed.Inc()
	c.logger.Warn("skipping event log entry", "err", err, "entry", key)
}

type activePlayer struct {
	SummonerName   string `json:"summonerName"`
	RiotID         string `json:"riotId"`
	RiotIDGameName string `json:"riotIdGameName"`
}

// LocalParticipant identifies the player on this machine. It returns nil
// without error while the client has not published a name yet.
func (c *Client) LocalParticipant(ctx context.Context) (*event.Participant, error) {
	var ap activePlayer
	if err := c.get(ctx, "/liveclientdata/activeplayer", &ap); err != nil {
		return nil, err
	}
	p := event.Participant{SummonerName: ap.SummonerName, RiotID: ap.RiotID, RiotIDGameName: ap.RiotIDGameName}
	if len(p.Names()) == 0 {
		return nil, nil
	}
	return &p, nil
}

// Roster lists every participant of the match.
func (c *Client) Roster(ctx context.Context) ([]event.Participant, error) {
	var players []event.Participant
	if err := c.get(ctx, "/liveclientdata/playerlist", &players); err != nil {
		return nil, err
	}
	return players, nil
}
