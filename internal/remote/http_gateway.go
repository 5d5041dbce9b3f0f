package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
)

const (
	defaultBaseURL    = "http://127.0.0.1:8080"
	defaultMaxRetries = 3
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 2 * time.Second
)

var errEmptyRemoteID = errors.New("remote: create response carried no id")

// HTTPGatewayConfig configures the HTTP gateway.
type HTTPGatewayConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// HTTPGateway talks to the notesync API. List, update and delete are resent
// with capped exponential backoff after network errors, 429 and 5xx. Create
// is sent exactly once because the server mints a new id for every POST.
type HTTPGateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewHTTPGateway constructs a gateway with defaults for unset fields.
func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	return &HTTPGateway{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

type createResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Notes []notes.Note `json:"notes"`
}

// CreateNote implements Gateway.
func (g *HTTPGateway) CreateNote(ctx context.Context, note notes.Note) (notes.NoteID, error) {
	var out createResponse
	if err := g.execute(ctx, http.MethodPost, "/notes", note, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errEmptyRemoteID
	}
	return notes.NewNoteID(out.ID)
}

// ListNotes implements Gateway.
func (g *HTTPGateway) ListNotes(ctx context.Context, owner notes.UserID) ([]notes.Note, error) {
	query := url.Values{}
	query.Set("owner", owner.String())
	var out listResponse
	if err := g.execute(ctx, http.MethodGet, "/notes?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Notes == nil {
		return []notes.Note{}, nil
	}
	for index := range out.Notes {
		if out.Notes[index].Tags == nil {
			out.Notes[index].Tags = []string{}
		}
	}
	return out.Notes, nil
}

// UpdateNote implements Gateway.
func (g *HTTPGateway) UpdateNote(ctx context.Context, noteID notes.NoteID, patch notes.NotePatch) error {
	return g.execute(ctx, http.MethodPatch, notePath(noteID), patch, nil)
}

// DeleteNote implements Gateway.
func (g *HTTPGateway) DeleteNote(ctx context.Context, noteID notes.NoteID) error {
	return g.execute(ctx, http.MethodDelete, notePath(noteID), nil, nil)
}

func notePath(noteID notes.NoteID) string {
	return "/notes/" + url.PathEscape(noteID.String())
}

// resendable reports whether a request may be sent again after a transient
// failure. Patches carry absolute field values and deletes are idempotent on
// the server.
func resendable(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// attemptResult is the outcome of one round trip.
type attemptResult struct {
	err        error
	transient  bool
	retryAfter time.Duration
}

func (g *HTTPGateway) execute(ctx context.Context, method, requestPath string, payload any, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = encoded
	}

	attempts := 1
	if resendable(method) {
		attempts += g.maxRetries
	}

	var result attemptResult
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, g.backoff(attempt-1, result.retryAfter)); err != nil {
				return err
			}
		}
		result = g.send(ctx, method, requestPath, body, out)
		if !result.transient || ctx.Err() != nil {
			break
		}
	}
	return result.err
}

func (g *HTTPGateway) send(ctx context.Context, method, requestPath string, body []byte, out any) attemptResult {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+requestPath, bodyReader)
	if err != nil {
		return attemptResult{err: err}
	}
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return attemptResult{err: err, transient: true}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptResult{err: err, transient: true}
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		if out == nil || len(payload) == 0 {
			return attemptResult{}
		}
		return attemptResult{err: json.Unmarshal(payload, out)}
	}

	var errPayload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	return attemptResult{
		err: &HTTPError{
			StatusCode: resp.StatusCode,
			Reason:     errPayload.Error,
			Code:       errPayload.Code,
		},
		transient:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

// backoff returns the pause before the given resend. A server supplied
// Retry-After wins; either way the pause never exceeds maxDelay.
func (g *HTTPGateway) backoff(resend int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, g.maxDelay)
	}
	delay := g.baseDelay
	for step := 1; step < resend && delay < g.maxDelay; step++ {
		delay *= 2
	}
	return min(delay, g.maxDelay)
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms.
func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(max(seconds, 0)) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		return max(at.Sub(now), 0)
	}
	return 0
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Gateway = (*HTTPGateway)(nil)
