// Package ledgerclient is the HTTP and websocket client of the ledger API.
package ledgerclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ecoquest-ledger/internal/catalog"
	"github.com/ecoquest-ledger/internal/config"
	"github.com/ecoquest-ledger/internal/domain"
	"github.com/ecoquest-ledger/internal/retry"
	"github.com/goccy/go-json"
)

// APIError is a non-success answer from the ledger API. It unwraps to the
// domain error named by its code.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ledger api: status %d", e.Status)
	}
	return fmt.Sprintf("ledger api: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return domain.ErrorFromCode(e.Code)
}

// Transient reports whether the request may succeed if repeated
func (e *APIError) Transient() bool {
	return e.Status >= http.StatusInternalServerError
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// Client talks to the ledger API on behalf of one player
type Client struct {
	baseURL string
	http    *http.Client
	retry   retry.Options
	logger  *slog.Logger
}

// New creates a client from configuration
func New(cfg *config.ClientConfig, logger *slog.Logger) *Client {
	opts := retry.DefaultOptions()
	opts.MaxAttempts = cfg.MaxRetries + 1
	if cfg.RetryBackoff > 0 {
		opts.InitialInterval = cfg.RetryBackoff
	}
	return NewWithHTTPClient(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout}, opts, logger)
}

// NewWithHTTPClient creates a client on an existing http.Client
func NewWithHTTPClient(baseURL string, hc *http.Client, opts retry.Options, logger *slog.Logger) *Client {
	opts.Classifier = isTransient
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		retry:   opts,
		logger:  logger,
	}
}

// isTransient retries server failures and transport errors, never a
// decided answer from the ledger
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}

// get performs an idempotent request with retries
func (c *Client) get(ctx context.Context, path, token string, out interface{}) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, token, nil, out)
	}, c.retry)
}

// send performs a mutating request exactly once
func (c *Client) send(ctx context.Context, method, path, token string, body, out interface{}) error {
	return c.do(ctx, method, path, token, body, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		c.logger.Debug("ledger api error", "method", method, "path", path, "status", resp.StatusCode, "code", env.Code)
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Error}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// SignUp creates an account and returns its session
func (c *Client) SignUp(ctx context.Context, email, password string, attrs domain.SignUpAttributes) (domain.Session, error) {
	var session domain.Session
	err := c.send(ctx, http.MethodPost, "/api/v1/auth/signup", "", map[string]interface{}{
		"email":    email,
		"password": password,
		"name":     attrs.Name,
		"age":      attrs.Age,
	}, &session)
	return session, err
}

// SignIn exchanges credentials for a session
func (c *Client) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	var session domain.Session
	err := c.send(ctx, http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	return session, err
}

// GetSession validates a token with the server
func (c *Client) GetSession(ctx context.Context, token string) (domain.Session, error) {
	var session domain.Session
	err := c.get(ctx, "/api/v1/auth/session", token, &session)
	return session, err
}

// SignOut ends the session
func (c *Client) SignOut(ctx context.Context, session domain.Session) error {
	return c.send(ctx, http.MethodPost, "/api/v1/auth/signout", session.Token, nil, nil)
}

// GetCatalog returns the lessons, quizzes and games
func (c *Client) GetCatalog(ctx context.Context) (catalog.Catalog, error) {
	var cat catalog.Catalog
	err := c.get(ctx, "/api/v1/catalog", "", &cat)
	return cat, err
}

// GetProfile returns the session owner's profile
func (c *Client) GetProfile(ctx context.Context, session domain.Session) (*domain.Profile, error) {
	var profile domain.Profile
	if err := c.get(ctx, "/api/v1/profile", session.Token, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetCompletions returns the session owner's completion records
func (c *Client) GetCompletions(ctx context.Context, session domain.Session) ([]domain.CompletionRecord, error) {
	var records []domain.CompletionRecord
	err := c.get(ctx, "/api/v1/profile/completions", session.Token, &records)
	return records, err
}

// GetUnlocks returns the session owner's unlock records
func (c *Client) GetUnlocks(ctx context.Context, session domain.Session) ([]domain.UnlockRecord, error) {
	var records []domain.UnlockRecord
	err := c.get(ctx, "/api/v1/profile/unlocks", session.Token, &records)
	return records, err
}

// CompleteVideo reports a watched video
func (c *Client) CompleteVideo(ctx context.Context, session domain.Session, videoID string) (domain.LedgerResult, error) {
	var result domain.LedgerResult
	err := c.send(ctx, http.MethodPost, "/api/v1/videos/"+url.PathEscape(videoID)+"/complete", session.Token, nil, &result)
	return result, err
}

// CompleteQuiz reports a finished quiz or game with its correct-answer count
func (c *Client) CompleteQuiz(ctx context.Context, session domain.Session, quizID string, score int) (domain.LedgerResult, error) {
	var result domain.LedgerResult
	err := c.send(ctx, http.MethodPost, "/api/v1/quizzes/"+url.PathEscape(quizID)+"/complete", session.Token,
		map[string]int{"score": score}, &result)
	return result, err
}

// UnlockGame spends cost coins on a game
func (c *Client) UnlockGame(ctx context.Context, session domain.Session, gameID string, cost int64) (domain.LedgerResult, error) {
	var result domain.LedgerResult
	err := c.send(ctx, http.MethodPost, "/api/v1/games/"+url.PathEscape(gameID)+"/unlock", session.Token,
		map[string]int64{"cost": cost}, &result)
	return result, err
}

// DeleteProfile removes the session owner's profile
func (c *Client) DeleteProfile(ctx context.Context, session domain.Session) error {
	return c.send(ctx, http.MethodDelete, "/api/v1/profile", session.Token, nil, nil)
}
