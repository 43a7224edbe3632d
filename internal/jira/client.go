// Package jira imports incidents from a JIRA project through the REST API.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	searchPath       = "/rest/api/2/search"
	searchFields     = "summary,description,priority,status,labels,created,updated"
	defaultPageSize  = 100
	defaultRateLimit = 5
	defaultTimeout   = 30 * time.Second
	maxErrorBody     = 4 << 10
)

// Config holds JIRA client configuration.
type Config struct {
	BaseURL   string
	User      string
	Token     string
	PageSize  int
	RateLimit float64 // requests per second
	Timeout   time.Duration
}

// Client searches issues with basic auth, keeping under a request rate.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new JIRA client.
func NewClient(config Config) (*Client, error) {
	u, err := url.Parse(config.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("jira client: invalid base url %q", config.BaseURL)
	}
	if config.User == "" || config.Token == "" {
		return nil, errors.New("jira client: user and token are required")
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.PageSize <= 0 {
		config.PageSize = defaultPageSize
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Search returns every issue matching jql, following pagination.
func (c *Client) Search(ctx context.Context, jql string) ([]Issue, error) {
	var issues []Issue
	startAt := 0
	for {
		page, err := c.searchPage(ctx, jql, startAt)
		if err != nil {
			return nil, err
		}
		issues = append(issues, page.Issues...)
		startAt += len(page.Issues)

		if len(page.Issues) == 0 || startAt >= page.Total {
			return issues, nil
		}
	}
}

func (c *Client) searchPage(ctx context.Context, jql string, startAt int) (*searchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}

	query := url.Values{}
	query.Set("jql", jql)
	query.Set("startAt", strconv.Itoa(startAt))
	query.Set("maxResults", strconv.Itoa(c.config.PageSize))
	query.Set("fields", searchFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+searchPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.config.User, c.config.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("search issues: %w", ctxErr)
		}
		return nil, &APIError{Message: fmt.Sprintf("search issues: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var page searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &page, nil
}

// APIError is a failed JIRA request. A zero StatusCode means the request
// never got a response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("jira error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("jira error: %s", e.Message)
}

// IsRetryable reports whether the request may succeed if repeated.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
