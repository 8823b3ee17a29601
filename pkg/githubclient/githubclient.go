// Package githubclient is the small GitHub REST surface the engine needs:
// listing open pull requests and opening new ones against the hub
// repository.
package githubclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenk/backoff"
)

const defaultBaseURL = "https://api.github.com"

var (
	// ErrPullRequestExists maps the 422 GitHub answers when a PR for the
	// same head already exists.
	ErrPullRequestExists = errors.New("pull request already exists")
	ErrNotFound          = errors.New("repository not found")
	ErrPermissionDenied  = errors.New("permission denied")
)

// Client calls the GitHub REST API with token auth. Server errors and rate
// limits are retried with backoff; everything else is permanent.
type Client struct {
	baseURL    string
	http       *http.Client
	token      string
	maxElapsed time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root (tests).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithToken overrides the token read from GITHUB_TOKEN.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithMaxElapsed bounds the total retry time of one call.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) {
		c.maxElapsed = d
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		http:       http.DefaultClient,
		token:      os.Getenv("GITHUB_TOKEN"),
		maxElapsed: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PullRequest is the subset of the API answer the engine reads.
type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Head   struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

// OpenPullRequests lists the open pull requests of owner/repo.
func (c *Client) OpenPullRequests(ctx context.Context, owner, repo string) ([]PullRequest, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls?state=open", c.baseURL, owner, repo)

	var prs []PullRequest
	if err := c.do(ctx, http.MethodGet, url, nil, http.StatusOK, &prs); err != nil {
		return nil, fmt.Errorf("listing open pull requests of %s/%s: %w", owner, repo, err)
	}
	return prs, nil
}

// NewPullRequest describes a pull request to open.
type NewPullRequest struct {
	Title               string `json:"title"`
	Head                string `json:"head"`
	Base                string `json:"base"`
	Body                string `json:"body"`
	MaintainerCanModify bool   `json:"maintainer_can_modify"`
}

// CreatePullRequest opens a pull request on owner/repo.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, pr NewPullRequest) error {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls", c.baseURL, owner, repo)

	body, err := json.Marshal(pr)
	if err != nil {
		return err
	}

	if err := c.do(ctx, http.MethodPost, url, body, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("creating pull request %q: %w", pr.Title, err)
	}
	return nil
}

// transientError marks an answer worth retrying.
type transientError struct {
	status int
}

func (e *transientError) Error() string {
	return fmt.Sprintf("transient status %d", e.status)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, wantStatus int, out interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	bo.MaxInterval = 10 * time.Second

	op := func() error {
		err := c.doOnce(ctx, method, url, body, wantStatus, out)
		var transient *transientError
		if errors.As(err, &transient) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, wantStatus int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == wantStatus:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)

	case resp.StatusCode == http.StatusUnprocessableEntity:
		return ErrPullRequestExists

	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound

	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return ErrPermissionDenied

	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return &transientError{status: resp.StatusCode}

	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}
