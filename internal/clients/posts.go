package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
)

type Post struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Type        domain.PostType   `json:"type"`
	Status      domain.PostStatus `json:"status"`
	CreatorID   string            `json:"creator_id"`
	FoundAction string            `json:"found_action,omitempty"`
}

// PostCheck is the outcome of an existence probe. Transient failures are
// returned as errors instead so callers never mistake an outage for a
// missing post.
type PostCheck int

const (
	PostExists PostCheck = iota
	PostMissing
	PostForbidden
)

type PostClient struct {
	baseURL    string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxElapsed time.Duration
}

func NewPostClient(baseURL string, timeout time.Duration) *PostClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "post-service",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &PostClient{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: timeout},
		breaker:    cb,
		maxElapsed: 10 * time.Second,
	}
}

// GetPost retries transient failures with exponential backoff; 404 and 403
// are permanent and surface as domain.ErrNotFound / domain.ErrPermission.
func (c *PostClient) GetPost(ctx context.Context, postID string) (*Post, error) {
	var post *Post
	op := func() error {
		res, err := c.breaker.Execute(func() (any, error) {
			return c.fetchPost(ctx, postID)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		post = res.(*Post)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return post, nil
}

func (c *PostClient) fetchPost(ctx context.Context, postID string) (*Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/posts/"+postID, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer drain(res)

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("post %s: %w", postID, domain.ErrNotFound))
	case res.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("post %s: %w", postID, domain.ErrPermission))
	case res.StatusCode >= 400:
		return nil, fmt.Errorf("post service: unexpected status %d", res.StatusCode)
	}

	var p Post
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CheckPost distinguishes a confirmed-absent post from an access failure.
// Any transient error comes back as err, never as PostMissing.
func (c *PostClient) CheckPost(ctx context.Context, postID string) (PostCheck, error) {
	_, err := c.GetPost(ctx, postID)
	switch {
	case err == nil:
		return PostExists, nil
	case errors.Is(err, domain.ErrNotFound):
		return PostMissing, nil
	case errors.Is(err, domain.ErrPermission):
		return PostForbidden, nil
	default:
		return PostExists, err
	}
}

func (c *PostClient) SetPostStatus(ctx context.Context, postID string, status domain.PostStatus) error {
	body, _ := json.Marshal(map[string]string{"status": string(status)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.baseURL+"/v1/posts/"+postID+"/status", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drain(res)

	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
	case res.StatusCode >= 400:
		return fmt.Errorf("post service: unexpected status %d", res.StatusCode)
	}
	return nil
}

// drain empties the body so the connection can be reused.
func drain(res *http.Response) {
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
