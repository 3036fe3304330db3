package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/strwt/UniclaimRepo-sub001/internal/domain"
)

type Profile struct {
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
}

// UserClient resolves user ids against the identity service for participant
// denormalization.
type UserClient struct {
	baseURL string
	http    *http.Client
}

func NewUserClient(baseURL string, timeout time.Duration) *UserClient {
	return &UserClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *UserClient) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/users/"+userID, nil)
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
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	case res.StatusCode >= 400:
		return nil, fmt.Errorf("user service: unexpected status %d", res.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
