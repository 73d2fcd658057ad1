// Package userdir is the HTTP client for the user directory consulted
// during order creation.
package userdir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/baechuer/order-lifecycle-service/internal/domain"
	"github.com/baechuer/order-lifecycle-service/internal/metrics"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// GetUser fetches a user record. nil,nil on 404; any other non-200 is an
// error so callers can distinguish "user does not exist" from "directory is
// down".
func (c *Client) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+userID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.RecordDirectoryCall("error")
		return nil, fmt.Errorf("user directory: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var u domain.User
		if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
			metrics.RecordDirectoryCall("error")
			return nil, fmt.Errorf("user directory: decode: %w", err)
		}
		metrics.RecordDirectoryCall("found")
		return &u, nil
	case http.StatusNotFound:
		metrics.RecordDirectoryCall("not_found")
		return nil, nil
	default:
		metrics.RecordDirectoryCall("error")
		return nil, fmt.Errorf("user directory: unexpected status %d", resp.StatusCode)
	}
}
