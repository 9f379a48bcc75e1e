package pushover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"drive-in/internal/infra"
)

const defaultBaseURL = "https://api.pushover.net/1/messages.json"

// Client pushes staff notifications through Pushover. With no credentials
// configured every call is a no-op.
type Client struct {
	token      string
	userKey    string
	title      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(token, userKey, title string) *Client {
	return NewClientWithURL(token, userKey, title, defaultBaseURL)
}

func NewClientWithURL(token, userKey, title, baseURL string) *Client {
	if title == "" {
		title = "Drive-In"
	}
	return &Client{
		token:      token,
		userKey:    userKey,
		title:      title,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enabled() bool {
	return c.token != "" && c.userKey != ""
}

func (c *Client) Notify(ctx context.Context, message string) error {
	if !c.Enabled() {
		return nil
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("message", message)
	data.Set("title", c.title)

	return infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(data.Encode()))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return infra.StatusError("pushover", resp.StatusCode, body)
		}

		return nil
	})
}
