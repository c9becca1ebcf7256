// Package content looks up event metadata from the club's headless CMS
// over its GraphQL endpoint.
package content

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/imroc/req"
)

const eventTitleQuery = `query EventTitle($id: ID!) {
  event(id: $id, idType: DATABASE_ID) {
    title
  }
}`

// Client queries the CMS GraphQL endpoint.
type Client struct {
	endpoint string
	token    string
	r        *req.Req
}

// NewClient returns a Client. The timeout bounds each request even when the
// caller's context has no deadline.
func NewClient(endpoint, token string, timeout time.Duration) *Client {
	r := req.New()
	r.SetTimeout(timeout)
	return &Client{endpoint: endpoint, token: token, r: r}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type eventTitleResponse struct {
	Data struct {
		Event *struct {
			Title string `json:"title"`
		} `json:"event"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// EventTitle returns the display title of an event. Every failure wraps
// model.ErrUpstreamUnavailable.
func (c *Client) EventTitle(ctx context.Context, eventID int64) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("%w: cms endpoint is not configured", model.ErrUpstreamUnavailable)
	}

	header := req.Header{"Content-Type": "application/json", "Accept": "application/json"}
	if c.token != "" {
		header["Authorization"] = "Bearer " + c.token
	}
	body := graphQLRequest{
		Query:     eventTitleQuery,
		Variables: map[string]interface{}{"id": strconv.FormatInt(eventID, 10)},
	}

	resp, err := c.r.Post(c.endpoint, header, req.BodyJSON(&body), ctx)
	if err != nil {
		return "", fmt.Errorf("%w: cms request: %v", model.ErrUpstreamUnavailable, err)
	}
	if code := resp.Response().StatusCode; code != http.StatusOK {
		return "", fmt.Errorf("%w: cms returned status %d", model.ErrUpstreamUnavailable, code)
	}

	var out eventTitleResponse
	if err := resp.ToJSON(&out); err != nil {
		return "", fmt.Errorf("%w: decode cms response: %v", model.ErrUpstreamUnavailable, err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return "", fmt.Errorf("%w: cms errors: %s", model.ErrUpstreamUnavailable, strings.Join(msgs, "; "))
	}
	if out.Data.Event == nil || strings.TrimSpace(out.Data.Event.Title) == "" {
		return "", fmt.Errorf("%w: event %d not found in cms", model.ErrUpstreamUnavailable, eventID)
	}
	return strings.TrimSpace(out.Data.Event.Title), nil
}
