package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cmsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer cms-token", r.Header.Get("Authorization"))

		var in graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Contains(t, in.Query, "idType: DATABASE_ID")
		assert.Equal(t, "314", in.Variables["id"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEventTitle(t *testing.T) {
	srv := cmsServer(t, http.StatusOK, `{"data":{"event":{"title":" Saturday Hill Repeats "}}}`)
	c := NewClient(srv.URL, "cms-token", 2*time.Second)

	title, err := c.EventTitle(context.Background(), 314)
	require.NoError(t, err)
	assert.Equal(t, "Saturday Hill Repeats", title)
}

func TestEventTitle_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `oops`},
		{"graphql error", http.StatusOK, `{"errors":[{"message":"Internal server error"}]}`},
		{"unknown event", http.StatusOK, `{"data":{"event":null}}`},
		{"malformed", http.StatusOK, `{"data":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := cmsServer(t, tt.status, tt.body)
			c := NewClient(srv.URL, "cms-token", 2*time.Second)

			_, err := c.EventTitle(context.Background(), 314)
			assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
		})
	}
}

func TestEventTitle_NotConfigured(t *testing.T) {
	_, err := NewClient("", "", time.Second).EventTitle(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}
