package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/auth"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/clock"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/model"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/ratelimit"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/service"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "test-jwt-secret-that-is-long-enough"

type testEnv struct {
	router *chi.Mux
	store  *testutil.MemoryStore
	clock  *clock.Manual
	links  *auth.LinkTokens
}

func newTestEnv(t *testing.T, store *testutil.MemoryStore, capacityLimit int) *testEnv {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 6, 6, 7, 0, 10, 0, time.UTC))
	links := auth.NewLinkTokens(jwtSecret, time.Hour)

	var svc *service.RegistrationService
	if store == nil {
		svc = service.NewRegistrationService(nil, nil, service.WithClock(clk))
	} else {
		svc = service.NewRegistrationService(store, nil, service.WithClock(clk))
	}

	router := NewRouter(RouterConfig{
		Handler:  NewRegistrationHandler(svc, links),
		Verifier: auth.NewVerifier(jwtSecret, "authenticated"),
		Limits: Limits{
			Capacity: ratelimit.New(ratelimit.NewMemoryCounter(), capacityLimit, time.Minute, clk),
			Cancel:   ratelimit.New(ratelimit.NewMemoryCounter(), 5, time.Minute, clk),
			Register: ratelimit.New(ratelimit.NewMemoryCounter(), 5, time.Minute, clk),
		},
		AllowOrigin: "*",
	})
	return &testEnv{router: router, store: store, clock: clk, links: links}
}

func accessToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "203.0.113.7:51234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestCapacity(t *testing.T) {
	store := testutil.NewMemoryStore(
		testutil.Confirmed("c1", 10, "A", "alice"),
		testutil.Confirmed("c2", 10, " ", "bob"),
		testutil.Waitlisted("w1", 10, "A", "wendy", time.Now()),
	)
	env := newTestEnv(t, store, 60)

	rr := env.do(http.MethodGet, "/api/capacity?eventId=10", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, CapacityCacheControl, rr.Header().Get("Cache-Control"))

	var snap model.CapacitySnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, map[string]int{"A": 1, model.DefaultRideLevel: 1}, snap.ByLevel)
}

func TestCapacity_InvalidEventID(t *testing.T) {
	env := newTestEnv(t, testutil.NewMemoryStore(), 60)

	for _, q := range []string{"", "?eventId=", "?eventId=abc", "?eventId=-4", "?eventId=%2B5"} {
		rr := env.do(http.MethodGet, "/api/capacity"+q, "", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		assert.Equal(t, codeValidation, decodeError(t, rr).Code)
	}
}

func TestCapacity_Unconfigured(t *testing.T) {
	env := newTestEnv(t, nil, 60)

	rr := env.do(http.MethodGet, "/api/capacity?eventId=10", "", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, codeConfiguration, decodeError(t, rr).Code)
}

func TestCapacity_RateLimited(t *testing.T) {
	store := testutil.NewMemoryStore()
	env := newTestEnv(t, store, 3)

	for i := 0; i < 3; i++ {
		rr := env.do(http.MethodGet, "/api/capacity?eventId=10", "", "")
		require.Equal(t, http.StatusOK, rr.Code)
	}
	calls := store.Calls()

	rr := env.do(http.MethodGet, "/api/capacity?eventId=10", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, codeRateLimited, decodeError(t, rr).Code)
	assert.Equal(t, "50", rr.Header().Get("Retry-After"))
	assert.Equal(t, calls, store.Calls(), "rate limited request must not reach the store")

	env.clock.Advance(time.Minute)
	rr = env.do(http.MethodGet, "/api/capacity?eventId=10", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCancel(t *testing.T) {
	joined := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := testutil.NewMemoryStore(
		testutil.Confirmed("c1", 10, "A", "alice"),
		testutil.Waitlisted("w1", 10, "A", "wendy", joined),
	)
	env := newTestEnv(t, store, 60)
	token := accessToken(t, "alice")

	rr := env.do(http.MethodPost, "/api/registrations/cancel", token, `{"eventId":10,"rideLevel":"A"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())

	w1, _ := store.Get("w1")
	assert.Equal(t, model.StateActiveConfirmed, w1.State())

	rr = env.do(http.MethodPost, "/api/registrations/cancel", token, `{"eventId":10,"rideLevel":"A"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, codeNotFound, decodeError(t, rr).Code)
}

func TestCancel_Errors(t *testing.T) {
	store := testutil.NewMemoryStore(testutil.Confirmed("c1", 10, "A", "alice"))
	env := newTestEnv(t, store, 60)

	tests := []struct {
		name   string
		token  string
		body   string
		status int
		code   string
	}{
		{"no token", "", `{"eventId":10,"rideLevel":"A"}`, http.StatusUnauthorized, codeUnauthorized},
		{"garbage token", "not-a-jwt", `{"eventId":10,"rideLevel":"A"}`, http.StatusUnauthorized, codeUnauthorized},
		{"missing level", accessToken(t, "alice"), `{"eventId":10}`, http.StatusBadRequest, codeValidation},
		{"bad event id", accessToken(t, "alice"), `{"eventId":"ten","rideLevel":"A"}`, http.StatusBadRequest, codeValidation},
		{"someone else's registration", accessToken(t, "mallory"), `{"eventId":10,"rideLevel":"A"}`, http.StatusNotFound, codeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, "/api/registrations/cancel", tt.token, tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, decodeError(t, rr).Code)
		})
	}

	c1, _ := store.Get("c1")
	assert.True(t, c1.Active())
}

func TestCancelByLink(t *testing.T) {
	store := testutil.NewMemoryStore(testutil.Confirmed("c1", 10, "A", "alice"))
	env := newTestEnv(t, store, 60)

	tok, err := env.links.Issue(model.Promotion{RegistrationID: "c1", EventID: 10, RideLevel: "A", UserID: "alice"})
	require.NoError(t, err)

	rr := env.do(http.MethodPost, "/api/registrations/cancel-link", "", `{"token":"`+tok+`"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	c1, _ := store.Get("c1")
	assert.False(t, c1.Active())

	rr = env.do(http.MethodPost, "/api/registrations/cancel-link", "", `{"token":"forged"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCancelByLink_StaleLinkKeepsNewSignup(t *testing.T) {
	store := testutil.NewMemoryStore(testutil.Confirmed("c1", 10, "A", "alice"))
	store.SetCapacity(10, "A", 5)
	env := newTestEnv(t, store, 60)

	link, err := env.links.Issue(model.Promotion{RegistrationID: "c1", EventID: 10, RideLevel: "A", UserID: "alice"})
	require.NoError(t, err)
	body := `{"token":"` + link + `"}`

	rr := env.do(http.MethodPost, "/api/registrations/cancel-link", "", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(http.MethodPost, "/api/registrations", accessToken(t, "alice"), `{"eventId":10,"rideLevel":"A"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var again model.Registration
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &again))

	rr = env.do(http.MethodPost, "/api/registrations/cancel-link", "", body)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, codeNotFound, decodeError(t, rr).Code)

	current, ok := store.Get(again.ID)
	require.True(t, ok)
	assert.True(t, current.Active())
}

func TestRegister(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.SetCapacity(10, "A", 1)
	env := newTestEnv(t, store, 60)

	rr := env.do(http.MethodPost, "/api/registrations", accessToken(t, "alice"), `{"eventId":10,"rideLevel":"A"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var reg model.Registration
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reg))
	assert.False(t, reg.IsWaitlist)

	rr = env.do(http.MethodPost, "/api/registrations", accessToken(t, "bob"), `{"eventId":10,"rideLevel":"A"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reg))
	assert.True(t, reg.IsWaitlist)

	rr = env.do(http.MethodPost, "/api/registrations", accessToken(t, "alice"), `{"eventId":10,"rideLevel":"A"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, codeConflict, decodeError(t, rr).Code)
}

func TestCancel_RateLimitedBeforeAuth(t *testing.T) {
	env := newTestEnv(t, testutil.NewMemoryStore(), 60)

	for i := 0; i < 5; i++ {
		rr := env.do(http.MethodPost, "/api/registrations/cancel", "", `{}`)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := env.do(http.MethodPost, "/api/registrations/cancel", "", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestHealthAndNotFound(t *testing.T) {
	env := newTestEnv(t, testutil.NewMemoryStore(), 60)

	rr := env.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, codeNotFound, decodeError(t, rr).Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, testutil.NewMemoryStore(), 60)

	rr := env.do(http.MethodOptions, "/api/registrations/cancel", "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "Authorization"))
}

func TestPublicMessage(t *testing.T) {
	err := fmt.Errorf("find registration: %w", fmt.Errorf("%w: no active registration", model.ErrNotFound))
	assert.Equal(t, "no active registration", publicMessage(err))
	assert.Equal(t, "not found", publicMessage(model.ErrNotFound))
}
