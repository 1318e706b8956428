package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-chatrelay/internal/auth"
	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestErrorHandler(t *testing.T) {
	tcases := []struct {
		name  string
		panic any
	}{
		{name: "panics with error", panic: errors.New("boom")},
		{name: "panics with string", panic: "boom"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, &database.MockRepository{}, nil)
			h := app.errorHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tc.panic)
			}))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Equal(t, "close", rr.Header().Get("Connection"))
			assert.JSONEq(t, `{"statusCode":500,"message":"internal server error"}`, rr.Body.String())
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	user := types.User{Id: 1, Username: "alice"}

	var called bool
	var gotUser types.User
	next := func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotUser, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}

	app := newTestApp(t, &database.MockRepository{}, nil)
	expired, err := app.authn.IssueToken(user, -time.Minute)
	assert.NoError(t, err)
	otherKey, err := auth.NewAuthenticator([]byte("other")).IssueToken(user, time.Hour)
	assert.NoError(t, err)

	tcases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{name: "no credential", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not-a-jwt", status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + otherKey, status: http.StatusUnauthorized},
		{name: "header", header: "Bearer " + tokenFor(t, app, user), status: http.StatusOK},
		{name: "query", query: "?token=" + tokenFor(t, app, user), status: http.StatusOK},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			called, gotUser = false, types.User{}

			req := httptest.NewRequest(http.MethodGet, "/ws"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			app.authMiddleware(next)(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				assert.False(t, called, "expected handler not to run")
				assert.JSONEq(t, `{"statusCode":401,"message":"unauthorized"}`, rr.Body.String())
				return
			}

			assert.True(t, called, "expected handler to run")
			assert.Equal(t, user, gotUser, "expected identity in request context")
			assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
		})
	}
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)
			db.On("Ping", mock.Anything).Return(tc.mockErr).Once()

			app := newTestApp(t, db, nil)
			rr := do(t, app, http.MethodGet, "/healthz", "", nil)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}
