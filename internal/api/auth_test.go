package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateAccountHandler(t *testing.T) {
	tcases := []struct {
		name     string
		body     any
		mockUser database.User
		mockErr  error
		callsDb  bool
		status   int
	}{
		{
			name:     "successfully creates a new account",
			body:     RegisterRequest{Username: "alice", Password: "password123"},
			mockUser: database.User{Id: 1, Username: "alice"},
			callsDb:  true,
			status:   http.StatusCreated,
		},
		{
			name:   "fails with invalid json body",
			body:   "invalid json",
			status: http.StatusBadRequest,
		},
		{
			name:   "fails with missing username",
			body:   RegisterRequest{Password: "password123"},
			status: http.StatusBadRequest,
		},
		{
			name:   "fails with short password",
			body:   RegisterRequest{Username: "alice", Password: "short"},
			status: http.StatusBadRequest,
		},
		{
			name:   "fails with non alphanumeric username",
			body:   RegisterRequest{Username: "al ice", Password: "password123"},
			status: http.StatusBadRequest,
		},
		{
			name:    "fails with taken username",
			body:    RegisterRequest{Username: "alice", Password: "password123"},
			mockErr: fmt.Errorf("create user: %w", database.ErrConflict),
			callsDb: true,
			status:  http.StatusConflict,
		},
		{
			name:    "fails with database error",
			body:    RegisterRequest{Username: "alice", Password: "password123"},
			mockErr: errors.New("db error"),
			callsDb: true,
			status:  http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)
			if tc.callsDb {
				db.On("CreateUser", mock.Anything, mock.MatchedBy(func(p database.CreateUserParams) bool {
					return p.Username == "alice" && verifyPassword(p.PasswordHash, "password123")
				})).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, db, nil)
			rr := do(t, app, http.MethodPost, "/api/auth/register", "", tc.body)

			assert.Equal(t, tc.status, rr.Code, "body: %s", rr.Body.String())
			if tc.status == http.StatusCreated {
				assert.Equal(t, types.User{Id: 1, Username: "alice"}, decodeBody[types.User](t, rr))
				assert.NotContains(t, rr.Body.String(), "password", "expected no password in response")
			} else {
				errResp := decodeBody[ApiError](t, rr)
				assert.Equal(t, tc.status, errResp.StatusCode)
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	pwdHash, err := hashPassword("password123")
	require.NoError(t, err)
	dbUser := database.User{Id: 1, Username: "alice", PasswordHash: pwdHash}

	tcases := []struct {
		name     string
		body     any
		mockUser database.User
		mockErr  error
		callsDb  bool
		status   int
	}{
		{
			name:     "successful login",
			body:     LoginRequest{Username: "alice", Password: "password123"},
			mockUser: dbUser,
			callsDb:  true,
			status:   http.StatusOK,
		},
		{
			name:     "wrong password",
			body:     LoginRequest{Username: "alice", Password: "wrong-password"},
			mockUser: dbUser,
			callsDb:  true,
			status:   http.StatusUnauthorized,
		},
		{
			name:    "unknown user",
			body:    LoginRequest{Username: "alice", Password: "password123"},
			mockErr: fmt.Errorf("get user by username: %w", database.ErrNotFound),
			callsDb: true,
			status:  http.StatusUnauthorized,
		},
		{
			name:    "database error",
			body:    LoginRequest{Username: "alice", Password: "password123"},
			mockErr: errors.New("db error"),
			callsDb: true,
			status:  http.StatusInternalServerError,
		},
		{
			name:   "missing password",
			body:   LoginRequest{Username: "alice"},
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid json",
			body:   "{",
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)
			if tc.callsDb {
				db.On("GetUserByUsername", mock.Anything, "alice").Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, db, nil)
			rr := do(t, app, http.MethodPost, "/api/auth/login", "", tc.body)

			assert.Equal(t, tc.status, rr.Code, "body: %s", rr.Body.String())
			if tc.status != http.StatusOK {
				return
			}

			resp := decodeBody[LoginResponse](t, rr)
			assert.Equal(t, types.User{Id: 1, Username: "alice"}, resp.User)

			user, err := app.authn.Authenticate(resp.Token)
			require.NoError(t, err, "expected issued token to authenticate")
			assert.Equal(t, resp.User, user)
		})
	}
}

func TestSessionHandler(t *testing.T) {
	user := types.User{Id: 1, Username: "alice"}

	t.Run("returns the current user", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetUserById", mock.Anything, user.Id).Return(database.User{Id: 1, Username: "alice"}, nil).Once()

		app := newTestApp(t, db, nil)
		rr := do(t, app, http.MethodGet, "/api/auth/session", tokenFor(t, app, user), nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, user, decodeBody[types.User](t, rr))
	})

	t.Run("deleted user", func(t *testing.T) {
		db := &database.MockRepository{}
		db.On("GetUserById", mock.Anything, user.Id).
			Return(database.User{}, fmt.Errorf("get user: %w", database.ErrNotFound)).Once()

		app := newTestApp(t, db, nil)
		rr := do(t, app, http.MethodGet, "/api/auth/session", tokenFor(t, app, user), nil)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("requires a token", func(t *testing.T) {
		app := newTestApp(t, &database.MockRepository{}, nil)
		rr := do(t, app, http.MethodGet, "/api/auth/session", "", nil)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
