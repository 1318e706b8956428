package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/npezzotti/go-chatrelay/internal/types"
)

const (
	DefaultTokenTTL = time.Hour * 24
	issuer          = "go-chatrelay"
	bearerPrefix    = "Bearer "
	tokenQueryKey   = "token"
)

var ErrUnauthorized = errors.New("unauthorized")

// Claims carries the connection identity inside a signed token.
type Claims struct {
	Id       types.UserId `json:"id"`
	Username string       `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer credentials and issues new ones. It has no
// side effects and is safe for concurrent use.
type Authenticator struct {
	signingKey []byte
	now        func() time.Time
}

func NewAuthenticator(signingKey []byte) *Authenticator {
	return &Authenticator{
		signingKey: signingKey,
		now:        time.Now,
	}
}

// Authenticate resolves a credential to an identity. Any parse, signature,
// algorithm or expiry failure yields ErrUnauthorized.
func (a *Authenticator) Authenticate(credential string) (types.User, error) {
	if credential == "" {
		return types.User{}, ErrUnauthorized
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return types.User{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Id <= 0 || claims.Username == "" {
		return types.User{}, ErrUnauthorized
	}

	return types.User{Id: claims.Id, Username: claims.Username}, nil
}

func (a *Authenticator) IssueToken(user types.User, ttl time.Duration) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Id:       user.Id,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	return token.SignedString(a.signingKey)
}

// CredentialFromRequest extracts a bearer credential from the Authorization
// header, falling back to the token query parameter since browsers can't set
// headers on websocket handshakes.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}

	return r.URL.Query().Get(tokenQueryKey)
}
