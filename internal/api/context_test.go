package api

import (
	"context"
	"testing"

	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestUserFromContext(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		user     types.User
		expected bool
	}{
		{
			name:     "no user",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user set",
			ctx:      WithUser(context.Background(), types.User{Id: 42, Username: "alice"}),
			user:     types.User{Id: 42, Username: "alice"},
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			user, ok := UserFromContext(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserFromContext to return %v", tc.expected)
			assert.Equal(t, tc.user, user)
		})
	}
}
