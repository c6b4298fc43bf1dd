package storefront

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/storefront/storefront-sync/internal/gateway"
	"github.com/storefront/storefront-sync/internal/session"
)

// Credentials authenticate an existing account.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration creates a new account.
type Registration struct {
	Name     string `json:"name" validate:"required"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Login authenticates and starts a new session. Cached data belonging to any
// previous session is dropped.
func (c *Client) Login(ctx context.Context, creds Credentials) (session.User, error) {
	if err := c.check(creds); err != nil {
		return session.User{}, err
	}

	user, err := c.gateway.Login(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   creds,
	})
	if err != nil {
		return session.User{}, err
	}

	c.cache.Purge()
	log.Info().Str("user", user.ID).Msg("storefront: logged in")

	return user, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, reg Registration) (session.User, error) {
	if err := c.check(reg); err != nil {
		return session.User{}, err
	}

	env, err := gateway.Call[session.User](ctx, c.gateway, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/register",
		Body:      reg,
		Anonymous: true,
	})
	return env.Data, err
}

// Logout ends the session. The local session and cache are cleared even when
// the API call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.gateway.Logout(ctx)
	c.cache.Purge()
	return err
}
