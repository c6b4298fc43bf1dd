package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/storefront/storefront-sync/internal/session"
	"go.opentelemetry.io/otel/codes"
)

// errNotRefreshed means the rejected request should be returned as-is: the
// caller is logged out and no refresh applies.
var errNotRefreshed = errors.New("no refresh applicable")

// failedRefresh remembers the credential a failed refresh tried to replace,
// so requests rejected with it get the same answer without refreshing again.
type failedRefresh struct {
	rejected string
	err      error
}

type credentialsResponse struct {
	Data struct {
		AccessToken string       `json:"accessToken"`
		User        session.User `json:"user"`
	} `json:"data"`
}

// awaitRefresh returns a credential to replace rejected. Callers rejected with
// the current credential share one refresh, keyed on that credential; callers
// whose rejected credential has already been replaced use the replacement
// directly.
func (g *Gateway) awaitRefresh(ctx context.Context, rejected string) (string, error) {
	g.mu.Lock()

	current := g.session.Credential()
	switch {
	case current != "" && current != rejected:
		// a refresh (or login) already settled since this request was sent
		g.mu.Unlock()
		return current, nil

	case current == "":
		failed := g.lastFailure
		g.mu.Unlock()

		if failed != nil && failed.rejected == rejected {
			return "", &SessionExpiredError{Cause: failed.err}
		}
		return "", errNotRefreshed
	}

	// Joined under mu: the refresh settles the session under mu before its
	// flight closes, so a caller that saw rejected as current always finds
	// the flight still open. The refresh outlives any single caller's
	// cancellation, others may be waiting on it.
	detached := context.WithoutCancel(ctx)
	result := g.refreshes.DoChan(rejected, func() (any, error) {
		return g.runRefresh(detached, rejected)
	})
	g.mu.Unlock()

	select {
	case r := <-result:
		if r.Err != nil {
			return "", &SessionExpiredError{Cause: r.Err}
		}
		return r.Val.(string), nil

	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *Gateway) runRefresh(ctx context.Context, rejected string) (string, error) {
	ctx, span := tracer().Start(ctx, "gateway.refresh")
	defer span.End()

	log.Info().Msg("gateway: credential rejected, attempting refresh")

	user, token, err := g.refresh(ctx, rejected)
	recordRefresh(ctx, err)

	g.mu.Lock()
	if err == nil {
		err = g.session.Set(user, token)
	}
	if err != nil {
		g.session.Clear()
		g.lastFailure = &failedRefresh{rejected: rejected, err: err}
	} else {
		g.lastFailure = nil
	}
	g.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		log.Info().Err(err).Msg("gateway: refresh failed, session cleared")
		return "", err
	}

	span.SetStatus(codes.Ok, "refreshed")
	log.Info().Str("user", user.ID).Msg("gateway: credential refreshed")
	return token, nil
}

func (g *Gateway) refresh(ctx context.Context, rejected string) (session.User, string, error) {
	resp, err := g.dispatch(ctx, Request{
		Method:    http.MethodPost,
		Path:      g.cfg.RefreshPath,
		Anonymous: true,
	}, rejected)
	if err != nil {
		return session.User{}, "", err
	}

	return decodeCredentials(resp)
}

func decodeCredentials(resp *Response) (session.User, string, error) {
	var body credentialsResponse
	if err := resp.Decode(&body); err != nil {
		return session.User{}, "", err
	}

	if body.Data.AccessToken == "" {
		return session.User{}, "", fmt.Errorf("response did not include an access token")
	}

	return body.Data.User, body.Data.AccessToken, nil
}
