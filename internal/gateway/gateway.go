package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/storefront/storefront-sync/internal/config"
	"github.com/storefront/storefront-sync/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Gateway sends requests to the API with the current session credential
// attached, and recovers from credential expiry by refreshing the session
// once and retrying.
type Gateway struct {
	client   *http.Client
	endpoint *url.URL
	session  *session.Store
	cfg      config.APIConfig

	// mu guards lastFailure and orders joining a refresh against its result.
	// The session is only written by a refresh while mu is held, so "is the
	// rejected credential still current" and "is a refresh in flight" are
	// answered together.
	mu          sync.Mutex
	refreshes   singleflight.Group
	lastFailure *failedRefresh
}

type Option func(*Gateway)

// WithTransport sets the round tripper used for outbound requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) {
		g.client.Transport = rt
	}
}

// WithHTTPClient replaces the HTTP client entirely. The client should carry a
// cookie jar if the API issues its refresh token as a cookie.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

func New(cfg config.APIConfig, store *session.Store, opts ...Option) (*Gateway, error) {
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}

	// the refresh token travels as an HTTP-only cookie
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar configuration failed: %w", err)
	}

	g := &Gateway{
		client: &http.Client{
			Jar:     jar,
			Timeout: cfg.RequestTimeout,
		},
		endpoint: endpoint,
		session:  store,
		cfg:      cfg,
	}

	for _, opt := range opts {
		opt(g)
	}

	initMetrics()

	return g, nil
}

// Send issues req with the current credential. If the API rejects the
// credential, a single shared refresh is performed and the request is retried
// once with the new credential. Non-2xx responses are returned together with
// a typed error (see Kind).
func (g *Gateway) Send(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer().Start(ctx, "gateway.send",
		trace.WithAttributes(
			attribute.String("http.method", req.method()),
			attribute.String("gateway.path", req.Path),
		),
	)
	defer span.End()

	resp, err := g.send(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err).String())
	}

	return resp, err
}

func (g *Gateway) send(ctx context.Context, req Request) (*Response, error) {
	credential, err := g.credential(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := g.dispatch(ctx, req, credential)
	if Kind(err) != KindUnauthorized || credential == "" || g.isSessionPath(req.Path) {
		return resp, err
	}

	replacement, refreshErr := g.awaitRefresh(ctx, credential)
	if refreshErr == errNotRefreshed {
		return resp, err
	}
	if refreshErr != nil {
		return nil, refreshErr
	}

	log.Debug().Str("path", req.Path).Msg("gateway: retrying with refreshed credential")

	// exactly one retry: a second rejection is returned to the caller as-is
	return g.dispatch(ctx, req, replacement)
}

// Login sends an anonymous authentication request and, on success, stores the
// identity and credential from the response in the session.
func (g *Gateway) Login(ctx context.Context, req Request) (session.User, error) {
	req.Anonymous = true

	resp, err := g.Send(ctx, req)
	if err != nil {
		return session.User{}, err
	}

	user, token, err := decodeCredentials(resp)
	if err != nil {
		return session.User{}, err
	}

	if err := g.session.Set(user, token); err != nil {
		return session.User{}, fmt.Errorf("login response rejected: %w", err)
	}

	return user, nil
}

// Logout tells the API to end the session, then clears the local session
// whatever the outcome: a failed logout call must not leave the caller logged
// in.
func (g *Gateway) Logout(ctx context.Context) error {
	_, err := g.Send(ctx, Request{
		Method:    http.MethodPost,
		Path:      g.cfg.LogoutPath,
		Anonymous: true,
	})

	g.session.Clear()

	if err != nil {
		log.Info().Err(err).Msg("gateway: logout call failed, session cleared locally")
	}
	return err
}

// CloseIdleConnections releases pooled connections.
func (g *Gateway) CloseIdleConnections() {
	g.client.CloseIdleConnections()
}

// credential returns the credential to attach, waiting for the session to be
// bootstrapped if necessary.
func (g *Gateway) credential(ctx context.Context, req Request) (string, error) {
	credential := g.session.Credential()
	if credential != "" || req.Anonymous || g.session.Settled() {
		return credential, nil
	}

	credential, ok := g.session.WaitForCredential(ctx, g.cfg.CredentialWait)
	if ok {
		return credential, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if g.cfg.CredentialWaitPolicy == config.CredentialWaitFail {
		return "", ErrCredentialUnavailable
	}

	log.Debug().
		Str("path", req.Path).
		Dur("waited", g.cfg.CredentialWait).
		Msg("gateway: no credential available, proceeding unauthenticated")

	return "", nil
}

// dispatch performs a single HTTP exchange.
func (g *Gateway) dispatch(ctx context.Context, req Request, credential string) (*Response, error) {
	target := g.endpoint.JoinPath(strings.TrimPrefix(req.Path, "/"))
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+credential)
	}

	start := time.Now()
	resp, err := g.exchange(httpReq)
	recordRequest(ctx, httpReq.Method, err, time.Since(start))

	return resp, err
}

func (g *Gateway) exchange(httpReq *http.Request) (*Response, error) {
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Method: httpReq.Method, URL: httpReq.URL.Redacted(), Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &NetworkError{Method: httpReq.Method, URL: httpReq.URL.Redacted(), Err: err}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return resp, statusError(httpResp.StatusCode, data)
	}

	return resp, nil
}

// isSessionPath reports whether path is the logout or refresh endpoint:
// neither may trigger a refresh.
func (g *Gateway) isSessionPath(path string) bool {
	p := strings.Trim(path, "/")
	return p == strings.Trim(g.cfg.LogoutPath, "/") || p == strings.Trim(g.cfg.RefreshPath, "/")
}
