package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/storefront/storefront-sync/internal/config"
	"github.com/storefront/storefront-sync/internal/gateway"
	"github.com/storefront/storefront-sync/internal/session"
	"github.com/storefront/storefront-sync/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = session.User{ID: testhelpers.MockUserID, Name: "Alice", Email: testhelpers.MockUserEmail}

var getCart = gateway.Request{Method: http.MethodGet, Path: "cart"}

func setup(t *testing.T, adjust ...func(*config.APIConfig)) (*testhelpers.MockStorefrontServer, *session.Store, *gateway.Gateway) {
	t.Helper()

	mock := testhelpers.SetupMockStorefrontServer(t)

	cfg := config.APIConfig{
		BaseURL:              mock.URL(),
		PathPrefix:           "/api/v1/",
		RefreshPath:          "auth/refresh-token",
		LogoutPath:           "auth/logout",
		CredentialWait:       200 * time.Millisecond,
		CredentialWaitPolicy: config.CredentialWaitProceed,
		RequestTimeout:       5 * time.Second,
	}
	for _, fn := range adjust {
		fn(&cfg)
	}

	store := session.NewStore()
	gw, err := gateway.New(cfg, store)
	require.NoError(t, err)
	t.Cleanup(gw.CloseIdleConnections)

	return mock, store, gw
}

func authenticated(t *testing.T, store *session.Store, mock *testhelpers.MockStorefrontServer) {
	t.Helper()
	require.NoError(t, store.Set(alice, mock.ValidToken()))
}

func TestSend_AttachesBearerCredential(t *testing.T) {
	mock, store, gw := setup(t)
	authenticated(t, store, mock)

	env, err := gateway.Call[json.RawMessage](context.Background(), gw, getCart)
	require.NoError(t, err)

	assert.True(t, env.Success)
	assert.Equal(t, "Bearer token-0", mock.LastAuthorization())
	assert.Equal(t, 0, mock.Refreshes())
}

func TestSend_ErrorsPassThroughByKind(t *testing.T) {
	cases := []struct {
		name   string
		status int
		kind   gateway.ErrorKind
	}{
		{"bad request", http.StatusBadRequest, gateway.KindValidation},
		{"not found", http.StatusNotFound, gateway.KindValidation},
		{"conflict", http.StatusConflict, gateway.KindValidation},
		{"internal error", http.StatusInternalServerError, gateway.KindServer},
		{"unavailable", http.StatusServiceUnavailable, gateway.KindServer},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock, store, gw := setup(t)
			authenticated(t, store, mock)
			mock.Fail("GET cart", tc.status)

			resp, err := gw.Send(context.Background(), getCart)
			require.Error(t, err)

			assert.Equal(t, tc.kind, gateway.Kind(err))
			require.NotNil(t, resp)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, 0, mock.Refreshes())
			assert.Equal(t, 1, mock.Hits("GET cart"))
			assert.Equal(t, "token-0", store.Credential())
		})
	}
}

func TestSend_ValidationErrorCarriesSources(t *testing.T) {
	mock, store, gw := setup(t)
	authenticated(t, store, mock)

	_, err := gw.Send(context.Background(), gateway.Request{
		Method: http.MethodPost,
		Path:   "cart/add",
		Body:   map[string]any{"productId": "missing", "quantity": 1},
	})

	var validation *gateway.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, http.StatusBadRequest, validation.StatusCode)
	assert.Equal(t, "Validation Error", validation.Message)
	require.Len(t, validation.Sources, 1)
	assert.Equal(t, "productId", validation.Sources[0].Path)
}

func TestSend_NetworkFailure(t *testing.T) {
	mock, store, gw := setup(t)
	authenticated(t, store, mock)
	mock.Server.Close()

	resp, err := gw.Send(context.Background(), getCart)

	assert.Nil(t, resp)
	assert.Equal(t, gateway.KindNetwork, gateway.Kind(err))
	assert.Equal(t, "token-0", store.Credential(), "network failures never touch the session")
}

func TestSend_RefreshesAndRetriesOnce(t *testing.T) {
	mock, store, gw := setup(t)
	authenticated(t, store, mock)
	mock.ExpireToken()

	env, err := gateway.Call[json.RawMessage](context.Background(), gw, getCart)
	require.NoError(t, err)
	assert.True(t, env.Success)

	assert.Equal(t, 1, mock.Refreshes())
	assert.Equal(t, 2, mock.Hits("GET cart"))
	assert.Equal(t, mock.ValidToken(), store.Credential())
	assert.Equal(t, "Bearer "+mock.ValidToken(), mock.LastAuthorization())
}

func TestSend_RetryRejectionIsReturned(t *testing.T) {
	mock, store, gw := setup(t)
	authenticated(t, store, mock)
	mock.Fail("GET cart", http.StatusUnauthorized)

	_, err := gw.Send(context.Background(), getCart)

	assert.Equal(t, gateway.KindUnauthorized, gateway.Kind(err))
	assert.Equal(t, 1, mock.Refreshes())
	assert.Equal(t, 2, mock.Hits("GET cart"), "original request and exactly one retry")
	assert.Equal(t, mock.ValidToken(), store.Credential(), "the refresh itself succeeded")
}

func TestSend_SingleFlightRefresh(t *testing.T) {
	const callers = 10

	mock, store, gw := setup(t)
	authenticated(t, store, mock)
	mock.ExpireToken()
	release := mock.HoldRefresh()

	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = gw.Send(context.Background(), getCart)
		}()
	}

	// every caller has been rejected and the one refresh is held open
	require.Eventually(t, func() bool {
		return mock.Unauthorized() == callers && mock.Refreshes() == 1
	}, 5*time.Second, 5*time.Millisecond)

	release()
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, 1, mock.Refreshes())
	assert.Equal(t, 2*callers, mock.Hits("GET cart"))
	assert.Equal(t, mock.ValidToken(), store.Credential())
}

func TestSend_FailedRefreshExpiresEveryCaller(t *testing.T) {
	const callers = 10

	mock, store, gw := setup(t)
	authenticated(t, store, mock)
	mock.ExpireToken()
	mock.SetRefreshStatus(http.StatusUnauthorized)
	release := mock.HoldRefresh()

	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = gw.Send(context.Background(), getCart)
		}()
	}

	require.Eventually(t, func() bool {
		return mock.Unauthorized() == callers && mock.Refreshes() == 1
	}, 5*time.Second, 5*time.Millisecond)

	release()
	wg.Wait()

	for i, err := range errs {
		assert.Equal(t, gateway.KindSessionExpired, gateway.Kind(err), "caller %d: %v", i, err)
	}
	assert.Equal(t, 1, mock.Refreshes())
	assert.Equal(t, callers, mock.Hits("GET cart"), "nothing is retried after a failed refresh")
	assert.Empty(t, store.Credential())
	_, ok := store.Identity()
	assert.False(t, ok)
}

func TestSend_EachExpiryRefreshesOnce(t *testing.T) {
	mock, store, gw := setup(t)
	authenticated(t, store, mock)

	for i := 1; i <= 2; i++ {
		mock.ExpireToken()

		_, err := gw.Send(context.Background(), getCart)
		require.NoError(t, err)
		assert.Equal(t, i, mock.Refreshes())
		assert.Equal(t, mock.ValidToken(), store.Credential())
	}

	assert.Equal(t, 4, mock.Hits("GET cart"))
}

func TestSend_CancelledCallerDoesNotAbandonRefresh(t *testing.T) {
	mock, store, gw := setup(t)
	authenticated(t, store, mock)
	rejected := store.Credential()
	mock.ExpireToken()
	release := mock.HoldRefresh()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		_, err := gw.Send(ctx, getCart)
		done <- err
	}()

	require.Eventually(t, func() bool { return mock.Refreshes() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	release()
	require.Eventually(t, func() bool {
		return store.Credential() != rejected
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, mock.ValidToken(), store.Credential())

	// the replacement is used directly, without another refresh
	_, err := gw.Send(context.Background(), getCart)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Refreshes())
}

func TestSend_LateCallerAfterFailedRefresh(t *testing.T) {
	mock, store, gw := setup(t)
	authenticated(t, store, mock)
	mock.ExpireToken()
	mock.SetRefreshStatus(http.StatusForbidden)

	_, err := gw.Send(context.Background(), getCart)
	require.Equal(t, gateway.KindSessionExpired, gateway.Kind(err))

	// logged out now: a plain 401 passes through without another refresh
	_, err = gw.Send(context.Background(), getCart)
	assert.Equal(t, gateway.KindUnauthorized, gateway.Kind(err))
	assert.Equal(t, 1, mock.Refreshes())
}

func TestSend_NoRefreshWithoutCredential(t *testing.T) {
	mock, store, gw := setup(t)
	store.Clear()

	_, err := gw.Send(context.Background(), getCart)

	assert.Equal(t, gateway.KindUnauthorized, gateway.Kind(err))
	assert.Equal(t, 0, mock.Refreshes())
	assert.Empty(t, mock.LastAuthorization())
}

func TestSend_SessionPathsNeverRefresh(t *testing.T) {
	mock, store, gw := setup(t)
	authenticated(t, store, mock)
	mock.Fail("POST auth/refresh-token", http.StatusUnauthorized)

	_, err := gw.Send(context.Background(), gateway.Request{Method: http.MethodPost, Path: "/auth/refresh-token"})

	assert.Equal(t, gateway.KindUnauthorized, gateway.Kind(err))
	assert.Equal(t, 1, mock.Hits("POST auth/refresh-token"))
	assert.Equal(t, "token-0", store.Credential())
}

func TestLogout(t *testing.T) {
	t.Run("clears the session", func(t *testing.T) {
		mock, store, gw := setup(t)
		authenticated(t, store, mock)

		err := gw.Logout(context.Background())
		require.NoError(t, err)

		assert.Empty(t, store.Credential())
		assert.Equal(t, 1, mock.Hits("POST auth/logout"))
	})

	t.Run("rejected logout never refreshes", func(t *testing.T) {
		mock, store, gw := setup(t)
		authenticated(t, store, mock)
		mock.ExpireToken()

		err := gw.Logout(context.Background())

		assert.Equal(t, gateway.KindUnauthorized, gateway.Kind(err))
		assert.Equal(t, 0, mock.Refreshes())
		assert.Equal(t, 1, mock.Hits("POST auth/logout"))
		assert.Empty(t, store.Credential(), "session cleared even though the call failed")
	})
}

func TestLogin(t *testing.T) {
	t.Run("stores identity and credential", func(t *testing.T) {
		mock, store, gw := setup(t)

		user, err := gw.Login(context.Background(), gateway.Request{
			Method: http.MethodPost,
			Path:   "auth/login",
			Body:   map[string]string{"email": testhelpers.MockUserEmail, "password": testhelpers.MockUserPassword},
		})
		require.NoError(t, err)

		assert.Equal(t, testhelpers.MockUserID, user.ID)
		assert.Equal(t, mock.ValidToken(), store.Credential())
	})

	t.Run("refresh presents the cookie issued at login", func(t *testing.T) {
		mock, store, gw := setup(t)

		_, err := gw.Login(context.Background(), gateway.Request{
			Method: http.MethodPost,
			Path:   "auth/login",
			Body:   map[string]string{"email": testhelpers.MockUserEmail, "password": testhelpers.MockUserPassword},
		})
		require.NoError(t, err)
		mock.ExpireToken()

		_, err = gw.Send(context.Background(), getCart)
		require.NoError(t, err)

		assert.Equal(t, 1, mock.Refreshes())
		assert.Equal(t, mock.ValidToken(), store.Credential())
	})

	t.Run("bad credentials", func(t *testing.T) {
		mock, store, gw := setup(t)

		_, err := gw.Login(context.Background(), gateway.Request{
			Method: http.MethodPost,
			Path:   "auth/login",
			Body:   map[string]string{"email": testhelpers.MockUserEmail, "password": "wrong"},
		})

		assert.Equal(t, gateway.KindUnauthorized, gateway.Kind(err))
		assert.Equal(t, 0, mock.Refreshes())
		assert.Empty(t, store.Credential())
	})
}

func TestSend_CredentialWait(t *testing.T) {
	t.Run("waits for bootstrap", func(t *testing.T) {
		mock, store, gw := setup(t, func(c *config.APIConfig) { c.CredentialWait = 5 * time.Second })

		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = store.Set(alice, mock.ValidToken())
		}()

		_, err := gw.Send(context.Background(), getCart)
		require.NoError(t, err)
		assert.Equal(t, "Bearer token-0", mock.LastAuthorization())
	})

	t.Run("proceeds unauthenticated after timeout", func(t *testing.T) {
		mock, _, gw := setup(t, func(c *config.APIConfig) { c.CredentialWait = 50 * time.Millisecond })

		start := time.Now()
		_, err := gw.Send(context.Background(), gateway.Request{Path: "products"})
		require.NoError(t, err)

		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Empty(t, mock.LastAuthorization())
	})

	t.Run("fail policy", func(t *testing.T) {
		mock, _, gw := setup(t, func(c *config.APIConfig) {
			c.CredentialWait = 50 * time.Millisecond
			c.CredentialWaitPolicy = config.CredentialWaitFail
		})

		_, err := gw.Send(context.Background(), gateway.Request{Path: "products"})

		assert.ErrorIs(t, err, gateway.ErrCredentialUnavailable)
		assert.Equal(t, 0, mock.Hits("GET products"))
	})

	t.Run("anonymous requests do not wait", func(t *testing.T) {
		_, _, gw := setup(t, func(c *config.APIConfig) { c.CredentialWait = 5 * time.Second })

		start := time.Now()
		_, err := gw.Send(context.Background(), gateway.Request{Path: "products", Anonymous: true})
		require.NoError(t, err)

		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("logged out store does not wait", func(t *testing.T) {
		_, store, gw := setup(t, func(c *config.APIConfig) { c.CredentialWait = 5 * time.Second })
		store.Clear()

		start := time.Now()
		_, err := gw.Send(context.Background(), gateway.Request{Path: "products"})
		require.NoError(t, err)

		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("context cancellation", func(t *testing.T) {
		_, _, gw := setup(t, func(c *config.APIConfig) { c.CredentialWait = 5 * time.Second })

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := gw.Send(ctx, getCart)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestCall_DecodesEnvelope(t *testing.T) {
	mock, store, gw := setup(t)
	authenticated(t, store, mock)

	type product struct {
		ID    string  `json:"_id"`
		Price float64 `json:"price"`
	}

	env, err := gateway.Call[[]product](context.Background(), gw, gateway.Request{
		Path:  "products",
		Query: map[string][]string{"page": {"1"}, "limit": {"1"}},
	})
	require.NoError(t, err)

	require.Len(t, env.Data, 1)
	assert.Equal(t, "p-1", env.Data[0].ID)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 2, env.Meta.Total)
	assert.Equal(t, 1, env.Meta.Limit)
}
