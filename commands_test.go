package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/storefront/storefront-sync/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCLI(t *testing.T) *testhelpers.MockStorefrontServer {
	t.Helper()

	mock := testhelpers.SetupMockStorefrontServer(t)

	t.Setenv("STOREFRONT_API_BASE_URL", mock.URL())
	t.Setenv("STOREFRONT_SESSION_FILE", filepath.Join(t.TempDir(), "session.yaml"))
	t.Setenv("STOREFRONT_CREDENTIAL_WAIT", "100ms")
	t.Setenv("STOREFRONT_PASSWORD", "")

	return mock
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()
	return out.String(), err
}

func login(t *testing.T) {
	t.Helper()

	_, err := run(t, "login", "--email", testhelpers.MockUserEmail, "--password", testhelpers.MockUserPassword)
	require.NoError(t, err)
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), "output: %s", out)
	return v
}

func TestCLI_LoginWhoamiLogout(t *testing.T) {
	setupCLI(t)

	_, err := run(t, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)

	out, err := run(t, "login", "--email", testhelpers.MockUserEmail, "--password", testhelpers.MockUserPassword)
	require.NoError(t, err)
	assert.Equal(t, testhelpers.MockUserID, decode[map[string]any](t, out)["_id"])

	out, err = run(t, "whoami")
	require.NoError(t, err)
	who := decode[map[string]map[string]any](t, out)
	assert.Equal(t, testhelpers.MockUserEmail, who["user"]["email"])

	_, err = run(t, "logout")
	require.NoError(t, err)

	_, err = run(t, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestCLI_LoginPasswordFromEnvironment(t *testing.T) {
	setupCLI(t)
	t.Setenv("STOREFRONT_PASSWORD", testhelpers.MockUserPassword)

	_, err := run(t, "login", "--email", testhelpers.MockUserEmail)
	assert.NoError(t, err)
}

func TestCLI_LoginRequiresEmail(t *testing.T) {
	setupCLI(t)

	_, err := run(t, "login")
	assert.ErrorContains(t, err, `required flag(s) "email" not set`)
}

func TestCLI_MissingConfiguration(t *testing.T) {
	setupCLI(t)
	t.Setenv("STOREFRONT_API_BASE_URL", "")

	_, err := run(t, "products", "list")
	assert.ErrorContains(t, err, "configuration load failed")
}

func TestCLI_Products(t *testing.T) {
	setupCLI(t)

	out, err := run(t, "products", "list", "--limit", "1")
	require.NoError(t, err)
	page := decode[map[string]any](t, out)
	assert.EqualValues(t, 2, page["total"])
	assert.Len(t, page["items"], 1)

	out, err = run(t, "products", "get", "p-2")
	require.NoError(t, err)
	assert.Equal(t, "Kettle", decode[map[string]any](t, out)["name"])
}

func TestCLI_ProductLifecycle(t *testing.T) {
	mock := setupCLI(t)
	login(t)

	out, err := run(t, "products", "create", "--name", "Cup", "--price", "3.5", "--stock", "4", "--tag", "kitchen")
	require.NoError(t, err)
	created := decode[map[string]any](t, out)
	id := created["_id"].(string)

	out, err = run(t, "products", "list", "--mine")
	require.NoError(t, err)
	assert.EqualValues(t, 2, decode[map[string]any](t, out)["total"])

	_, err = run(t, "products", "delete", id)
	require.NoError(t, err)
	_, exists := mock.Product(id)
	assert.False(t, exists)

	_, err = run(t, "products", "create", "--price", "3")
	assert.ErrorContains(t, err, "name is required")
}

func TestCLI_Cart(t *testing.T) {
	mock := setupCLI(t)
	login(t)

	_, err := run(t, "cart", "add", "p-1", "--quantity", "2")
	require.NoError(t, err)
	_, err = run(t, "cart", "add", "p-2")
	require.NoError(t, err)
	_, err = run(t, "cart", "set", "p-1", "5")
	require.NoError(t, err)
	_, err = run(t, "cart", "remove", "p-2")
	require.NoError(t, err)

	out, err := run(t, "cart", "show")
	require.NoError(t, err)
	cart := decode[map[string]any](t, out)
	assert.Equal(t, []any{map[string]any{"productId": "p-1", "quantity": float64(5)}}, cart["items"])

	_, err = run(t, "cart", "set", "p-1", "five")
	assert.ErrorContains(t, err, "quantity must be a number")

	_, err = run(t, "cart", "clear")
	require.NoError(t, err)
	assert.Empty(t, mock.Cart())
}

func TestCLI_SessionExpired(t *testing.T) {
	mock := setupCLI(t)
	login(t)

	mock.ExpireToken()
	mock.SetRefreshStatus(401)

	_, err := run(t, "cart", "show")
	assert.ErrorContains(t, err, "run 'storefront login'")

	_, err = run(t, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestCLI_Orders(t *testing.T) {
	setupCLI(t)
	login(t)

	out, err := run(t, "orders", "checkout", "p-1:2", "p-2")
	require.NoError(t, err)
	created := decode[map[string]string](t, out)
	orderID := created["orderId"]

	out, err = run(t, "orders", "get", orderID)
	require.NoError(t, err)
	assert.EqualValues(t, 45, decode[map[string]any](t, out)["totalAmount"])

	out, err = run(t, "orders", "get", "--session", created["sessionId"])
	require.NoError(t, err)
	assert.Equal(t, orderID, decode[map[string]any](t, out)["_id"])

	out, err = run(t, "orders", "list")
	require.NoError(t, err)
	assert.EqualValues(t, 1, decode[map[string]any](t, out)["total"])

	out, err = run(t, "orders", "status", orderID, "--to", "shipped")
	require.NoError(t, err)
	assert.Equal(t, "shipped", decode[map[string]any](t, out)["orderStatus"])

	out, err = run(t, "orders", "cancel", orderID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", decode[map[string]any](t, out)["orderStatus"])

	_, err = run(t, "orders", "checkout", "p-1:many")
	assert.ErrorContains(t, err, "invalid quantity")
}

func TestCLI_Invoice(t *testing.T) {
	setupCLI(t)
	login(t)

	out, err := run(t, "orders", "checkout", "p-1")
	require.NoError(t, err)
	orderID := decode[map[string]string](t, out)["orderId"]

	path := filepath.Join(t.TempDir(), "invoice.pdf")
	_, err = run(t, "orders", "invoice", orderID, "--output", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	out, err = run(t, "orders", "invoice", orderID, "--html")
	require.NoError(t, err)
	assert.Contains(t, out, "<html>")

	missing := filepath.Join(t.TempDir(), "missing.pdf")
	_, err = run(t, "orders", "invoice", "o-404", "--output", missing)
	assert.Error(t, err)
	assert.NoFileExists(t, missing)
}

func TestParseLines(t *testing.T) {
	lines, err := parseLines([]string{"p-1", "p-2:3"})
	require.NoError(t, err)

	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, "p-2", lines[1].ProductID)
	assert.Equal(t, 3, lines[1].Quantity)
}
