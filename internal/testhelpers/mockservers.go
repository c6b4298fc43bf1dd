package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/justinas/alice"
)

const (
	APIPrefix          = "/api/v1/"
	RefreshCookieName  = "refreshToken"
	MockUserID         = "user-1"
	MockUserEmail      = "alice@example.com"
	MockUserPassword   = "correct-horse"
	unauthorizedReason = "You are not authorized"
)

// MockUser is the identity returned by the mock for login and refresh.
var MockUser = map[string]any{
	"_id":      MockUserID,
	"name":     "Alice",
	"username": "alice",
	"email":    MockUserEmail,
}

// MockProduct is a product record as stored by the mock.
type MockProduct struct {
	ID          string   `json:"_id"`
	UserID      string   `json:"userId"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags"`
	Images      []string `json:"images"`
	Stock       int      `json:"stock"`
}

// MockCartItem is a cart line as stored by the mock.
type MockCartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// MockOrder is an order record as stored by the mock.
type MockOrder struct {
	ID              string         `json:"_id"`
	Items           []MockCartItem `json:"items"`
	TotalAmount     float64        `json:"totalAmount"`
	PaymentStatus   string         `json:"paymentStatus"`
	PaymentMethod   string         `json:"paymentMethod"`
	OrderStatus     string         `json:"orderStatus"`
	StripeSessionID string         `json:"stripeSessionId"`
}

// MockStorefrontServer is an in-memory storefront API. Data routes require
// the current valid bearer token; the auth routes issue and rotate it.
type MockStorefrontServer struct {
	Server *httptest.Server

	mu            sync.Mutex
	validToken    string
	refreshCookie string
	issued        int
	refreshStatus int
	refreshGate   chan struct{}
	failures      map[string]int

	products map[string]*MockProduct
	cart     []MockCartItem
	orders   map[string]*MockOrder
	nextID   int

	hits          sync.Map // pattern -> *atomic.Int64
	unauthorized  atomic.Int64
	refreshes     atomic.Int64
	lastAuthMu    sync.Mutex
	lastAuthValue string
}

// SetupMockStorefrontServer starts the mock with a valid token of
// "token-0" and a small product catalogue. The server is closed when the
// test ends.
func SetupMockStorefrontServer(t *testing.T) *MockStorefrontServer {
	t.Helper()

	mock := &MockStorefrontServer{
		validToken:    "token-0",
		refreshStatus: http.StatusOK,
		failures:      map[string]int{},
		products: map[string]*MockProduct{
			"p-1": {ID: "p-1", UserID: MockUserID, Name: "Teapot", Price: 20, Stock: 5, Tags: []string{}, Images: []string{}},
			"p-2": {ID: "p-2", UserID: "user-2", Name: "Kettle", Price: 5, Stock: 10, Tags: []string{}, Images: []string{}},
		},
		orders: map[string]*MockOrder{},
	}

	router := http.NewServeMux()

	// auth
	mock.route(router, "POST auth/login", false, mock.login)
	mock.route(router, "POST auth/register", false, mock.register)
	mock.route(router, "POST auth/refresh-token", false, mock.refresh)
	mock.route(router, "POST auth/logout", true, mock.logout)

	// cart
	mock.route(router, "GET cart", true, mock.getCart)
	mock.route(router, "POST cart/add", true, mock.addToCart)
	mock.route(router, "PATCH cart/{productId}", true, mock.updateCartItem)
	mock.route(router, "DELETE cart/{productId}", true, mock.removeFromCart)
	mock.route(router, "DELETE cart", true, mock.clearCart)

	// products
	mock.route(router, "GET products", false, mock.listProducts)
	mock.route(router, "GET products/my-products", true, mock.myProducts)
	mock.route(router, "GET products/{id}", false, mock.getProduct)
	mock.route(router, "POST products", true, mock.createProduct)
	mock.route(router, "PUT products/{id}", true, mock.updateProduct)
	mock.route(router, "DELETE products/{id}", true, mock.deleteProduct)

	// orders
	mock.route(router, "POST orders/create-checkout-session", true, mock.createCheckoutSession)
	mock.route(router, "GET orders/my-orders", true, mock.myOrders)
	mock.route(router, "GET orders/{id}", true, mock.getOrder)
	mock.route(router, "PATCH orders/{id}/status", true, mock.updateOrderStatus)
	mock.route(router, "PATCH orders/{id}/cancel", true, mock.cancelOrder)
	mock.route(router, "GET orders/{id}/{sub}", true, mock.orderSubresource)
	mock.route(router, "GET orders/{id}/invoice/html", true, mock.invoiceHTML)

	mock.Server = httptest.NewServer(router)
	t.Cleanup(mock.Close)

	return mock
}

// Close shuts down the mock server, releasing any held refresh first.
func (m *MockStorefrontServer) Close() {
	m.mu.Lock()
	gate := m.refreshGate
	m.refreshGate = nil
	m.mu.Unlock()

	if gate != nil {
		close(gate)
	}
	m.Server.Close()
}

// URL is the base URL of the server, without the API prefix.
func (m *MockStorefrontServer) URL() string {
	return m.Server.URL
}

// ValidToken returns the bearer token currently accepted by data routes.
func (m *MockStorefrontServer) ValidToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.validToken
}

// ExpireToken rotates the accepted token so that any token held by a client
// is rejected with 401 until it refreshes.
func (m *MockStorefrontServer) ExpireToken() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.validToken = "expired-" + strconv.Itoa(m.issued)
}

// SetRefreshStatus makes the refresh route fail with status. Use
// http.StatusOK to restore normal behaviour.
func (m *MockStorefrontServer) SetRefreshStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshStatus = status
}

// HoldRefresh blocks refresh requests until the returned function is called.
func (m *MockStorefrontServer) HoldRefresh() (release func()) {
	gate := make(chan struct{})

	m.mu.Lock()
	m.refreshGate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.refreshGate == gate {
				m.refreshGate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Fail makes every request to the route (e.g. "GET cart") respond with
// status. A status of 0 removes the failure.
func (m *MockStorefrontServer) Fail(route string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if status == 0 {
		delete(m.failures, route)
		return
	}
	m.failures[route] = status
}

// Hits returns the number of requests received for the route, e.g.
// "POST auth/refresh-token".
func (m *MockStorefrontServer) Hits(route string) int {
	if c, ok := m.hits.Load(route); ok {
		return int(c.(*atomic.Int64).Load())
	}
	return 0
}

// Refreshes returns the number of refresh requests received.
func (m *MockStorefrontServer) Refreshes() int {
	return int(m.refreshes.Load())
}

// Unauthorized returns the number of requests rejected for their credential.
func (m *MockStorefrontServer) Unauthorized() int {
	return int(m.unauthorized.Load())
}

// LastAuthorization returns the Authorization header of the most recent
// request.
func (m *MockStorefrontServer) LastAuthorization() string {
	m.lastAuthMu.Lock()
	defer m.lastAuthMu.Unlock()

	return m.lastAuthValue
}

// SetCart replaces the cart contents.
func (m *MockStorefrontServer) SetCart(items ...MockCartItem) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cart = append([]MockCartItem(nil), items...)
}

// Cart returns a copy of the cart contents.
func (m *MockStorefrontServer) Cart() []MockCartItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]MockCartItem(nil), m.cart...)
}

// Product returns a copy of the stored product.
func (m *MockStorefrontServer) Product(id string) (MockProduct, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return MockProduct{}, false
	}
	return *p, true
}

func (m *MockStorefrontServer) route(router *http.ServeMux, route string, authenticated bool, h http.HandlerFunc) {
	method, path, _ := cut(route)

	chain := alice.New(m.count(route), m.captureAuth, m.inject(route))
	if authenticated {
		chain = chain.Append(m.authenticate)
	}

	router.Handle(method+" "+APIPrefix+path, chain.ThenFunc(h))
}

func (m *MockStorefrontServer) count(route string) alice.Constructor {
	c, _ := m.hits.LoadOrStore(route, &atomic.Int64{})
	counter := c.(*atomic.Int64)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			counter.Add(1)
			next.ServeHTTP(w, r)
		})
	}
}

func (m *MockStorefrontServer) captureAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.lastAuthMu.Lock()
		m.lastAuthValue = r.Header.Get("Authorization")
		m.lastAuthMu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (m *MockStorefrontServer) inject(route string) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.mu.Lock()
			status, failing := m.failures[route]
			m.mu.Unlock()

			if failing {
				if status == http.StatusUnauthorized {
					m.unauthorized.Add(1)
				}
				writeError(w, status, fmt.Sprintf("injected failure for %s", route))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *MockStorefrontServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		expected := "Bearer " + m.validToken
		m.mu.Unlock()

		if r.Header.Get("Authorization") != expected {
			m.unauthorized.Add(1)
			writeError(w, http.StatusUnauthorized, unauthorizedReason)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *MockStorefrontServer) issueToken(w http.ResponseWriter) string {
	m.issued++
	m.validToken = "token-" + strconv.Itoa(m.issued)
	m.refreshCookie = "refresh-" + strconv.Itoa(m.issued)

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    m.refreshCookie,
		Path:     "/",
		HttpOnly: true,
	})

	return m.validToken
}

func (m *MockStorefrontServer) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if body.Email != MockUserEmail || body.Password != MockUserPassword {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	m.mu.Lock()
	token := m.issueToken(w)
	m.mu.Unlock()

	writeData(w, http.StatusOK, map[string]any{"accessToken": token, "user": MockUser}, nil)
}

func (m *MockStorefrontServer) register(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if body["email"] == MockUserEmail {
		writeValidation(w, "email", "Email already registered")
		return
	}

	body["_id"] = "user-new"
	delete(body, "password")
	writeData(w, http.StatusCreated, body, nil)
}

func (m *MockStorefrontServer) refresh(w http.ResponseWriter, r *http.Request) {
	m.refreshes.Add(1)

	m.mu.Lock()
	gate := m.refreshGate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshStatus != http.StatusOK {
		writeError(w, m.refreshStatus, "Refresh token is invalid")
		return
	}

	// once a refresh cookie has been issued it must be presented
	if m.refreshCookie != "" {
		c, err := r.Cookie(RefreshCookieName)
		if err != nil || c.Value != m.refreshCookie {
			writeError(w, http.StatusUnauthorized, "Refresh token is missing")
			return
		}
	}

	token := m.issueToken(w)
	writeData(w, http.StatusOK, map[string]any{"accessToken": token, "user": MockUser}, nil)
}

func (m *MockStorefrontServer) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: RefreshCookieName, Value: "", Path: "/", MaxAge: -1})
	writeData(w, http.StatusOK, nil, nil)
}

func (m *MockStorefrontServer) getCart(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	writeData(w, http.StatusOK, m.cartBody(), nil)
}

func (m *MockStorefrontServer) addToCart(w http.ResponseWriter, r *http.Request) {
	var body MockCartItem
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[body.ProductID]; !ok {
		writeValidation(w, "productId", "Product not found")
		return
	}

	for i := range m.cart {
		if m.cart[i].ProductID == body.ProductID {
			m.cart[i].Quantity += body.Quantity
			writeData(w, http.StatusOK, m.cart[i], nil)
			return
		}
	}

	m.cart = append(m.cart, body)
	writeData(w, http.StatusOK, body, nil)
}

func (m *MockStorefrontServer) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	productID := r.PathValue("productId")

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.cart {
		if m.cart[i].ProductID == productID {
			m.cart[i].Quantity = body.Quantity
			writeData(w, http.StatusOK, m.cart[i], nil)
			return
		}
	}

	writeError(w, http.StatusNotFound, "Item not in cart")
}

func (m *MockStorefrontServer) removeFromCart(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.cart[:0]
	for _, item := range m.cart {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	m.cart = kept

	writeData(w, http.StatusOK, m.cartBody(), nil)
}

func (m *MockStorefrontServer) clearCart(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cart = nil
	writeData(w, http.StatusOK, m.cartBody(), nil)
}

func (m *MockStorefrontServer) cartBody() map[string]any {
	items := append([]MockCartItem{}, m.cart...)
	return map[string]any{"userId": MockUserID, "items": items}
}

func (m *MockStorefrontServer) listProducts(w http.ResponseWriter, r *http.Request) {
	m.writeProducts(w, r, func(*MockProduct) bool { return true })
}

func (m *MockStorefrontServer) myProducts(w http.ResponseWriter, r *http.Request) {
	m.writeProducts(w, r, func(p *MockProduct) bool { return p.UserID == MockUserID })
}

func (m *MockStorefrontServer) writeProducts(w http.ResponseWriter, r *http.Request, include func(*MockProduct) bool) {
	page, limit := pagination(r)

	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []MockProduct
	for _, id := range sortedKeys(m.products) {
		if p := m.products[id]; include(p) {
			matched = append(matched, *p)
		}
	}

	total := len(matched)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	writeData(w, http.StatusOK, append([]MockProduct{}, matched[start:end]...), map[string]int{
		"page":  page,
		"limit": limit,
		"total": total,
	})
}

func (m *MockStorefrontServer) getProduct(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}

	writeData(w, http.StatusOK, p, nil)
}

func (m *MockStorefrontServer) createProduct(w http.ResponseWriter, r *http.Request) {
	var body MockProduct
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	body.ID = "p-new-" + strconv.Itoa(m.nextID)
	body.UserID = MockUserID
	m.products[body.ID] = &body

	writeData(w, http.StatusCreated, body, nil)
}

func (m *MockStorefrontServer) updateProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}

	// partial update: decode over the stored record
	updated := *p
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	updated.ID = id
	m.products[id] = &updated

	writeData(w, http.StatusOK, updated, nil)
}

func (m *MockStorefrontServer) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		writeError(w, http.StatusNotFound, "Product not found")
		return
	}
	delete(m.products, id)

	writeData(w, http.StatusOK, nil, nil)
}

func (m *MockStorefrontServer) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []MockCartItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(body.Items) == 0 {
		writeValidation(w, "items", "At least one item is required")
		return
	}

	var total float64
	for _, item := range body.Items {
		p, ok := m.products[item.ProductID]
		if !ok {
			writeValidation(w, "items", "Product not found: "+item.ProductID)
			return
		}
		total += p.Price * float64(item.Quantity)
	}

	m.nextID++
	order := &MockOrder{
		ID:              "o-" + strconv.Itoa(m.nextID),
		Items:           body.Items,
		TotalAmount:     total,
		PaymentStatus:   "pending",
		PaymentMethod:   "stripe",
		OrderStatus:     "pending",
		StripeSessionID: "cs-" + strconv.Itoa(m.nextID),
	}
	m.orders[order.ID] = order

	writeData(w, http.StatusOK, map[string]any{
		"sessionId": order.StripeSessionID,
		"url":       "https://checkout.example.com/" + order.StripeSessionID,
		"orderId":   order.ID,
	}, nil)
}

func (m *MockStorefrontServer) myOrders(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []MockOrder
	for _, id := range sortedKeys(m.orders) {
		orders = append(orders, *m.orders[id])
	}

	total := len(orders)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	writeData(w, http.StatusOK, append([]MockOrder{}, orders[start:end]...), map[string]int{
		"page":  page,
		"limit": limit,
		"total": total,
	})
}

func (m *MockStorefrontServer) getOrder(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	writeData(w, http.StatusOK, o, nil)
}

// orderSubresource serves both orders/session/{sessionId} and
// orders/{id}/invoice, which a single mux pattern must cover.
func (m *MockStorefrontServer) orderSubresource(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.PathValue("id") == "session":
		m.getOrderBySession(w, r.PathValue("sub"))
	case r.PathValue("sub") == "invoice":
		m.invoice(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (m *MockStorefrontServer) getOrderBySession(w http.ResponseWriter, sessionID string) {

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.StripeSessionID == sessionID {
			writeData(w, http.StatusOK, o, nil)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Order not found")
}

func (m *MockStorefrontServer) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	m.setOrderStatus(w, r.PathValue("id"), body.Status)
}

func (m *MockStorefrontServer) cancelOrder(w http.ResponseWriter, r *http.Request) {
	m.setOrderStatus(w, r.PathValue("id"), "cancelled")
}

func (m *MockStorefrontServer) setOrderStatus(w http.ResponseWriter, id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}
	o.OrderStatus = status
	writeData(w, http.StatusOK, o, nil)
}

func (m *MockStorefrontServer) invoice(w http.ResponseWriter, r *http.Request) {
	if !m.orderExists(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write([]byte("%PDF-1.4 invoice " + r.PathValue("id")))
}

func (m *MockStorefrontServer) invoiceHTML(w http.ResponseWriter, r *http.Request) {
	if !m.orderExists(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte("<html><body>Invoice " + r.PathValue("id") + "</body></html>"))
}

func (m *MockStorefrontServer) orderExists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.orders[id]
	return ok
}

// WriteJSON is a helper function that writes a JSON response.
// It sets the Content-Type header and marshals the payload to JSON.
func WriteJSON(w http.ResponseWriter, payload any) {
	writeJSONStatus(w, http.StatusOK, payload)
}

func writeJSONStatus(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		// In test context, this should never happen with valid test data
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeData(w http.ResponseWriter, status int, data any, meta map[string]int) {
	body := map[string]any{
		"success": true,
		"message": "ok",
		"data":    data,
	}
	if meta != nil {
		body["meta"] = meta
	}
	writeJSONStatus(w, status, body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSONStatus(w, status, map[string]any{
		"success":      false,
		"message":      message,
		"errorSources": []map[string]string{{"path": "", "message": message}},
	})
}

func writeValidation(w http.ResponseWriter, path, message string) {
	writeJSONStatus(w, http.StatusBadRequest, map[string]any{
		"success":      false,
		"message":      "Validation Error",
		"errorSources": []map[string]string{{"path": path, "message": message}},
	})
}
