package storefront

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/storefront/storefront-sync/internal/cache"
	"github.com/storefront/storefront-sync/internal/gateway"
)

// Checkout lists the products to order.
type Checkout struct {
	Items []CartLine `json:"items" validate:"required,min=1,dive"`
}

type orderRef struct {
	ID string `json:"id" validate:"required"`
}

type orderStatusChange struct {
	ID     string `json:"id" validate:"required"`
	Status string `json:"status" validate:"required,oneof=pending confirmed processing shipped delivered cancelled"`
}

// CreateCheckoutSession places an order for the listed items and returns the
// payment session to complete it.
func (c *Client) CreateCheckoutSession(ctx context.Context, checkout Checkout) (CheckoutSession, error) {
	if err := c.check(checkout); err != nil {
		return CheckoutSession{}, err
	}

	var created CheckoutSession
	_, err := c.cache.Mutate(ctx, func(ctx context.Context) error {
		env, err := gateway.Call[CheckoutSession](ctx, c.gateway, gateway.Request{
			Method: http.MethodPost,
			Path:   "/orders/create-checkout-session",
			Body:   checkout,
		})
		created = env.Data
		return err
	}, nil, []cache.Tag{cache.TypeTag(TagOrders)})

	return created, err
}

// MyOrders lists the caller's orders, ten per page by default.
func (c *Client) MyOrders(ctx context.Context, params PageParams) (Page[Order], error) {
	if err := c.check(params); err != nil {
		return Page[Order]{}, err
	}
	params = params.withDefaults(10)

	fp := cache.Key("my-orders", params.Page, params.Limit)
	return cache.Query(ctx, c.cache, fp, func(ctx context.Context) (Page[Order], error) {
		return fetchPage[Order](ctx, c.gateway, "/orders/my-orders", params)
	}, cache.TypeTag(TagOrders))
}

// Order returns one order.
func (c *Client) Order(ctx context.Context, id string) (Order, error) {
	if err := c.check(orderRef{ID: id}); err != nil {
		return Order{}, err
	}

	return cache.Query(ctx, c.cache, cache.Key("order", id), func(ctx context.Context) (Order, error) {
		return fetchData[Order](ctx, c.gateway, "/orders/"+url.PathEscape(id))
	}, cache.IDTag(TagOrders, id))
}

// OrderBySession returns the order created with a checkout session.
func (c *Client) OrderBySession(ctx context.Context, sessionID string) (Order, error) {
	if err := c.check(orderRef{ID: sessionID}); err != nil {
		return Order{}, err
	}

	return cache.Query(ctx, c.cache, cache.Key("order-by-session", sessionID), func(ctx context.Context) (Order, error) {
		return fetchData[Order](ctx, c.gateway, "/orders/session/"+url.PathEscape(sessionID))
	}, cache.TypeTag(TagOrders))
}

// UpdateOrderStatus moves an order to status.
func (c *Client) UpdateOrderStatus(ctx context.Context, id, status string) (Order, error) {
	if err := c.check(orderStatusChange{ID: id, Status: status}); err != nil {
		return Order{}, err
	}

	return c.changeOrder(ctx, id, gateway.Request{
		Method: http.MethodPatch,
		Path:   "/orders/" + url.PathEscape(id) + "/status",
		Body:   map[string]string{"status": status},
	})
}

// CancelOrder cancels an order.
func (c *Client) CancelOrder(ctx context.Context, id string) (Order, error) {
	if err := c.check(orderRef{ID: id}); err != nil {
		return Order{}, err
	}

	return c.changeOrder(ctx, id, gateway.Request{
		Method: http.MethodPatch,
		Path:   "/orders/" + url.PathEscape(id) + "/cancel",
	})
}

func (c *Client) changeOrder(ctx context.Context, id string, req gateway.Request) (Order, error) {
	var order Order
	_, err := c.cache.Mutate(ctx, func(ctx context.Context) error {
		env, err := gateway.Call[Order](ctx, c.gateway, req)
		order = env.Data
		return err
	}, nil, []cache.Tag{cache.IDTag(TagOrders, id)})

	return order, err
}

// DownloadInvoice writes the PDF invoice of an order to w and returns the
// number of bytes written.
func (c *Client) DownloadInvoice(ctx context.Context, id string, w io.Writer) (int64, error) {
	body, err := c.invoice(ctx, id, "/invoice", "application/pdf")
	if err != nil {
		return 0, err
	}

	n, err := w.Write(body)
	if err != nil {
		return int64(n), fmt.Errorf("failed to write invoice: %w", err)
	}
	return int64(n), nil
}

// InvoiceHTML returns the HTML rendering of an order's invoice.
func (c *Client) InvoiceHTML(ctx context.Context, id string) (string, error) {
	body, err := c.invoice(ctx, id, "/invoice/html", "text/html")
	return string(body), err
}

func (c *Client) invoice(ctx context.Context, id, suffix, accept string) ([]byte, error) {
	if err := c.check(orderRef{ID: id}); err != nil {
		return nil, err
	}

	resp, err := c.gateway.Send(ctx, gateway.Request{
		Path:   "/orders/" + url.PathEscape(id) + suffix,
		Header: http.Header{"Accept": []string{accept}},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func fetchData[T any](ctx context.Context, g gateway.Sender, path string) (T, error) {
	env, err := gateway.Call[T](ctx, g, gateway.Request{Path: path})
	return env.Data, err
}

func fetchPage[T any](ctx context.Context, g gateway.Sender, path string, params PageParams) (Page[T], error) {
	env, err := gateway.Call[[]T](ctx, g, gateway.Request{
		Path: path,
		Query: url.Values{
			"page":  []string{strconv.Itoa(params.Page)},
			"limit": []string{strconv.Itoa(params.Limit)},
		},
	})
	if err != nil {
		return Page[T]{}, err
	}

	page := Page[T]{
		Items: env.Data,
		Page:  params.Page,
		Limit: params.Limit,
		Total: len(env.Data),
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	if env.Meta != nil {
		page.Page, page.Limit, page.Total = env.Meta.Page, env.Meta.Limit, env.Meta.Total
	}
	return page, nil
}
