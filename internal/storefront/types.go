package storefront

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Product is a catalogue item.
type Product struct {
	ID            string   `json:"_id"`
	UserID        string   `json:"userId"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discountPrice,omitempty"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags"`
	Images        []string `json:"images"`
	Stock         int      `json:"stock"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
}

// CartItem is one line of the cart.
type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Cart is the caller's cart.
type Cart struct {
	UserID    string     `json:"userId"`
	Items     []CartItem `json:"items"`
	CreatedAt string     `json:"createdAt,omitempty"`
	UpdatedAt string     `json:"updatedAt,omitempty"`
}

// Quantity returns the quantity of productID in the cart.
func (c Cart) Quantity(productID string) int {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}

// Total prices the cart using prices, keyed by product ID. Items without a
// price are skipped.
func (c Cart) Total(prices map[string]float64) float64 {
	var total float64
	for _, item := range c.Items {
		total += prices[item.ProductID] * float64(item.Quantity)
	}
	return total
}

// clone returns a copy that shares nothing with c.
func (c Cart) clone() Cart {
	c.Items = slices.Clone(c.Items)
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	return c
}

// OrderProduct is the product summary embedded in an order line.
type OrderProduct struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discountPrice,omitempty"`
	Images        []string `json:"images"`
}

// OrderItem is one line of an order. Product is only populated when the API
// expands the reference; ProductID carries the raw identifier otherwise.
type OrderItem struct {
	ID        string        `json:"_id,omitempty"`
	ProductID string        `json:"productId"`
	Product   *OrderProduct `json:"product,omitempty"`
	Quantity  int           `json:"quantity"`
}

// UnmarshalJSON accepts productId as either an identifier or an expanded
// product.
func (i *OrderItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string          `json:"_id"`
		ProductID json.RawMessage `json:"productId"`
		Quantity  int             `json:"quantity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*i = OrderItem{ID: raw.ID, Quantity: raw.Quantity}

	if expanded(raw.ProductID) {
		var p OrderProduct
		if err := json.Unmarshal(raw.ProductID, &p); err != nil {
			return err
		}
		i.Product = &p
		i.ProductID = p.ID
		return nil
	}

	return unmarshalOptional(raw.ProductID, &i.ProductID)
}

// OrderCustomer is the customer summary embedded in an order.
type OrderCustomer struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Order is a placed order.
type Order struct {
	ID              string         `json:"_id"`
	OrderID         string         `json:"orderId,omitempty"`
	Customer        *OrderCustomer `json:"customer,omitempty"`
	Items           []OrderItem    `json:"items"`
	TotalAmount     float64        `json:"totalAmount"`
	FinalAmount     *float64       `json:"finalAmount,omitempty"`
	PaymentStatus   string         `json:"paymentStatus"`
	PaymentMethod   string         `json:"paymentMethod"`
	OrderStatus     string         `json:"orderStatus"`
	StripeSessionID string         `json:"stripeSessionId"`
	CreatedAt       string         `json:"createdAt,omitempty"`
	UpdatedAt       string         `json:"updatedAt,omitempty"`
}

// UnmarshalJSON accepts userId as either an identifier or an expanded
// customer.
func (o *Order) UnmarshalJSON(data []byte) error {
	type plain Order
	var raw struct {
		plain
		UserID json.RawMessage `json:"userId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*o = Order(raw.plain)

	if expanded(raw.UserID) {
		var c OrderCustomer
		if err := json.Unmarshal(raw.UserID, &c); err != nil {
			return err
		}
		o.Customer = &c
		return nil
	}

	var id string
	if err := unmarshalOptional(raw.UserID, &id); err != nil {
		return err
	}
	if id != "" {
		o.Customer = &OrderCustomer{ID: id}
	}
	return nil
}

func expanded(raw json.RawMessage) bool {
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{"))
}

func unmarshalOptional(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// CheckoutSession is the payment session created for a new order.
type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	OrderID   string `json:"orderId"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// PageParams selects a page. Zero values take the endpoint's defaults.
type PageParams struct {
	Page  int `validate:"gte=0"`
	Limit int `validate:"gte=0,lte=100"`
}

func (p PageParams) withDefaults(limit int) PageParams {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = limit
	}
	return p
}
