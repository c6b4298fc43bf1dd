package storefront

import (
	"context"
	"net/http"
	"net/url"
	"slices"

	"github.com/storefront/storefront-sync/internal/cache"
	"github.com/storefront/storefront-sync/internal/gateway"
)

var cartKey = cache.Key("cart")

// CartLine adds or sets the quantity of one product.
type CartLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type productRef struct {
	ProductID string `json:"productId" validate:"required"`
}

// CartKey is the cache fingerprint of the cart.
func CartKey() cache.Fingerprint {
	return cartKey
}

// Cart returns the caller's cart.
func (c *Client) Cart(ctx context.Context) (Cart, error) {
	return cache.Query(ctx, c.cache, cartKey, c.fetchCart, cache.TypeTag(TagCart))
}

func (c *Client) fetchCart(ctx context.Context) (Cart, error) {
	env, err := gateway.Call[Cart](ctx, c.gateway, gateway.Request{Path: "/cart"})
	if err != nil {
		return Cart{}, err
	}
	return env.Data.clone(), nil
}

// AddToCart adds quantity of a product, incrementing an existing line or
// appending a new one. The cached cart shows the change until the API
// answers; it is restored if the API rejects the change.
func (c *Client) AddToCart(ctx context.Context, line CartLine) (CartItem, error) {
	if err := c.check(line); err != nil {
		return CartItem{}, err
	}

	patch := cache.Update(cartKey, func(current Cart) (Cart, error) {
		next := current.clone()
		for i := range next.Items {
			if next.Items[i].ProductID == line.ProductID {
				next.Items[i].Quantity += line.Quantity
				return next, nil
			}
		}
		next.Items = append(next.Items, CartItem{ProductID: line.ProductID, Quantity: line.Quantity})
		return next, nil
	})

	var added CartItem
	err := c.mutateCart(ctx, patch, func(ctx context.Context) error {
		env, err := gateway.Call[CartItem](ctx, c.gateway, gateway.Request{
			Method: http.MethodPost,
			Path:   "/cart/add",
			Body:   line,
		})
		added = env.Data
		return err
	})
	return added, err
}

// UpdateCartItem sets the quantity of a product already in the cart.
func (c *Client) UpdateCartItem(ctx context.Context, line CartLine) (CartItem, error) {
	if err := c.check(line); err != nil {
		return CartItem{}, err
	}

	patch := cache.Update(cartKey, func(current Cart) (Cart, error) {
		next := current.clone()
		for i := range next.Items {
			if next.Items[i].ProductID == line.ProductID {
				next.Items[i].Quantity = line.Quantity
			}
		}
		return next, nil
	})

	var updated CartItem
	err := c.mutateCart(ctx, patch, func(ctx context.Context) error {
		env, err := gateway.Call[CartItem](ctx, c.gateway, gateway.Request{
			Method: http.MethodPatch,
			Path:   "/cart/" + url.PathEscape(line.ProductID),
			Body:   map[string]int{"quantity": line.Quantity},
		})
		updated = env.Data
		return err
	})
	return updated, err
}

// RemoveFromCart removes a product's line from the cart.
func (c *Client) RemoveFromCart(ctx context.Context, productID string) (Cart, error) {
	if err := c.check(productRef{ProductID: productID}); err != nil {
		return Cart{}, err
	}

	patch := cache.Update(cartKey, func(current Cart) (Cart, error) {
		next := current.clone()
		next.Items = slices.DeleteFunc(next.Items, func(item CartItem) bool {
			return item.ProductID == productID
		})
		return next, nil
	})

	var cart Cart
	err := c.mutateCart(ctx, patch, func(ctx context.Context) error {
		env, err := gateway.Call[Cart](ctx, c.gateway, gateway.Request{
			Method: http.MethodDelete,
			Path:   "/cart/" + url.PathEscape(productID),
		})
		cart = env.Data
		return err
	})
	return cart, err
}

// ClearCart empties the cart.
func (c *Client) ClearCart(ctx context.Context) (Cart, error) {
	patch := cache.Update(cartKey, func(current Cart) (Cart, error) {
		next := current.clone()
		next.Items = []CartItem{}
		return next, nil
	})

	var cart Cart
	err := c.mutateCart(ctx, patch, func(ctx context.Context) error {
		env, err := gateway.Call[Cart](ctx, c.gateway, gateway.Request{
			Method: http.MethodDelete,
			Path:   "/cart",
		})
		cart = env.Data
		return err
	})
	return cart, err
}

func (c *Client) mutateCart(ctx context.Context, patch cache.Patch, op func(context.Context) error) error {
	_, err := c.cache.Mutate(ctx, op, []cache.Patch{patch}, []cache.Tag{cache.TypeTag(TagCart)})
	return err
}
