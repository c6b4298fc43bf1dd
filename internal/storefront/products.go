package storefront

import (
	"context"
	"net/http"
	"net/url"

	"github.com/storefront/storefront-sync/internal/cache"
	"github.com/storefront/storefront-sync/internal/gateway"
)

// NewProduct describes a product to list.
type NewProduct struct {
	Name          string   `json:"name" validate:"required"`
	Description   string   `json:"description,omitempty"`
	Price         float64  `json:"price" validate:"gt=0"`
	DiscountPrice *float64 `json:"discountPrice,omitempty" validate:"omitempty,gte=0"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Images        []string `json:"images,omitempty" validate:"omitempty,dive,url"`
	Stock         int      `json:"stock" validate:"gte=0"`
}

// ProductChanges updates the fields that are set.
type ProductChanges struct {
	Name          *string  `json:"name,omitempty" validate:"omitempty,min=1"`
	Description   *string  `json:"description,omitempty"`
	Price         *float64 `json:"price,omitempty" validate:"omitempty,gt=0"`
	DiscountPrice *float64 `json:"discountPrice,omitempty" validate:"omitempty,gte=0"`
	Category      *string  `json:"category,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Images        []string `json:"images,omitempty" validate:"omitempty,dive,url"`
	Stock         *int     `json:"stock,omitempty" validate:"omitempty,gte=0"`
}

type productID struct {
	ID string `json:"id" validate:"required"`
}

// CreateProduct lists a new product owned by the caller.
func (c *Client) CreateProduct(ctx context.Context, p NewProduct) (Product, error) {
	if err := c.check(p); err != nil {
		return Product{}, err
	}

	return c.changeProduct(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/products",
		Body:   p,
	}, cache.TypeTag(TagProducts), cache.TypeTag(TagMyProducts))
}

// Products lists the catalogue, twenty per page by default.
func (c *Client) Products(ctx context.Context, params PageParams) (Page[Product], error) {
	return c.productPage(ctx, "products", "/products", params, 20, TagProducts)
}

// MyProducts lists the products owned by the caller, ten per page by default.
func (c *Client) MyProducts(ctx context.Context, params PageParams) (Page[Product], error) {
	return c.productPage(ctx, "my-products", "/products/my-products", params, 10, TagMyProducts)
}

func (c *Client) productPage(ctx context.Context, kind, path string, params PageParams, limit int, tag string) (Page[Product], error) {
	if err := c.check(params); err != nil {
		return Page[Product]{}, err
	}
	params = params.withDefaults(limit)

	fp := cache.Key(kind, params.Page, params.Limit)
	return cache.Query(ctx, c.cache, fp, func(ctx context.Context) (Page[Product], error) {
		return fetchPage[Product](ctx, c.gateway, path, params)
	}, cache.TypeTag(tag))
}

// Product returns one product.
func (c *Client) Product(ctx context.Context, id string) (Product, error) {
	if err := c.check(productID{ID: id}); err != nil {
		return Product{}, err
	}

	return cache.Query(ctx, c.cache, ProductKey(id), func(ctx context.Context) (Product, error) {
		return fetchData[Product](ctx, c.gateway, "/products/"+url.PathEscape(id))
	}, cache.IDTag(TagProducts, id))
}

// ProductKey is the cache fingerprint of one product.
func ProductKey(id string) cache.Fingerprint {
	return cache.Key("product", id)
}

// UpdateProduct applies changes to a product.
func (c *Client) UpdateProduct(ctx context.Context, id string, changes ProductChanges) (Product, error) {
	if err := c.check(productID{ID: id}); err != nil {
		return Product{}, err
	}
	if err := c.check(changes); err != nil {
		return Product{}, err
	}

	return c.changeProduct(ctx, gateway.Request{
		Method: http.MethodPut,
		Path:   "/products/" + url.PathEscape(id),
		Body:   changes,
	}, cache.IDTag(TagProducts, id), cache.TypeTag(TagMyProducts))
}

// DeleteProduct removes a product.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	if err := c.check(productID{ID: id}); err != nil {
		return err
	}

	_, err := c.changeProduct(ctx, gateway.Request{
		Method: http.MethodDelete,
		Path:   "/products/" + url.PathEscape(id),
	}, cache.TypeTag(TagProducts), cache.TypeTag(TagMyProducts))
	return err
}

func (c *Client) changeProduct(ctx context.Context, req gateway.Request, invalidate ...cache.Tag) (Product, error) {
	var product Product
	_, err := c.cache.Mutate(ctx, func(ctx context.Context) error {
		env, err := gateway.Call[Product](ctx, c.gateway, req)
		product = env.Data
		return err
	}, nil, invalidate)

	return product, err
}
