package storefront

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/storefront/storefront-sync/internal/cache"
	"github.com/storefront/storefront-sync/internal/gateway"
	"github.com/storefront/storefront-sync/internal/session"
)

// Cache tag types provided by queries and invalidated by mutations.
const (
	TagCart       = "Cart"
	TagOrders     = "Orders"
	TagProducts   = "Products"
	TagMyProducts = "MyProducts"
)

// Gateway sends API requests on behalf of the current session.
type Gateway interface {
	gateway.Sender
	Login(ctx context.Context, req gateway.Request) (session.User, error)
	Logout(ctx context.Context) error
}

// Client exposes the storefront API. Reads are served through the cache;
// writes go through cache mutations so dependent reads are invalidated, and
// cart writes are applied optimistically.
type Client struct {
	gateway  Gateway
	cache    *cache.Cache
	validate *validator.Validate
}

func NewClient(gw Gateway, c *cache.Cache) *Client {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	return &Client{
		gateway:  gw,
		cache:    c,
		validate: v,
	}
}

// Cache returns the cache backing the client.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// InputError reports arguments rejected before any request was sent.
type InputError struct {
	Problems []string
}

func (e *InputError) Error() string {
	return "invalid input: " + strings.Join(e.Problems, "; ")
}

func (c *Client) check(v any) error {
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	problems := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		problems = append(problems, describe(fe))
	}
	return &InputError{Problems: problems}
}

func describe(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be an email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s", field, e.Param())
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("%s must be %s %s", field, e.Tag(), e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}

// jsonFieldName reports fields by the name the API knows them by.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
