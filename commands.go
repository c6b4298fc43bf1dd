package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/storefront/storefront-sync/internal/app"
	"github.com/storefront/storefront-sync/internal/config"
	"github.com/storefront/storefront-sync/internal/gateway"
	"github.com/storefront/storefront-sync/internal/storefront"
)

var errNotLoggedIn = errors.New("not logged in: run 'storefront login'")

// action runs with a freshly wired client that is released when it returns.
type action func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error

func withApp(fn action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(ctx)
		if err != nil {
			return fmt.Errorf("configuration load failed: %w", err)
		}

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("shutdown incomplete")
			}
		}()

		err = fn(ctx, cmd, a, args)
		if gateway.Kind(err) == gateway.KindSessionExpired {
			return fmt.Errorf("%w: run 'storefront login'", err)
		}
		return err
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "storefront",
		Short: "Command line client for the storefront API",
		Long: `storefront talks to the storefront REST API on behalf of a logged in user.

Configuration is read from the environment:
  STOREFRONT_API_BASE_URL   scheme and host of the API (required)
  STOREFRONT_SESSION_FILE   where the session is kept between commands

Results are written to stdout as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.Logger = log.Level(zerolog.DebugLevel)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests and cache activity to stderr")

	root.AddCommand(
		newLoginCommand(),
		newRegisterCommand(),
		newLogoutCommand(),
		newWhoamiCommand(),
		newProductsCommand(),
		newCartCommand(),
		newOrdersCommand(),
	)

	return root
}

func newLoginCommand() *cobra.Command {
	var creds storefront.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session for later commands",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			if creds.Password == "" {
				creds.Password = os.Getenv("STOREFRONT_PASSWORD")
			}

			user, err := a.Client.Login(ctx, creds)
			if err != nil {
				return err
			}
			return printJSON(cmd, user)
		}),
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "account password (default $STOREFRONT_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newRegisterCommand() *cobra.Command {
	var reg storefront.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			if reg.Password == "" {
				reg.Password = os.Getenv("STOREFRONT_PASSWORD")
			}

			user, err := a.Client.Register(ctx, reg)
			if err != nil {
				return err
			}
			return printJSON(cmd, user)
		}),
	}

	cmd.Flags().StringVar(&reg.Name, "name", "", "display name")
	cmd.Flags().StringVar(&reg.Username, "username", "", "username")
	cmd.Flags().StringVar(&reg.Email, "email", "", "account email")
	cmd.Flags().StringVar(&reg.Password, "password", "", "account password (default $STOREFRONT_PASSWORD)")

	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			if err := a.Client.Logout(ctx); err != nil {
				// the local session is gone either way
				log.Warn().Err(err).Msg("logout call failed")
			}
			return nil
		}),
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			current := a.Session.Current()
			if !current.Authenticated() {
				return errNotLoggedIn
			}

			out := struct {
				User      any    `json:"user"`
				ExpiresAt string `json:"expiresAt,omitempty"`
			}{User: current.User}
			if !current.ExpiresAt.IsZero() {
				out.ExpiresAt = current.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z")
			}
			return printJSON(cmd, out)
		}),
	}
}

func newProductsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Browse and manage products",
	}

	var (
		page  storefront.PageParams
		mine  bool
		input storefront.NewProduct
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			var (
				result storefront.Page[storefront.Product]
				err    error
			)
			if mine {
				result, err = a.Client.MyProducts(ctx, page)
			} else {
				result, err = a.Client.Products(ctx, page)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		}),
	}
	pageFlags(list, &page)
	list.Flags().BoolVar(&mine, "mine", false, "only products owned by the logged in user")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			p, err := a.Client.Product(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		}),
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "List a new product",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			p, err := a.Client.CreateProduct(ctx, input)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		}),
	}
	create.Flags().StringVar(&input.Name, "name", "", "product name")
	create.Flags().StringVar(&input.Description, "description", "", "product description")
	create.Flags().StringVar(&input.Category, "category", "", "product category")
	create.Flags().Float64Var(&input.Price, "price", 0, "unit price")
	create.Flags().IntVar(&input.Stock, "stock", 0, "units in stock")
	create.Flags().StringSliceVar(&input.Tags, "tag", nil, "product tag (repeatable)")
	create.Flags().StringSliceVar(&input.Images, "image", nil, "image URL (repeatable)")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a product",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			return a.Client.DeleteProduct(ctx, args[0])
		}),
	}

	cmd.AddCommand(list, get, create, del)
	return cmd
}

func newCartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and change the cart",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			cart, err := a.Client.Cart(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, cart)
		}),
	}

	var quantity int
	add := &cobra.Command{
		Use:   "add PRODUCT_ID",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			item, err := a.Client.AddToCart(ctx, storefront.CartLine{ProductID: args[0], Quantity: quantity})
			if err != nil {
				return err
			}
			return printJSON(cmd, item)
		}),
	}
	add.Flags().IntVarP(&quantity, "quantity", "q", 1, "units to add")

	set := &cobra.Command{
		Use:   "set PRODUCT_ID QUANTITY",
		Short: "Set the quantity of a product in the cart",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be a number: %w", err)
			}

			item, err := a.Client.UpdateCartItem(ctx, storefront.CartLine{ProductID: args[0], Quantity: n})
			if err != nil {
				return err
			}
			return printJSON(cmd, item)
		}),
	}

	remove := &cobra.Command{
		Use:   "remove PRODUCT_ID",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			cart, err := a.Client.RemoveFromCart(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, cart)
		}),
	}

	empty := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			cart, err := a.Client.ClearCart(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, cart)
		}),
	}

	cmd.AddCommand(show, add, set, remove, empty)
	return cmd
}

func newOrdersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Place and track orders",
	}

	var page storefront.PageParams
	list := &cobra.Command{
		Use:   "list",
		Short: "List your orders",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			result, err := a.Client.MyOrders(ctx, page)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		}),
	}
	pageFlags(list, &page)

	var bySession bool
	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			var (
				order storefront.Order
				err   error
			)
			if bySession {
				order, err = a.Client.OrderBySession(ctx, args[0])
			} else {
				order, err = a.Client.Order(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, order)
		}),
	}
	get.Flags().BoolVar(&bySession, "session", false, "ID is a checkout session ID")

	checkout := &cobra.Command{
		Use:   "checkout PRODUCT_ID[:QUANTITY]...",
		Short: "Order products and start payment",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			lines, err := parseLines(args)
			if err != nil {
				return err
			}

			created, err := a.Client.CreateCheckoutSession(ctx, storefront.Checkout{Items: lines})
			if err != nil {
				return err
			}
			return printJSON(cmd, created)
		}),
	}

	var status string
	update := &cobra.Command{
		Use:   "status ID",
		Short: "Change the status of an order",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			order, err := a.Client.UpdateOrderStatus(ctx, args[0], status)
			if err != nil {
				return err
			}
			return printJSON(cmd, order)
		}),
	}
	update.Flags().StringVar(&status, "to", "", "new status")
	_ = update.MarkFlagRequired("to")

	cancel := &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an order",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			order, err := a.Client.CancelOrder(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, order)
		}),
	}

	var (
		output string
		html   bool
	)
	invoice := &cobra.Command{
		Use:   "invoice ID",
		Short: "Download the invoice of an order",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			id := args[0]

			if html {
				body, err := a.Client.InvoiceHTML(ctx, id)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), body)
				return err
			}

			path := output
			if path == "" {
				path = "invoice-" + id + ".pdf"
			}

			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("could not create invoice file: %w", err)
			}

			n, err := a.Client.DownloadInvoice(ctx, id, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(path)
				return err
			}

			return printJSON(cmd, map[string]any{"file": path, "bytes": n})
		}),
	}
	invoice.Flags().StringVarP(&output, "output", "o", "", "file to write (default invoice-ID.pdf)")
	invoice.Flags().BoolVar(&html, "html", false, "print the HTML invoice to stdout instead")

	cmd.AddCommand(list, get, checkout, update, cancel, invoice)
	return cmd
}

func pageFlags(cmd *cobra.Command, page *storefront.PageParams) {
	cmd.Flags().IntVar(&page.Page, "page", 0, "page number (default 1)")
	cmd.Flags().IntVar(&page.Limit, "limit", 0, "results per page")
}

// parseLines reads PRODUCT_ID[:QUANTITY] arguments; the quantity defaults
// to one.
func parseLines(args []string) ([]storefront.CartLine, error) {
	lines := make([]storefront.CartLine, 0, len(args))
	for _, arg := range args {
		id, qty, found := strings.Cut(arg, ":")

		n := 1
		if found {
			var err error
			n, err = strconv.Atoi(qty)
			if err != nil {
				return nil, fmt.Errorf("invalid quantity in %q: %w", arg, err)
			}
		}

		lines = append(lines, storefront.CartLine{ProductID: id, Quantity: n})
	}
	return lines, nil
}
