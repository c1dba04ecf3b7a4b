package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forkline-app/forkline-backend/api/controllers"
	"github.com/forkline-app/forkline-backend/api/middleware"
	"github.com/forkline-app/forkline-backend/internal/addresses"
	"github.com/forkline-app/forkline-backend/internal/cart"
	"github.com/forkline-app/forkline-backend/internal/catalog"
	"github.com/forkline-app/forkline-backend/internal/ledger"
	"github.com/forkline-app/forkline-backend/internal/orders"
	"github.com/forkline-app/forkline-backend/internal/riders"
	"github.com/forkline-app/forkline-backend/internal/users"
	"github.com/forkline-app/forkline-backend/internal/vendors"
	"github.com/forkline-app/forkline-backend/internal/wallet"
	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/logger"
	pkgredis "github.com/forkline-app/forkline-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config    *config.Config
	Log       *logger.Logger
	DB        controllers.Pinger
	Redis     *pkgredis.Client
	Users     users.Service
	Vendors   vendors.Service
	Catalog   catalog.Service
	Cart      cart.Service
	Orders    orders.Service
	Wallets   wallet.Service
	Ledger    ledger.Service
	Riders    riders.Service
	Addresses addresses.Service
	Registry  *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Log),
		middleware.RequestID(deps.Log),
		middleware.Logging(deps.Log),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.Log, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    pingerOrNil(deps.Redis),
		}))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	walletCtrl := controllers.WalletControllers{
		Wallets: deps.Wallets,
		Ledger:  deps.Ledger,
		Vendors: deps.Vendors,
		Riders:  deps.Riders,
		Log:     deps.Log,
	}

	var store pkgredis.IdempotencyStore
	if deps.Redis != nil {
		store = deps.Redis
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(deps.Config.API, deps.Log))

		// registration and login happen before an identity exists
		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(store, deps.Log))
			r.Post("/users/register", controllers.UserRegister(deps.Users, deps.Log))
			r.Post("/users/login", controllers.UserLogin(deps.Users, deps.Log))
		})

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.Identity(deps.Log),
				middleware.Idempotency(store, deps.Log),
			)

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", controllers.UserMe(deps.Users, deps.Log))
				r.Patch("/me", controllers.UserUpdateProfile(deps.Users, deps.Log))
				r.Post("/me/password", controllers.UserChangePassword(deps.Users, deps.Log))
				r.Delete("/me", controllers.UserDeactivate(deps.Users, deps.Log))
			})

			r.Route("/addresses", func(r chi.Router) {
				r.Post("/", controllers.AddressCreate(deps.Addresses, deps.Log))
				r.Get("/", controllers.AddressList(deps.Addresses, deps.Log))
				r.Post("/{addressID}/default", controllers.AddressSetDefault(deps.Addresses, deps.Log))
				r.Delete("/{addressID}", controllers.AddressDelete(deps.Addresses, deps.Log))
			})

			r.Route("/vendors", func(r chi.Router) {
				r.Post("/", controllers.VendorCreate(deps.Vendors, deps.Log))
				r.Get("/", controllers.VendorList(deps.Vendors, deps.Log))
				r.Get("/me", controllers.VendorMine(deps.Vendors, deps.Log))
				r.Get("/me/orders", controllers.OrdersForVendor(deps.Orders, deps.Vendors, deps.Log))
				r.Get("/{vendorID}", controllers.VendorGet(deps.Vendors, deps.Log))
				r.Patch("/{vendorID}", controllers.VendorUpdate(deps.Vendors, deps.Log))
				r.Post("/{vendorID}/open", controllers.VendorSetOpen(deps.Vendors, deps.Log))
				r.Post("/{vendorID}/commission", controllers.VendorSetCommission(deps.Vendors, deps.Log))
				r.Get("/{vendorID}/menu", controllers.MenuList(deps.Catalog, deps.Log))
			})

			r.Route("/menu-items", func(r chi.Router) {
				r.Post("/", controllers.MenuItemCreate(deps.Catalog, deps.Vendors, deps.Log))
				r.Get("/{itemID}", controllers.MenuItemGet(deps.Catalog, deps.Log))
				r.Patch("/{itemID}", controllers.MenuItemUpdate(deps.Catalog, deps.Vendors, deps.Log))
				r.Delete("/{itemID}", controllers.MenuItemDelete(deps.Catalog, deps.Vendors, deps.Log))
				r.Post("/{itemID}/availability", controllers.MenuItemSetAvailability(deps.Catalog, deps.Vendors, deps.Log))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartGet(deps.Cart, deps.Log))
				r.Post("/items", controllers.CartAddItem(deps.Cart, deps.Log))
				r.Patch("/items/{itemID}", controllers.CartUpdateItem(deps.Cart, deps.Log))
				r.Delete("/items/{itemID}", controllers.CartRemoveItem(deps.Cart, deps.Log))
				r.Delete("/", controllers.CartClear(deps.Cart, deps.Log))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.OrderPlace(deps.Orders, deps.Log))
				r.Get("/mine", controllers.OrdersMine(deps.Orders, deps.Log))
				r.Get("/{orderID}", controllers.OrderGet(deps.Orders, deps.Log))
				r.Post("/{orderID}/transition", controllers.OrderTransition(deps.Orders, deps.Log))
				r.Post("/{orderID}/cancel", controllers.OrderCancel(deps.Orders, deps.Log))
				r.Get("/{orderID}/tracking", controllers.OrderTracking(deps.Orders, deps.Log))
			})

			r.Route("/wallets", func(r chi.Router) {
				r.Get("/me", walletCtrl.Get())
				r.Post("/topup", walletCtrl.TopUp())
				r.Post("/withdraw", walletCtrl.Withdraw())
				r.Post("/transfer", walletCtrl.Transfer())
				r.Post("/pin", walletCtrl.SetPIN())
				r.Get("/ledger", walletCtrl.History())
				r.Get("/ledger/{entryID}", walletCtrl.Entry())
				r.Get("/reconcile", walletCtrl.Reconcile())
			})

			r.Route("/riders", func(r chi.Router) {
				r.Post("/", controllers.RiderRegister(deps.Riders, deps.Log))
				r.Get("/me", controllers.RiderMe(deps.Riders, deps.Log))
				r.Get("/me/orders", controllers.OrdersForRider(deps.Orders, deps.Riders, deps.Log))
				r.Post("/me/status", controllers.RiderSetStatus(deps.Riders, deps.Log))
				r.Post("/me/location", controllers.RiderReportLocation(deps.Riders, deps.Log))
				r.Get("/nearest", controllers.RidersNearest(deps.Riders, deps.Log))
			})
		})
	})

	return r
}

func pingerOrNil(client *pkgredis.Client) controllers.Pinger {
	if client == nil {
		return nil
	}
	return client
}
