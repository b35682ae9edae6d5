package www

import (
	"crypto/rand"
	"embed"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"storedesk/engine"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type Handlers struct {
	engine    *engine.Engine
	sessions  *sessions.CookieStore
	pages     map[string]*pageTemplate
	eventHub  *eventHub
	keepAlive time.Duration
}

// NewRouter builds the HTTP handler. The returned func closes open SSE streams.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	cfg := eng.AppConfig()

	secret := []byte(cfg.Web.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		rand.Read(secret)
		log.Printf("www: web.session_secret not set, sessions will not survive a restart")
	}
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((12 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.Web.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}

	h := &Handlers{
		engine:    eng,
		sessions:  store,
		pages:     mustParsePages(),
		eventHub:  newEventHub(),
		keepAlive: cfg.Web.SSEKeepAlive,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(eng.Debug()))

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Get("/healthz", h.handleHealth)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.countPageViews)
			r.Get("/", h.handleDashboard)
			r.Get("/orders", h.handleOrders)
			r.Get("/orders/{id}", h.handleOrderDetail)
			r.Get("/products", h.handleProducts)
			r.Get("/customers", h.handleCustomers)
			r.Get("/analytics", h.handleAnalytics)
			r.Get("/inventory", h.handleInventory)
			r.Get("/settings", h.handleSettings)
		})

		r.Get("/dashboard/stream", h.handleDashboardStream)
		r.Get("/orders/export.xlsx", h.handleOrdersExport)
		r.Post("/orders/{id}/status", h.handleOrderStatus)
		r.Post("/products", h.handleProductCreate)
		r.Post("/products/{id}", h.handleProductUpdate)
		r.Post("/products/{id}/delete", h.handleProductDelete)
		r.Get("/analytics/export.xlsx", h.handleAnalyticsExport)
		r.Post("/inventory/adjust", h.handleInventoryAdjust)
		r.Post("/settings/profile", h.handleSettingsProfile)
		r.Post("/settings/avatar", h.handleSettingsAvatar)
		r.Post("/settings/threshold", h.handleSettingsThreshold)
		r.Post("/settings/reconnect", h.handleSettingsReconnect)

		r.Route("/api", func(r chi.Router) {
			r.Get("/orders", h.apiListOrders)
			r.Get("/orders/{id}", h.apiGetOrder)
			r.Get("/products", h.apiListProducts)
			r.Get("/customers", h.apiListCustomers)
			r.Get("/inventory/low-stock", h.apiLowStock)
			r.Get("/analytics/daily", h.apiDailyStats)
			r.Get("/dashboard/stats", h.apiDashboardStats)
			r.Post("/rpc/{name}", h.apiCallRPC)
			r.Get("/realtime", h.apiRealtime)
		})
	})

	return r, h.eventHub.CloseAll
}

// requestLogger logs failed requests, or every request in debug mode.
func requestLogger(debug bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			if !debug && ww.Status() < 400 {
				return
			}
			log.Printf("www: %s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
		})
	}
}
