package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"courierdesk/engine"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
	limiter  *ipLimiter
	log      *zap.Logger
}

// NewRouter builds the JSON API. The returned func stops background work.
func NewRouter(eng *engine.Engine, log *zap.Logger) (http.Handler, func()) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := eng.AppConfig()

	hub := NewEventHub(log.Named("sse"))
	hub.Start()
	hub.SetupEngineListeners(eng)

	limiter := newIPLimiter(cfg.Web.QuoteRatePerMinute, cfg.Web.QuoteBurst, log)
	limiter.start()

	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(cfg.Web, log),
		eventHub: hub,
		limiter:  limiter,
		log:      log,
	}

	h.ensureDefaultAdmin(eng.DB(), cfg.Admin)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.Web.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(h.withCaller)

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Get("/health", h.apiHealth)
		r.Post("/auth/register", h.apiRegister)
		r.Post("/auth/login", h.apiLogin)
		r.Post("/auth/logout", h.apiLogout)
		r.With(limiter.middleware).Post("/quote", h.apiQuote)

		// Signed in
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/auth/me", h.apiMe)
			r.Put("/auth/me", h.apiUpdateMe)

			r.Get("/pricing", h.apiGetPricing)
			r.Put("/pricing", h.apiPutPricing)

			r.Post("/bookings", h.apiCreateBooking)
			r.Get("/bookings", h.apiListBookings)
			r.Get("/bookings/export.csv", h.apiExportBookings)
			r.Post("/bookings/import", h.apiImportBookings)
			r.Get("/bookings/{id}", h.apiGetBooking)
			r.Put("/bookings/{id}", h.apiEditBooking)
			r.Delete("/bookings/{id}", h.apiDeleteBooking)
			r.Get("/bookings/{id}/history", h.apiBookingHistory)
			r.Post("/bookings/{id}/confirm", h.apiConfirmBooking)
			r.Post("/bookings/{id}/outsource", h.apiOutsourceBooking)
			r.Post("/bookings/{id}/decline", h.apiDeclineBooking)
			r.Post("/bookings/{id}/complete", h.apiCompleteBooking)
			r.Post("/bookings/{id}/cancel", h.apiCancelBooking)

			r.Get("/customers", h.apiListCustomers)
			r.Post("/workers", h.apiCreateWorker)
			r.Put("/workers/{id}/permissions", h.apiSetWorkerPermissions)
			r.Get("/audit", h.apiAuditLog)
		})
	})

	r.With(h.requireAuth).Get("/events", hub.SSEHandler)

	stop := func() {
		hub.Stop()
		limiter.stop()
	}
	return r, stop
}
