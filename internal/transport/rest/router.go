package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/tutor-billing/internal/guardian"
	"github.com/frahmantamala/tutor-billing/internal/ledger"
	"github.com/frahmantamala/tutor-billing/internal/notification"
	"github.com/frahmantamala/tutor-billing/internal/paymentmethod"
	"github.com/frahmantamala/tutor-billing/internal/refund"
	"github.com/frahmantamala/tutor-billing/internal/subscription"
	"github.com/frahmantamala/tutor-billing/internal/transport/middleware"
	"github.com/frahmantamala/tutor-billing/internal/transport/swagger"
)

type Handlers struct {
	PaymentMethod *paymentmethod.Handler
	Guardian      *guardian.Handler
	Ledger        *ledger.Handler
	Subscription  *subscription.Handler
	Refund        *refund.Handler
	Notification  *notification.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, handlers Handlers, allowedOrigins string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		// Health check routes
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Processor settlement callback, authenticated by the gateway
		if handlers.Ledger != nil {
			r.Post("/billing/callback", handlers.Ledger.SettlementWebhook)
		}

		// Everything below acts on behalf of a gateway-attached identity
		r.Group(func(pr chi.Router) {
			pr.Use(middleware.Identity)

			if handlers.PaymentMethod != nil {
				pr.Route("/payment-methods", func(mr chi.Router) {
					mr.Post("/", handlers.PaymentMethod.AddMethod)
					mr.Get("/", handlers.PaymentMethod.ListMethods)
					mr.Get("/{id}", handlers.PaymentMethod.GetMethod)
					mr.Patch("/{id}/default", handlers.PaymentMethod.SetDefault)
					mr.Delete("/{id}", handlers.PaymentMethod.RemoveMethod)
				})
			}

			if handlers.Guardian != nil {
				pr.Route("/guardian/controls", func(gr chi.Router) {
					gr.Post("/", handlers.Guardian.EnableControl)
					gr.Get("/", handlers.Guardian.ListControls)
					gr.Get("/{id}", handlers.Guardian.GetControl)
					gr.Patch("/{id}/limits", handlers.Guardian.SetLimits)
					gr.Post("/{id}/students", handlers.Guardian.LinkStudent)
					gr.Delete("/{id}/students/{studentID}", handlers.Guardian.UnlinkStudent)
				})
			}

			if handlers.Ledger != nil {
				pr.Route("/transactions", func(tr chi.Router) {
					tr.Post("/", handlers.Ledger.RecordTransaction)
					tr.Get("/", handlers.Ledger.History)
					tr.Get("/{id}", handlers.Ledger.GetTransaction)
				})
			}

			if handlers.Subscription != nil {
				pr.Route("/plans", func(plr chi.Router) {
					plr.Get("/", handlers.Subscription.ListPlans)
					plr.Get("/{id}", handlers.Subscription.GetPlan)
					plr.Post("/", handlers.Subscription.CreatePlan)
					plr.Delete("/{id}", handlers.Subscription.DeactivatePlan)
				})
				pr.Route("/subscriptions", func(sr chi.Router) {
					sr.Post("/", handlers.Subscription.Subscribe)
					sr.Get("/", handlers.Subscription.ListSubscriptions)
					sr.Get("/{id}", handlers.Subscription.GetSubscription)
					sr.Post("/{id}/cancel", handlers.Subscription.Cancel)
					sr.Post("/{id}/reactivate", handlers.Subscription.Reactivate)
					sr.Post("/{id}/consume-credit", handlers.Subscription.ConsumeSessionCredit)
				})
			}

			if handlers.Refund != nil {
				pr.Route("/refunds", func(rr chi.Router) {
					rr.Post("/", handlers.Refund.RequestRefund)
					rr.Get("/", handlers.Refund.ListMyRefunds)
					rr.Get("/pending", handlers.Refund.ListPendingRefunds)
					rr.Get("/{id}", handlers.Refund.GetRefund)
					rr.Post("/{id}/decide", handlers.Refund.DecideRefund)
					rr.Post("/{id}/process", handlers.Refund.ProcessRefund)
					rr.Post("/{id}/cancel", handlers.Refund.CancelRefund)
				})
			}

			if handlers.Notification != nil {
				pr.Route("/notifications", func(nr chi.Router) {
					nr.Get("/", handlers.Notification.ListNotifications)
					nr.Get("/unread-count", handlers.Notification.UnreadCount)
					nr.Post("/{id}/read", handlers.Notification.MarkRead)
					nr.Post("/read-all", handlers.Notification.MarkAllRead)
				})
			}
		})
	})
}
