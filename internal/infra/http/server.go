package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
	"github.com/ObraztsovOleg/consultant-bot/internal/usecase"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PaymentHandler is the reconciliation surface exposed to external providers.
type PaymentHandler interface {
	HandleSuccessfulPayment(ctx context.Context, n usecase.PaymentNotification) (usecase.PaymentResult, error)
	PreCheckout(ctx context.Context, invoiceToken string) usecase.PreCheckoutDecision
}

// Server is the ops endpoint: health, metrics and the provider webhooks.
type Server struct {
	addr     string
	checks   map[string]Pinger
	payments PaymentHandler
	auth     *WebhookAuth
	log      zerolog.Logger
	srv      *http.Server
}

// NewServer builds the server. The payment routes are mounted only when auth
// is non-nil.
func NewServer(addr string, checks map[string]Pinger, payments PaymentHandler, auth *WebhookAuth, logger *zerolog.Logger) *Server {
	s := &Server{
		addr:     addr,
		checks:   checks,
		payments: payments,
		auth:     auth,
		log:      logger.With().Str("component", "http").Logger(),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID, Recover(&s.log))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	if s.auth != nil && s.payments != nil {
		r.Route("/api/v1/payments", func(r chi.Router) {
			r.Use(RequestLog(&s.log), middleware.Timeout(10*time.Second), s.auth.Middleware)
			r.Post("/webhook", s.handleWebhook)
			r.Post("/pre-checkout", s.handlePreCheckout)
		})
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return ctx.Err()
	}
}

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := healthBody{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	code := http.StatusOK
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			body.Checks[name] = "down"
			body.Status = "degraded"
			code = http.StatusServiceUnavailable
			s.log.Warn().Err(err).Str("check", name).Msg("health check failed")
			continue
		}
		body.Checks[name] = "ok"
	}
	writeJSON(w, code, body)
}

type webhookRequest struct {
	InvoiceToken     string `json:"invoice_token"`
	UserID           int64  `json:"user_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	ProviderChargeID string `json:"provider_charge_id"`
}

type webhookResponse struct {
	Status   string `json:"status"`
	Repaired bool   `json:"repaired,omitempty"`
}

type preCheckoutRequest struct {
	InvoiceToken string `json:"invoice_token"`
}

type preCheckoutResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decode(w, r, &req); err != nil || req.InvoiceToken == "" {
		metrics.IncPaymentWebhook("rejected", "bad_request")
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}

	res, err := s.payments.HandleSuccessfulPayment(r.Context(), usecase.PaymentNotification{
		InvoiceToken:     req.InvoiceToken,
		UserID:           req.UserID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		ProviderChargeID: req.ProviderChargeID,
	})
	if err != nil {
		code := statusFor(err)
		metrics.IncPaymentWebhook("failed", domain.Kind(err))
		if code == http.StatusInternalServerError {
			s.log.Error().Err(err).Str("kind", domain.Kind(err)).Msg("webhook reconciliation failed")
		}
		writeJSON(w, code, errorBody{Error: domain.Kind(err)})
		return
	}
	metrics.IncPaymentWebhook("ok", string(res.Status))
	writeJSON(w, http.StatusOK, webhookResponse{Status: string(res.Status), Repaired: res.Repaired})
}

func (s *Server) handlePreCheckout(w http.ResponseWriter, r *http.Request) {
	var req preCheckoutRequest
	if err := decode(w, r, &req); err != nil || req.InvoiceToken == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}
	d := s.payments.PreCheckout(r.Context(), req.InvoiceToken)
	writeJSON(w, http.StatusOK, preCheckoutResponse{OK: d.OK, Reason: d.Reason})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
