package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/iurnickita/digimart/internal/assets"
	"github.com/iurnickita/digimart/internal/auth"
	"github.com/iurnickita/digimart/internal/handler/config"
	"github.com/iurnickita/digimart/internal/logger"
	"github.com/iurnickita/digimart/internal/service"
)

const (
	webhookSecretHeader = "X-Webhook-Secret"
	maxBodyBytes        = 1 << 20
	shutdownTimeout     = 10 * time.Second
)

type DownloadLimiter interface {
	AllowDownload(ctx context.Context, buyer string) (time.Duration, bool, error)
}

// Serve runs the HTTP server until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service,
	storage assets.Storage, limiter DownloadLimiter, zaplog *zap.Logger) error {
	h := newHandler(cfg, auth, service, storage, limiter, zaplog)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h.newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zaplog.Info("http server started", zap.String("addr", cfg.ServerAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	zaplog.Info("http server stopped")
	return nil
}

type handler struct {
	cfg     config.Config
	auth    auth.Auth
	service service.Service
	storage assets.Storage
	limiter DownloadLimiter
	zaplog  *zap.Logger
}

func newHandler(cfg config.Config, auth auth.Auth, service service.Service,
	storage assets.Storage, limiter DownloadLimiter, zaplog *zap.Logger) *handler {
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	return &handler{
		cfg:     cfg,
		auth:    auth,
		service: service,
		storage: storage,
		limiter: limiter,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogMdlw(h.zaplog))
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/health", h.Health)

	// вебхуки платежного провайдера
	r.Group(func(r chi.Router) {
		r.Use(h.webhookMdlw)
		r.Post("/api/payments/confirm", h.PostConfirm)
		r.Post("/api/payments/refund", h.PostRefund)
	})

	// покупатель
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Route("/api/purchases", func(r chi.Router) {
			r.Post("/", h.PostPurchase)
			r.Get("/", h.GetPurchases)
			r.Post("/{ref}/proof", h.PostProof)
			r.Get("/download/{token}", h.GetDownload)
		})
	})

	return r
}

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) webhookMdlw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get(webhookSecretHeader)
		if h.cfg.WebhookSecret == "" ||
			subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.WebhookSecret)) != 1 {
			http.Error(w, "bad webhook secret", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeJSON разбирает запрос покупателя: неизвестные поля - ошибка клиента.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// decodeWebhookJSON ignores fields it does not know: the provider owns the
// payload and may add to it at any time.
func decodeWebhookJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(responseJSON)
}

// writeServiceError translates reconciler errors into HTTP statuses.
func (h *handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrListingNotFound), errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrReferenceTaken), errors.Is(err, service.ErrPurchaseRefunded):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrRejected):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrContention):
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.zaplog.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
