package logger

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/iurnickita/digimart/internal/logger/config"
)

// тело запроса логируется не целиком
const maxLoggedBody = 1024

func NewZapLog(cfg config.Config) (*zap.Logger, error) {
	// преобразуем текстовый уровень логирования в zap.AtomicLevel
	lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl
	if cfg.Development {
		zapcfg = zap.NewDevelopmentConfig()
		zapcfg.Level = lvl
	}
	return zapcfg.Build()
}

// RequestLogMdlw logs every incoming HTTP request and its response.
// Response bodies are not logged: downloads stream files through here.
func RequestLogMdlw(zaplog *zap.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body string
			if r.Body != nil && isTextual(r.Header.Get("Content-Type")) {
				bodyBytes, _ := io.ReadAll(r.Body)
				r.Body.Close() //  must close
				r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
				if len(bodyBytes) > maxLoggedBody {
					bodyBytes = bodyBytes[:maxLoggedBody]
				}
				body = string(bodyBytes)
			}

			zaplog.Info("got incoming HTTP request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
				zap.String("body", body),
			)

			wl := NewResponseWriterLogger(w)

			handlerStart := time.Now()
			h.ServeHTTP(wl, r)
			handlerDuration := time.Since(handlerStart)

			zaplog.Info("send HTTP response",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Int("code", wl.statusCode),
				zap.Int("length", wl.length),
				zap.Duration("duration", handlerDuration),
			)
		})
	}
}

func isTextual(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json") || strings.HasPrefix(contentType, "text/")
}

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
	length     int
}

func NewResponseWriterLogger(w http.ResponseWriter) *responseWriterLogger {
	return &responseWriterLogger{w, http.StatusOK, 0}
}

func (wl *responseWriterLogger) WriteHeader(code int) {
	wl.statusCode = code
	wl.ResponseWriter.WriteHeader(code)
}

func (wl *responseWriterLogger) Write(b []byte) (n int, err error) {
	n, err = wl.ResponseWriter.Write(b)
	wl.length += n
	return
}

func (wl *responseWriterLogger) Unwrap() http.ResponseWriter {
	return wl.ResponseWriter
}
