package logger

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iurnickita/digimart/internal/logger/config"
)

func TestNewZapLog(t *testing.T) {
	zl, err := NewZapLog(config.Config{LogLevel: "debug"})
	require.NoError(t, err)
	require.True(t, zl.Core().Enabled(zap.DebugLevel))

	_, err = NewZapLog(config.Config{LogLevel: "loud"})
	require.Error(t, err)
}

func TestRequestLogMdlw(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	var gotBody string
	h := RequestLogMdlw(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/purchases", strings.NewReader(`{"listing_id":"l-1"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	// тело запроса доступно хендлеру после логирования
	require.Equal(t, `{"listing_id":"l-1"}`, gotBody)
	require.Equal(t, http.StatusCreated, w.Code)

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, `{"listing_id":"l-1"}`, entries[0].ContextMap()["body"])
	require.Equal(t, int64(http.StatusCreated), entries[1].ContextMap()["code"])
	require.Equal(t, int64(len("created")), entries[1].ContextMap()["length"])
}
