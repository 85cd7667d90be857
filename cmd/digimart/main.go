package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iurnickita/digimart/internal/assets"
	"github.com/iurnickita/digimart/internal/auth"
	"github.com/iurnickita/digimart/internal/config"
	"github.com/iurnickita/digimart/internal/handler"
	"github.com/iurnickita/digimart/internal/issuer"
	"github.com/iurnickita/digimart/internal/logger"
	"github.com/iurnickita/digimart/internal/ratelimit"
	"github.com/iurnickita/digimart/internal/service"
	"github.com/iurnickita/digimart/internal/service/paymentclient"
	"github.com/iurnickita/digimart/internal/store"
	"github.com/iurnickita/digimart/internal/sweeper"
	"github.com/iurnickita/digimart/internal/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	storage, err := assets.NewStorage(ctx, cfg.Assets)
	if err != nil {
		return err
	}

	tokenizer, err := token.NewTokenizer(cfg.Token)
	if err != nil {
		return err
	}
	auth := auth.NewAuth(tokenizer)

	issuer := issuer.NewIssuer(cfg.Issuer, store)
	service, err := service.NewService(cfg.Service, store, issuer, zaplog)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimit)
	defer limiter.Close()

	if cfg.Handler.WebhookSecret == "" {
		zaplog.Warn("webhook secret is empty, payment webhooks will be rejected")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Serve(ctx, cfg.Handler, auth, service, storage, limiter, zaplog)
	})
	g.Go(func() error {
		var payments sweeper.PaymentChecker
		if cfg.Service.PaymentProviderAddr != "" {
			payments = paymentclient.NewPaymentClient(cfg.Service.PaymentProviderAddr)
		}
		return sweeper.NewSweeper(cfg.Sweeper, store, payments, zaplog).Run(ctx)
	})

	if err := g.Wait(); err != nil {
		zaplog.Error("digimart stopped", zap.Error(err))
		return err
	}
	return nil
}
