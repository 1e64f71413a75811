package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/nimeshabuddhika/shopsphere-orders/pkg"
	"github.com/nimeshabuddhika/shopsphere-orders/services/order-api/app"
	"go.uber.org/zap"
)

func main() {
	pkg.InitLogger("order-api")
	logger := pkg.Logger

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	srv, cleanup, err := app.NewApp(ctx, logger)
	if err != nil {
		logger.Fatal("failed to build order-api", zap.Error(err))
	}

	go func() {
		logger.Info("Order API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Handle shutdown signals (SIGINT, SIGTERM) for a K8s pod termination grace period
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	// In-flight checkouts are done; drain notifications, flush events, close pools.
	cleanup()
	stop()

	_ = logger.Sync()
}
