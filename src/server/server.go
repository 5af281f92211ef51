package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/engine"
	"tradepilot/src/handler"
	"tradepilot/src/ledger"
	"tradepilot/src/repository"
)

// Routes bundles what the HTTP surface needs.
type Routes struct {
	Engine *engine.Engine
	Ledger *ledger.Ledger
	Orders *repository.OrderRepository
}

func StartServer(port string, routes Routes) {
	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/commands", handler.CommandHandler(routes.Engine))
		r.Post("/confirmations", handler.ConfirmationHandler(routes.Engine))
		r.Get("/orders", handler.SearchOrdersHandler(routes.Orders))
		r.Delete("/orders/{orderID}", handler.CancelOrderHandler(routes.Engine))
		r.Get("/portfolio", handler.PortfolioHandler(routes.Ledger))
	})

	// Graceful server
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
