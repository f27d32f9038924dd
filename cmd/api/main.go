package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/warrantyops/internal/api"
	"github.com/punchamoorthee/warrantyops/internal/clock"
	"github.com/punchamoorthee/warrantyops/internal/config"
	"github.com/punchamoorthee/warrantyops/internal/service"
	"github.com/punchamoorthee/warrantyops/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewPostgres(ctx, cfg.DBSource)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// Initialize layers.
	ck := clock.NewUnixClock()
	authz := service.NewAuthorizer(cfg.AdminSubject)
	warranties := service.NewWarrantyService(st, ck, authz)
	claims := service.NewClaimService(st, ck, authz)
	insurance := service.NewInsuranceService(st, ck, authz, cfg.PoolAccount)
	accounts := service.NewAccountService(st, ck, authz)
	handler := api.NewHandler(warranties, claims, insurance, accounts, logger)

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "warrantyops_pool_balance",
		Help: "Current insurance pool balance",
	}, func() float64 {
		balance, err := insurance.PoolBalance(context.Background())
		if err != nil {
			return 0
		}
		return float64(balance)
	})

	// Router.
	r := mux.NewRouter()
	r.Use(api.RequestID)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(api.RequireAuth([]byte(cfg.JWTSecret), logger))
	handler.Register(apiV1)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
