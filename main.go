package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/wealthfolio/backend/src/config"
	"github.com/username/wealthfolio/backend/src/database"
	"github.com/username/wealthfolio/backend/src/handlers"
	"github.com/username/wealthfolio/backend/src/logger"
	"github.com/username/wealthfolio/backend/src/services"
	"github.com/username/wealthfolio/backend/src/storage/sqlite"
	"golang.org/x/time/rate"
)

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Wealthfolio accounting core starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	db := database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(db, config.Cfg.DatabasePath)

	reportCache := cache.New(config.Cfg.ReportCacheTTL, config.Cfg.ReportCacheCleanupInterval)

	store := sqlite.New(db)
	accountingService := services.NewAccountingService(store, reportCache)

	accountingHandler := handlers.NewAccountingHandler(accountingService)
	reportHandler := handlers.NewReportHandler(accountingService)

	limiter := rate.NewLimiter(rate.Every(config.Cfg.RateLimitInterval), config.Cfg.RateLimitBurst)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(rateLimitMiddleware(limiter))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Wealthfolio accounting core is running"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Route("/api/accounting", func(r chi.Router) {
		r.Use(handlers.AuthMiddleware(config.Cfg.JWTSecret, config.Cfg.AuthDisabled))

		r.Post("/accounts", accountingHandler.HandleCreateAccount)
		r.Get("/accounts", accountingHandler.HandleListAccounts)
		r.Get("/accounts/{code}", accountingHandler.HandleGetAccount)
		r.Post("/accounts/{code}/deactivate", accountingHandler.HandleDeactivateAccount)
		r.Post("/accounts/{code}/reactivate", accountingHandler.HandleReactivateAccount)

		r.Post("/journal-entries", accountingHandler.HandleCreateJournalEntry)
		r.Get("/journal-entries", accountingHandler.HandleListJournalEntries)
		r.Get("/journal-entries/{id}", accountingHandler.HandleGetJournalEntry)
		r.Post("/journal-entries/{id}/reverse", accountingHandler.HandleReverseJournalEntry)

		r.Get("/reports/trial-balance", reportHandler.HandleTrialBalance)
		r.Get("/reports/profit-loss", reportHandler.HandleProfitLoss)
		r.Get("/reports/balance-sheet", reportHandler.HandleBalanceSheet)
		r.Get("/reports/ledger/{accountCode}", reportHandler.HandleAccountLedger)
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
