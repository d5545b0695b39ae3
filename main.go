package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/fundfolio/backend/src/config"
	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/handlers"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/processors"
	"github.com/username/fundfolio/backend/src/security"
	"github.com/username/fundfolio/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(config.Cfg.AllowedOrigins))
	for _, origin := range config.Cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			allowedOrigins[trimmed] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == http.MethodOptions {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Fundfolio backend server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Loading historical price data...", "path", config.Cfg.PriceHistoryPath)
	if err := processors.LoadHistoricalPrices(config.Cfg.PriceHistoryPath); err != nil {
		logger.L.Error("Failed to load historical prices; snapshot backfill will be unavailable", "error", err)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	resultCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	emailService := services.NewEmailService()
	userHandler := handlers.NewUserHandler(authService, emailService)
	handlers.InitializeGoogleOAuthConfig()

	fingerprintProcessor := processors.NewFingerprintProcessor()
	dedupProcessor := processors.NewDedupProcessor(fingerprintProcessor)
	portfolioProcessor := processors.NewPortfolioProcessor()
	snapshotProcessor := processors.NewSnapshotProcessor()

	dedupOpts := processors.DedupOptions{
		Strategy:          processors.StrategySkipDuplicates,
		DateToleranceDays: config.Cfg.DedupDateToleranceDays,
	}
	importService := services.NewImportService(dedupProcessor, dedupOpts, resultCache)
	priceService := services.NewPriceService()
	portfolioService := services.NewPortfolioService(portfolioProcessor, priceService, resultCache)
	snapshotService := services.NewSnapshotService(snapshotProcessor)

	importHandler := handlers.NewImportHandler(importService)
	txHandler := handlers.NewTransactionHandler(importService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService)
	priceHandler := handlers.NewPriceHandler(priceService)
	snapshotHandler := handlers.NewSnapshotHandler(snapshotService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	// Public GET routes.
	apiRouter.HandleFunc("GET /api/auth/csrf", handlers.GetCSRFToken)
	apiRouter.HandleFunc("GET /api/auth/verify-email", userHandler.VerifyEmailHandler)
	apiRouter.HandleFunc("GET /api/auth/google/login", userHandler.HandleGoogleLogin)
	apiRouter.HandleFunc("GET /api/auth/google/callback", userHandler.HandleGoogleCallback)

	csrfProtection := handlers.CSRFMiddleware()

	// Auth actions. POSTs go through CSRF; logout additionally needs a
	// valid access token.
	authActionRouter := http.NewServeMux()
	authActionRouter.HandleFunc("POST /login", userHandler.LoginUserHandler)
	authActionRouter.HandleFunc("POST /register", userHandler.RegisterUserHandler)
	authActionRouter.HandleFunc("POST /refresh", userHandler.RefreshTokenHandler)
	authActionRouter.Handle("POST /logout", userHandler.AuthMiddleware(http.HandlerFunc(userHandler.LogoutUserHandler)))
	authActionRouter.HandleFunc("POST /request-password-reset", userHandler.RequestPasswordResetHandler)
	authActionRouter.HandleFunc("POST /reset-password", userHandler.ResetPasswordHandler)
	apiRouter.Handle("/api/auth/", http.StripPrefix("/api/auth", csrfProtection(authActionRouter)))

	applyCsrfAndAuth := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(userHandler.AuthMiddleware(handler))
	}

	apiRouter.Handle("POST /api/import/file", applyCsrfAndAuth(importHandler.HandleFileImport))
	apiRouter.Handle("POST /api/import/batch", applyCsrfAndAuth(importHandler.HandleBatchImport))
	apiRouter.Handle("GET /api/transactions", applyCsrfAndAuth(txHandler.HandleGetTransactions))
	apiRouter.Handle("GET /api/transactions/export", applyCsrfAndAuth(txHandler.HandleExportTransactions))
	apiRouter.Handle("DELETE /api/transactions/all", applyCsrfAndAuth(txHandler.HandleDeleteAllTransactions))
	apiRouter.Handle("GET /api/portfolio", applyCsrfAndAuth(portfolioHandler.HandleGetPortfolio))
	apiRouter.Handle("GET /api/portfolio/timeline", applyCsrfAndAuth(portfolioHandler.HandleGetTimeline))
	apiRouter.Handle("GET /api/holdings/open", applyCsrfAndAuth(portfolioHandler.HandleGetOpenHoldings))
	apiRouter.Handle("GET /api/holdings/closed", applyCsrfAndAuth(portfolioHandler.HandleGetClosedHoldings))
	apiRouter.Handle("GET /api/prices", applyCsrfAndAuth(priceHandler.HandleGetPrices))
	apiRouter.Handle("POST /api/tickers", applyCsrfAndAuth(handlers.HandleSaveTickerMapping))
	apiRouter.Handle("GET /api/tickers", applyCsrfAndAuth(handlers.HandleGetTickerMappings))
	apiRouter.Handle("POST /api/snapshots/backfill", applyCsrfAndAuth(snapshotHandler.HandleBackfillSnapshots))
	apiRouter.Handle("GET /api/snapshots", applyCsrfAndAuth(snapshotHandler.HandleGetSnapshots))
	apiRouter.Handle("GET /api/snapshots/holdings", applyCsrfAndAuth(snapshotHandler.HandleGetHoldingSnapshots))
	apiRouter.Handle("GET /api/user/has-data", applyCsrfAndAuth(userHandler.HasDataHandler))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Fundfolio backend is running"})
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
