// Command admind runs the dealership admin auth service: the login-flow
// API, the guarded admin API surface, and the public contact endpoint.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crestline-motors/adminauth"
	"github.com/crestline-motors/adminauth/adminhttp"
	"github.com/crestline-motors/adminauth/gormstore"
	"github.com/crestline-motors/adminauth/middleware"
	"github.com/crestline-motors/adminauth/rate"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	addr := envOr("ADMIND_ADDR", ":8080")
	redisAddr := envOr("ADMIND_REDIS_ADDR", "localhost:6379")
	dbPath := envOr("ADMIND_SQLITE_PATH", "admind.db")
	secret := os.Getenv("ADMIND_JWT_SECRET")
	if len(secret) < 32 {
		log.Fatal("ADMIND_JWT_SECRET must be set to at least 32 bytes")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     os.Getenv("ADMIND_REDIS_PASSWORD"),
		DB:           envInt("ADMIND_REDIS_DB", 0),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("redis unreachable at %s: %v", redisAddr, err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("open database %s: %v", dbPath, err)
	}

	store, err := gormstore.New(db)
	if err != nil {
		log.Fatalf("init admin store: %v", err)
	}

	cfg := adminauth.DefaultConfig()
	cfg.JWT.Secret = []byte(secret)
	cfg.Cookies.Secure = envOr("ADMIND_COOKIE_SECURE", "true") == "true"
	cfg.Security.Debug = os.Getenv("ADMIND_DEBUG") == "true"

	engine, err := adminauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAdminProvider(store).
		WithAuditSink(adminauth.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		log.Fatalf("build auth engine: %v", err)
	}
	defer engine.Close()

	mux := http.NewServeMux()
	adminhttp.NewHandler(engine, adminhttp.Options{
		SignedCSRF: os.Getenv("ADMIND_CSRF_SIGNED") == "true",
	}).Register(mux)

	guarded := middleware.RequireStrict(engine)
	apiLimit := middleware.RateLimit(engine.RateLimiter(), rate.ClassAPI)
	mux.Handle("GET /admin/api/session", guarded(apiLimit(http.HandlerFunc(sessionInfo))))

	contactLimit := middleware.RateLimit(engine.RateLimiter(), rate.ClassContact)
	mux.Handle("POST /contact", contactLimit(http.HandlerFunc(contactStub)))

	handler := middleware.CSRF(engine, middleware.CSRFOptions{
		Signed:       os.Getenv("ADMIND_CSRF_SIGNED") == "true",
		CookieSecure: cfg.Cookies.Secure,
	})(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("admind listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func sessionInfo(w http.ResponseWriter, r *http.Request) {
	auth := middleware.AuthResultFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"adminId":"` + auth.AdminID + `","role":"` + auth.Role + `"}`))
}

func contactStub(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"received":true}`))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
