// Command portalguard-demo serves a small campus portal whose dashboards are
// protected by the route guard.
//
// Without REDIS_ADDR it runs against an embedded miniredis, so only
// JWT_SECRET is required:
//
//	JWT_SECRET=0123456789abcdef0123456789abcdef go run ./cmd/portalguard-demo
//
// Then:
//
//	curl -i -c jar.txt -X POST localhost:8080/api/register \
//	  -d '{"email":"reg@uni.edu","password":"correct-horse","name":"Registrar","user_type":"university"}'
//	curl -i -c jar.txt -b jar.txt -X POST localhost:8080/api/login \
//	  -d '{"email":"reg@uni.edu","password":"correct-horse"}'
//	curl -i -b jar.txt localhost:8080/dashboard/school
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/campusbridge/portalguard"
	"github.com/campusbridge/portalguard/internal/config"
	"github.com/campusbridge/portalguard/internal/logger"
	"github.com/campusbridge/portalguard/internal/rate"
	"github.com/campusbridge/portalguard/internal/telemetry"
	"github.com/campusbridge/portalguard/jwt"
	otelexport "github.com/campusbridge/portalguard/metrics/export/otel"
	promexport "github.com/campusbridge/portalguard/metrics/export/prometheus"
	"github.com/campusbridge/portalguard/password"
	"github.com/campusbridge/portalguard/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

const serviceName = "portalguard-demo"

func main() {
	if err := run(); err != nil {
		slog.Error("portalguard-demo exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	log := logger.SetupDefault(os.Stdout)

	envFile := os.Getenv("PORTAL_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log = logger.SetupLevel(os.Stdout, logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	ctx := context.Background()
	shutdownTracing := telemetry.Setup(ctx, serviceName)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown", slog.String("error", err.Error()))
		}
	}()

	// ---------- redis ----------
	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		redisAddr = mr.Addr()
		log.Info("using embedded miniredis", slog.String("addr", redisAddr))
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	backend := session.NewRedisBackend(rdb, cfg.RedisPrefix, cfg.StoreTTL, cfg.CacheTTL)
	if _, err := backend.Ping(ctx); err != nil {
		return err
	}

	// ---------- tokens + passwords ----------
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.JWTSecret),
		Issuer:        cfg.JWTIssuer,
		Leeway:        30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("jwt manager: %w", err)
	}
	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}

	// ---------- guard ----------
	guardCfg := portalguard.DefaultConfig()
	guardCfg.Audit.Enabled = cfg.AuditLog
	guardCfg.Audit.SuppressRepeats = 30 * time.Second
	guardCfg.Metrics.Enabled = true
	guardCfg.Metrics.EnableLatencyHistograms = true

	var sink portalguard.AuditSink = portalguard.NoOpSink{}
	if cfg.AuditLog {
		sink = portalguard.NewSlogSink(log.With(slog.String("component", "audit")))
	}

	guard, err := portalguard.New().
		WithConfig(guardCfg).
		WithAuditSink(sink).
		WithTokenVerifier(tokens).
		WithLogger(log).
		Build()
	if err != nil {
		return fmt.Errorf("guard build: %w", err)
	}
	defer guard.Close()

	report := guard.SecurityReport()
	log.Info("guard ready",
		slog.Bool("token_verification", report.TokenVerification),
		slog.Bool("unknown_role_strict", report.UnknownRoleStrict),
		slog.Bool("audit", report.AuditActive),
		slog.Int("known_roles", report.KnownRoles),
		slog.Int("aliases", report.Aliases),
	)
	for role, extra := range report.Grants {
		log.Debug("role alias", slog.String("role", role), slog.Any("satisfies", extra))
	}
	for _, code := range report.Warnings {
		log.Warn("guard config", slog.String("code", code))
	}

	// ---------- metrics ----------
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if _, err := promexport.Register(reg, guard); err != nil {
		return fmt.Errorf("register prometheus collector: %w", err)
	}
	otelMetrics, err := otelexport.New(otel.GetMeterProvider().Meter("github.com/campusbridge/portalguard"), guard)
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}
	defer otelMetrics.Close()

	// ---------- router ----------
	router := newRouter(&serverDeps{
		Guard:     guard,
		Backend:   backend,
		Health:    backend,
		Directory: newDirectory(rdb, cfg.RedisPrefix),
		Tokens:    tokens,
		Hasher:    hasher,
		Limiter: rate.New(rdb, rate.Config{
			Prefix:       cfg.RedisPrefix,
			MaxAttempts:  cfg.LoginMaxAttempts,
			Cooldown:     cfg.LoginCooldown,
			ThrottleByIP: true,
		}),
		Metrics:      promexport.Handler(reg),
		Logger:       log,
		TokenTTL:     cfg.TokenTTL,
		CookieSecure: cfg.CookieSecure,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("portal server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	}
	log.Info("shutting down portal server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
