package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/site-invoices/internal/app"
	"github.com/joseph-ayodele/site-invoices/internal/common"
	"github.com/joseph-ayodele/site-invoices/internal/server"
)

var args struct {
	HTTPAddr string `arg:"--http-addr,env:HTTP_ADDR" help:"listen address of the HTTP API (default from config)"`
	GRPCAddr string `arg:"--grpc-addr,env:GRPC_ADDR" help:"listen address of the gRPC health service (default from config)"`
	LogLevel string `arg:"--log-level,env:LOG_LEVEL" default:"info"`
	Debug    bool   `arg:"--debug" help:"run gin in debug mode"`
}

func main() {
	arg.MustParse(&args)
	logger := app.Logger(args.LogLevel)
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(false); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}
	if args.HTTPAddr != "" {
		cfg.Server.HTTPAddr = args.HTTPAddr
	}
	if args.GRPCAddr != "" {
		cfg.Server.GRPCAddr = args.GRPCAddr
	}
	if !args.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	svc, err := app.InvoiceService(cfg, db, logger)
	if err != nil {
		logger.Error("build invoice service", "error", err)
		os.Exit(1)
	}

	// gRPC health, reported from the database ping.
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)
	go watchHealth(ctx, db, hs, logger)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("grpc listen", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("grpc health serving", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve", "error", err)
		}
	}()

	api := server.New(svc, server.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	}, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr, "model_enabled", svc.ModelEnabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hs.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("stopped")
}

type pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

func watchHealth(ctx context.Context, db pinger, hs *health.Server, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		st := healthpb.HealthCheckResponse_SERVING
		if err := db.HealthCheck(ctx, 3*time.Second); err != nil {
			logger.Warn("db health failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
