// Command deferlink-stub serves canned link-matching responses over HTTP and gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/deferlink/internal/config"
	"github.com/and161185/deferlink/internal/fixtures"
	"github.com/and161185/deferlink/internal/metrics"
	grpcserver "github.com/and161185/deferlink/internal/server/grpc"
	httpserver "github.com/and161185/deferlink/internal/server/http"
	"github.com/and161185/deferlink/internal/server/stub"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads fixtures and serves them until SIGINT/SIGTERM.
func main() {
	envFile := flag.String("env", "", "optional .env file (default ./.env)")
	fixturesPath := flag.String("fixtures", "", "fixtures YAML (overrides DEFERLINK_STUB_FIXTURES)")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides DEFERLINK_STUB_HTTP_ADDR)")
	grpcAddr := flag.String("grpc-addr", "", "gRPC listen address (overrides DEFERLINK_STUB_GRPC_ADDR)")
	apiKey := flag.String("api-key", "", "required bearer key (overrides DEFERLINK_STUB_API_KEY)")
	dev := flag.Bool("dev", false, "enable server reflection and development logging")
	flag.Parse()

	var logger *zap.Logger
	if *dev {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	override(&cfg.StubFixtures, *fixturesPath)
	override(&cfg.StubHTTPAddr, *httpAddr)
	override(&cfg.StubGRPCAddr, *grpcAddr)
	override(&cfg.StubAPIKey, *apiKey)

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.StubHTTPAddr),
		zap.String("grpc", cfg.StubGRPCAddr),
		zap.String("fixtures", cfg.StubFixtures),
	)
	if cfg.StubAPIKey == "" {
		logger.Warn("no api key configured, requests are not authenticated")
	}

	set, err := fixtures.Load(cfg.StubFixtures)
	if err != nil {
		logger.Fatal("load fixtures", zap.Error(err))
	}
	backend := stub.New(set, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.MetricsUnary(m),
			grpcserver.AuthUnary(cfg.StubAPIKey),
		),
	}
	if cfg.StubTLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.StubTLSCert, cfg.StubTLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}
	gs := grpc.NewServer(opts...)
	grpcserver.Register(gs, grpcserver.New(backend))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if *dev {
		reflection.Register(gs)
	}

	hsrv := &http.Server{
		Addr: cfg.StubHTTPAddr,
		Handler: httpserver.NewHandler(httpserver.Deps{
			Backend:  backend,
			APIKey:   cfg.StubAPIKey,
			Log:      logger,
			Metrics:  m,
			Gatherer: reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.StubGRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.StubGRPCAddr), zap.Bool("tls", cfg.StubTLSCert != ""))
		errCh <- gs.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.StubHTTPAddr), zap.Bool("tls", cfg.StubTLSCert != ""))
		var err error
		if cfg.StubTLSCert != "" {
			err = hsrv.ListenAndServeTLS(cfg.StubTLSCert, cfg.StubTLSKey)
		} else {
			err = hsrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hsrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}

		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			gs.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func override(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}
