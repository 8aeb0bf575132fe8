// Command deferlink resolves deferred deep-link attribution for this install.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/and161185/deferlink/internal/config"
	"github.com/and161185/deferlink/internal/errs"
	"github.com/and161185/deferlink/internal/metrics"
	"github.com/and161185/deferlink/internal/model"
	"github.com/and161185/deferlink/internal/repository/file"
	"github.com/and161185/deferlink/internal/retry"
	"github.com/and161185/deferlink/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `deferlink CLI
Usage:
  deferlink [global flags] <cmd> [args]

Global flags override DEFERLINK_* environment variables and .env:
  -env FILE  -transport http|grpc  -base-url URL  -grpc-addr HOST:PORT
  -api-key KEY  -cacert FILE  -insecure  -plaintext
  -platform ios|android|web  -state-dir DIR  -debug

Commands:
  version
  resolve      [-force] [-referrer TOKEN] [-timeout DUR]
  fingerprint                                  (print the collected fingerprint)
  state                                        (print the stored install state)
  reset                                        (forget the stored install state)
`)
	os.Exit(2)
}

// resolveOutput is what `resolve` prints.
type resolveOutput struct {
	Outcome     string             `json:"outcome"`
	Attributed  bool               `json:"attributed"`
	DeepLinkURL string             `json:"deepLinkUrl,omitempty"`
	Error       string             `json:"error,omitempty"`
	Result      *model.MatchResult `json:"result,omitempty"`
}

func newResolveOutput(out model.Outcome) resolveOutput {
	o := resolveOutput{
		Outcome:     out.Reason(),
		Attributed:  out.Attributed(),
		DeepLinkURL: out.DeepLinkURL(),
		Result:      out.Result,
	}
	if out.Err != nil {
		o.Error = out.Err.Error()
	}
	return o
}

// globalFlags are applied on top of the loaded config.
type globalFlags struct {
	transport, baseURL, grpcAddr, apiKey, caCert, platform, stateDir string
	insecure, plaintext                                              bool
}

func (g globalFlags) apply(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Transport, g.transport)
	set(&cfg.BaseURL, g.baseURL)
	set(&cfg.GRPCAddr, g.grpcAddr)
	set(&cfg.APIKey, g.apiKey)
	set(&cfg.CACert, g.caCert)
	set(&cfg.Platform, g.platform)
	set(&cfg.StateDir, g.stateDir)
	if g.insecure {
		cfg.GRPCInsecureSkipVerify = true
	}
	if g.plaintext {
		cfg.GRPCPlaintext = true
	}
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands.
func main() {
	var g globalFlags
	envFile := flag.String("env", "", "optional .env file (default ./.env)")
	flag.StringVar(&g.transport, "transport", "", "http or grpc")
	flag.StringVar(&g.baseURL, "base-url", "", "HTTP API base URL")
	flag.StringVar(&g.grpcAddr, "grpc-addr", "", "gRPC target")
	flag.StringVar(&g.apiKey, "api-key", "", "bearer API key")
	flag.StringVar(&g.caCert, "cacert", "", "CA cert (PEM) for gRPC")
	flag.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&g.plaintext, "plaintext", false, "gRPC without TLS (local stub)")
	flag.StringVar(&g.platform, "platform", "", "ios, android or web")
	flag.StringVar(&g.stateDir, "state-dir", "", "install state directory")
	debug := flag.Bool("debug", false, "development logging and metrics dump")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	if cmd == "version" {
		fmt.Printf("deferlink %s (%s)\n", version, buildDate)
		return
	}

	var logger *zap.Logger
	if *debug {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fail(err)
	}
	g.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	repo, err := stateRepo(cfg)
	if err != nil {
		fail(err)
	}

	switch cmd {

	case "resolve":
		fs := flag.NewFlagSet("resolve", flag.ExitOnError)
		force := fs.Bool("force", false, "resolve even if this install already resolved")
		tok := fs.String("referrer", "", "install referrer token (overrides DEFERLINK_REFERRER_TOKEN)")
		timeout := fs.Duration("timeout", 60*time.Second, "overall deadline")
		_ = fs.Parse(flag.Args()[1:])
		if *tok != "" {
			cfg.ReferrerToken = *tok
		}
		if err := cfg.ValidateClient(); err != nil {
			fail(err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()

		matcher, closeFn, err := newMatcher(cfg, logger)
		if err != nil {
			fail(err)
		}
		defer func() { _ = closeFn() }()

		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		r := retry.New(
			retry.WithMaxAttempts(cfg.MaxAttempts),
			retry.WithTimeout(cfg.AttemptTimeout),
			retry.WithInitialBackoff(cfg.InitialBackoff),
			retry.WithJitter(cfg.Jitter),
			retry.WithLogger(logger),
		)
		svc := service.NewAttributionService(matcher, newSource(cfg), newCollector(cfg, logger), r,
			service.WithLogger(logger),
			service.WithRecorder(m),
		)

		out, err := service.ResolveOnce(ctx, svc, repo, time.Now, *force)
		if *debug {
			dumpMetrics(logger, reg)
		}
		if errors.Is(err, errs.ErrAlreadyResolved) {
			st, _ := repo.Load(ctx)
			fmt.Fprintln(os.Stderr, "already resolved for this install (use -force to rerun)")
			printJSON(os.Stdout, st)
			return
		}
		printJSON(os.Stdout, newResolveOutput(out))
		if err != nil {
			fail(err)
		}

	case "fingerprint":
		printJSON(os.Stdout, newCollector(cfg, logger).Collect(context.Background()))

	case "state":
		st, err := repo.Load(context.Background())
		if errors.Is(err, errs.ErrNotFound) {
			fmt.Println("no install state at", repo.Path())
			return
		}
		if err != nil {
			fail(err)
		}
		printJSON(os.Stdout, st)

	case "reset":
		if err := repo.Reset(context.Background()); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	default:
		usage()
	}
}

func stateRepo(cfg *config.Config) (*file.StateRepo, error) {
	dir := cfg.StateDir
	if dir == "" {
		d, err := file.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return file.NewStateRepo(dir), nil
}
