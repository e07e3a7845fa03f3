package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"

	"github.com/ironsheep/visionguard/internal/config"
	"github.com/ironsheep/visionguard/internal/httpapi"
	"github.com/ironsheep/visionguard/internal/ocr"
	"github.com/ironsheep/visionguard/internal/pipeline"
	"github.com/ironsheep/visionguard/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const defaultConfig = "config.ini"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "image":
		err = runImage(ctx, args)
	case "mcp":
		err = runMCP(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "recent":
		err = runRecent(ctx, args)
	case "token":
		err = runToken(args)
	case "--version", "-v", "version":
		fmt.Printf("visionguard %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		info := ocr.GetInfo(ocr.TesseractOptions{})
		if info.Available {
			fmt.Printf("  Tesseract:  %s\n", info.Version)
		} else {
			fmt.Printf("  Tesseract:  unavailable (%s)\n", info.Error)
		}
		return
	case "--help", "-h", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "visionguard %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("visionguard - license plate reader")
	fmt.Println()
	fmt.Println("Usage: visionguard <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  image <paths...>   Read plates from image files and store them")
	fmt.Println("  mcp                Serve plate tools over MCP (stdin/stdout)")
	fmt.Println("  serve              Serve the HTTP review API")
	fmt.Println("  recent             Print the most recent detections")
	fmt.Println("  token              Mint a bearer token for the review API")
	fmt.Println("  version            Print version information")
	fmt.Println()
	fmt.Println("Every command accepts --config (default config.ini).")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  GEMINI_API_KEY               Enables remote plate text cleanup")
	fmt.Println("  VISIONGUARD_<SECTION>_<KEY>  Overrides a config value")
}

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "path to the INI config file")
	return fs, configPath
}

func runImage(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("image")
	source := fs.String("source", "", "source tag for every image (default image:<file name>)")
	out := fs.String("out", "", "directory for annotated snapshots (default app.snapshot_dir)")
	noSnapshot := fs.Bool("no-snapshot", false, "do not write annotated snapshots")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one image path is required")
	}

	a, err := openApp(ctx, *configPath, true)
	if err != nil {
		return err
	}
	defer a.Close()

	pool, err := pipeline.NewPool(min(a.cfg.App.Workers, fs.NArg()), a.newPipeline)
	if err != nil {
		return err
	}
	defer pool.Close()

	jobs := make([]pipeline.Job, fs.NArg())
	for i, path := range fs.Args() {
		jobs[i] = pipeline.Job{Path: path, Source: *source}
	}

	opts := pipeline.BatchOptions{
		SnapshotDir: a.cfg.App.SnapshotDir,
		Annotate:    a.annotate,
		Logger:      a.log,
	}
	if *out != "" {
		opts.SnapshotDir = *out
	}
	if *noSnapshot {
		opts.SnapshotDir = ""
	}

	var failed int
	for _, res := range pool.Run(ctx, jobs, opts) {
		for _, d := range res.Detections {
			fmt.Printf("%s\t%s\t%.0f\t%d\t%s\n", res.Job.Path, d.Plate, d.Confidence, d.ID, d.Source)
		}
		if res.Annotated != "" {
			a.log.Info().Str("path", res.Annotated).Msg("annotated snapshot written")
		}
		if res.Err != nil {
			failed++
			a.log.Error().Err(res.Err).Str("path", res.Job.Path).Msg("image failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(jobs))
	}
	return nil
}

func runMCP(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("mcp")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(ctx, *configPath, true)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	a.log.Info().Str("version", Version).Msg("MCP server starting")
	srv := server.New(server.Deps{
		Pipeline:   p,
		Store:      a.store,
		Cleaner:    a.cleaner,
		Processing: a.cfg.Processing,
		Annotate:   a.annotate,
		Logger:     a.log,
		Version:    Version,
	})
	return srv.Run(ctx)
}

func runServe(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("serve")
	addr := fs.String("addr", "", "listen address (default http.addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(ctx, *configPath, true)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	if *addr == "" {
		*addr = a.cfg.HTTP.Addr
	}
	h := httpapi.NewHandler(a.store, p, a.cfg.HTTP, a.log)
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", *addr).Bool("auth", a.cfg.HTTP.JWTSecret != "").Msg("HTTP server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.log.Info().Msg("HTTP server shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func runRecent(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("recent")
	limit := fs.Int("limit", 50, "number of detections to print")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer a.Close()

	dets, err := a.store.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	for _, d := range dets {
		conf := "-"
		if d.Confidence != nil {
			conf = fmt.Sprintf("%.0f", *d.Confidence)
		}
		fmt.Printf("%d\t%s\t%s\t%s\t%s\n", d.ID, d.Timestamp.Local().Format(time.RFC3339), d.Plate, conf, d.Source)
	}
	return nil
}

func runToken(args []string) error {
	fs, configPath := newFlagSet("token")
	subject := fs.String("subject", "reviewer", "token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.HTTP.JWTSecret == "" {
		return errors.New("http.jwt_secret is not set")
	}

	now := time.Now()
	token, err := httpapi.SignToken(cfg.HTTP.JWTSecret, *subject, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
	})
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
