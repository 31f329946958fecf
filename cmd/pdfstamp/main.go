// Command pdfstamp fills a PDF template with field values.
//
// Usage:
//
//	pdfstamp serve  [flags]                          HTTP API
//	pdfstamp mcp    [flags]                          MCP server on stdio
//	pdfstamp render [flags] --fields f.json --out x.pdf
//	pdfstamp token  --sub ID [--ttl 24h]             development token
//
// Settings come from --config (or $PDFSTAMP_CONFIG), PDFSTAMP_* variables
// and flags, in increasing precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/cache/rediscache"
	"github.com/lvillar/pdfstamp/imagepipe"
	"github.com/lvillar/pdfstamp/internal/config"
	"github.com/lvillar/pdfstamp/placement"
	"github.com/lvillar/pdfstamp/render"
)

// Version is set at build time via ldflags.
var Version = "dev"

const usage = `usage: pdfstamp <command> [flags]

commands:
  serve    run the HTTP API
  mcp      run the MCP server on stdin/stdout
  render   render one document from a JSON file of field values
  token    issue a development access token
  version  print the version

Run "pdfstamp <command> --help" for the flags of a command.
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "pdfstamp:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return runServe(ctx, rest, stderr)
	case "mcp":
		return runMCP(ctx, rest, stderr)
	case "render":
		return runRender(ctx, rest, stdout, stderr)
	case "token":
		return runToken(rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "pdfstamp", Version)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

// setup parses the shared flags plus those added by extra, resolves the
// config and installs the logger.
func setup(name string, args []string, stderr io.Writer, extra func(fs *flag.FlagSet)) (*config.Config, error) {
	fs := flag.NewFlagSet("pdfstamp "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := config.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := flags.Resolve(os.LookupEnv, os.Environ(), stderr)
	if err != nil {
		return nil, err
	}

	h, err := cfg.Log.Handler(stderr)
	if err != nil {
		return nil, err
	}
	logger := slog.New(h)
	pdfstamp.SetLogger(logger)

	// maxprocs.Set only fails on an invalid GOMAXPROCS value, in which case
	// the runtime default stays.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	return cfg, nil
}

// openEngine builds the render engine from cfg. The returned close function
// releases the image cache.
func openEngine(ctx context.Context, cfg *config.Config) (*render.Engine, func(), error) {
	popts := []imagepipe.Option{
		imagepipe.WithAssets(os.DirFS(cfg.Assets.Dir)),
		imagepipe.WithFetchTimeout(cfg.Images.FetchTimeout.Std()),
		imagepipe.WithMaxBytes(cfg.Images.MaxBytes),
	}
	if cfg.Images.LocalRoot != "" {
		popts = append(popts, imagepipe.WithLocalDir(cfg.Images.LocalRoot))
	}
	closeCache := func() {}
	if cfg.Redis.Addr != "" {
		c := rediscache.New(rediscache.Conf{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err := c.Ping(ctx); err != nil {
			// The cache is an optimization; fetches still work without it.
			pdfstamp.Logger().Warn("redis unreachable, image cache disabled", "addr", cfg.Redis.Addr, "error", err)
			c.Close()
		} else {
			popts = append(popts, imagepipe.WithCache(c, cfg.Redis.TTL.Std()))
			closeCache = func() { c.Close() }
		}
	}

	opts := []render.Option{
		render.WithPipeline(imagepipe.New(popts...)),
		render.WithImageBounds(imagepipe.Bounds{MaxWidth: cfg.Images.MaxWidth, MaxHeight: cfg.Images.MaxHeight}),
		render.WithQuality(cfg.Images.Quality),
		render.WithPixelsPerPoint(cfg.Images.PixelsPerPoint),
	}
	if cfg.Assets.Placement != "" {
		table, err := placement.Load(cfg.Assets.Placement)
		if err != nil {
			closeCache()
			return nil, nil, err
		}
		opts = append(opts, render.WithTable(table))
	}

	eng, err := render.Open(cfg.Assets.Dir, opts...)
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	info := eng.Info()
	pdfstamp.Logger().Info("engine ready",
		"assets", cfg.Assets.Dir,
		"pages", len(info.Pages),
		"table", info.TableVersion,
		"fields", len(info.Fields),
		"fonts", len(info.Fonts),
	)
	return eng, closeCache, nil
}
