package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/auth"
	"github.com/lvillar/pdfstamp/internal/config"
	"github.com/lvillar/pdfstamp/mcp"
	"github.com/lvillar/pdfstamp/server"
	"github.com/lvillar/pdfstamp/store"
	"github.com/lvillar/pdfstamp/store/mysqlstore"
	"github.com/lvillar/pdfstamp/store/pgstore"
)

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	cfg, err := setup("serve", args, stderr, nil)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	eng, closeCache, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	meta, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer meta.Close()

	blobs, err := store.OpenBlobs(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	defer blobs.Close()

	srv, err := server.New(server.Config{
		Renderer:      eng,
		Store:         meta,
		Blobs:         blobs,
		Verifier:      auth.NewVerifier([]byte(cfg.Auth.Secret)),
		AllowedOrigin: cfg.Server.CORSOrigin,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout.Std(),
		WriteTimeout:      cfg.Server.WriteTimeout.Std(),
	}
	return server.RunWithGracefulShutdown(httpServer, "pdfstamp", nil, cfg.Server.ShutdownTimeout.Std())
}

func openStore(ctx context.Context, c config.DatabaseConfig) (store.Store, error) {
	switch c.Driver {
	case "postgres":
		return pgstore.Open(ctx, c.DSN)
	case "mysql":
		return mysqlstore.Open(ctx, c.DSN)
	case "memory":
		pdfstamp.Logger().Warn("using the in-memory store; records are lost on exit")
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", c.Driver)
}

func runMCP(ctx context.Context, args []string, stderr io.Writer) error {
	cfg, err := setup("mcp", args, stderr, nil)
	if err != nil {
		return err
	}
	eng, closeCache, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	s := mcp.NewServer(Version)
	mcp.RegisterTools(s, eng)
	mcp.RegisterResources(s, eng)
	err = s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runRender(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var fieldsPath, outPath string
	cfg, err := setup("render", args, stderr, func(fs *flag.FlagSet) {
		fs.StringVarP(&fieldsPath, "fields", "f", "", "JSON file of field values (- for stdin)")
		fs.StringVarP(&outPath, "out", "o", "", "output file or directory (default: the generated name in the current directory)")
	})
	if err != nil {
		return err
	}
	if fieldsPath == "" {
		return fmt.Errorf("%w: --fields is required", errUsage)
	}

	var in io.Reader = os.Stdin
	if fieldsPath != "-" {
		f, err := os.Open(fieldsPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	fields, err := server.DecodeFields(in)
	if err != nil {
		return fmt.Errorf("%s: %w", fieldsPath, err)
	}

	eng, closeCache, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	res, err := eng.Render(ctx, fields)
	if err != nil {
		return err
	}
	if outPath == "" {
		outPath = res.Filename
	} else if st, err := os.Stat(outPath); err == nil && st.IsDir() {
		outPath = filepath.Join(outPath, res.Filename)
	}
	if err := os.WriteFile(outPath, res.Bytes, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s (%d bytes)\n", outPath, res.Size)
	return nil
}

func runToken(args []string, stdout, stderr io.Writer) error {
	var (
		sub, email, role string
		ttl              time.Duration
	)
	cfg, err := setup("token", args, stderr, func(fs *flag.FlagSet) {
		fs.StringVar(&sub, "sub", "", "user id")
		fs.StringVar(&email, "email", "", "user email")
		fs.StringVar(&role, "role", "user", "user role")
		fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	})
	if err != nil {
		return err
	}
	if sub == "" {
		return fmt.Errorf("%w: --sub is required", errUsage)
	}
	if cfg.Auth.Secret == "" {
		return errors.New("auth.secret is required (set PDFSTAMP_JWT_SECRET)")
	}
	tok, err := auth.NewSigner([]byte(cfg.Auth.Secret), ttl).Sign(auth.Principal{ID: sub, Email: email, Role: role})
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, tok)
	return nil
}
