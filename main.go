package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/alimasry/go-pixel-editor/config"
	"github.com/alimasry/go-pixel-editor/discovery"
	"github.com/alimasry/go-pixel-editor/pixel"
	"github.com/alimasry/go-pixel-editor/server"
	"github.com/alimasry/go-pixel-editor/store"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides the config file)")
	browse := flag.Duration("browse", 0, "list editor servers on the LAN for this long, then exit")
	flag.Parse()

	cfg, used, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	pixel.SetLogger(logger.With("component", "pixel"))
	if used != "" {
		logger.Info("loaded config", "path", used)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *browse > 0 {
		peers, err := discovery.Browse(ctx, *browse)
		if err != nil {
			logger.Error("browse failed", "err", err)
			os.Exit(1)
		}
		for _, p := range peers {
			fmt.Printf("%s\t%s\n", p.Instance, p.Addr)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var st store.ProjectStore
	switch cfg.Store.Backend {
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Store.FirestoreProject)
		if err != nil {
			return fmt.Errorf("firestore: %w", err)
		}
		defer client.Close()
		cached := store.NewCachedStore(store.NewFirestoreStore(client),
			time.Duration(cfg.Store.FlushInterval),
			store.WithLogger(logger.With("component", "store")))
		defer cached.Close()
		st = cached
		logger.Info("using firestore store", "project", cfg.Store.FirestoreProject)
	default:
		st = store.NewMemoryStore()
		logger.Info("using in-memory store")
	}

	hub := server.NewHub(st,
		server.WithLogger(logger.With("component", "server")),
		server.WithCanvasSize(cfg.Canvas.Width, cfg.Canvas.Height),
		server.WithMaxSteps(cfg.Canvas.MaxSteps),
	)
	go hub.Run()
	defer hub.Close()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	if cfg.MDNS.Enabled {
		port := ln.Addr().(*net.TCPAddr).Port
		shutdown, err := discovery.Advertise(cfg.MDNS.Instance, port)
		if err != nil {
			logger.Warn("mdns advertisement disabled", "err", err)
		} else {
			defer shutdown()
			logger.Info("advertising on LAN", "instance", cfg.MDNS.Instance, "port", port)
		}
	}

	srv := &http.Server{Handler: server.NewHandler(hub, cfg.StaticDir)}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("starting server", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
	}
	return nil
}
