package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sudoq/internal/conf"
	"sudoq/internal/flog"
	"sudoq/internal/server"
)

func startServer(cfg *conf.Conf) {
	flog.Infof("Starting server...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		flog.Infof("Shutdown signal received, initiating graceful shutdown...")
		cancel()
	}()

	srv, err := server.New(cfg)
	if err != nil {
		flog.Fatalf("Failed to initialize server: %v", err)
	}
	if err := srv.Start(ctx); err != nil {
		flog.Fatalf("Server encountered an error: %v", err)
	}
}
