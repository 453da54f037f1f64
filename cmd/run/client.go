package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sudoq/internal/client"
	"sudoq/internal/conf"
	"sudoq/internal/flog"
	"sudoq/internal/forward"
	"sudoq/internal/socks"
)

func startClient(cfg *conf.Conf) {
	flog.Infof("Starting client...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		flog.Infof("Shutdown signal received, initiating graceful shutdown...")
		cancel()
	}()

	c, err := client.New(cfg)
	if err != nil {
		flog.Fatalf("Failed to initialize client for %s: %v", cfg.Server.Addr_, err)
	}
	if err := c.Start(ctx); err != nil {
		flog.Fatalf("Client for %s encountered an error: %v", cfg.Server.Addr_, err)
	}
	defer c.Close()

	for _, ss := range cfg.SOCKS5 {
		s, err := socks.New(c)
		if err != nil {
			flog.Fatalf("Failed to initialize SOCKS5: %v", err)
		}
		if err := s.Start(ctx, ss); err != nil {
			flog.Fatalf("SOCKS5 encountered an error: %v", err)
		}
	}
	for _, ff := range cfg.Forward {
		f, err := forward.New(c, ff.Listen.String(), ff.Target)
		if err != nil {
			flog.Fatalf("Failed to initialize Forward: %v", err)
		}
		if err := f.Start(ctx); err != nil {
			flog.Infof("Forward encountered an error: %v", err)
		}
	}

	<-ctx.Done()
}
