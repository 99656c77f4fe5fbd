// cmd/brokerd/main.go
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/auth"
	"github.com/FairForge/brokerd/internal/config"
	"github.com/FairForge/brokerd/internal/dispatch"
	"github.com/FairForge/brokerd/internal/protocol"
	"github.com/FairForge/brokerd/internal/system"
	"github.com/FairForge/brokerd/internal/transport/httpapi"
	"github.com/FairForge/brokerd/internal/transport/quic"
	"github.com/FairForge/brokerd/internal/transport/tcp"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfgPath := os.Getenv("IGGY_CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "brokerd.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	sys := system.New(cfg, time.Now, logger)
	if err := sys.Boot(); err != nil {
		logger.Fatal("failed to boot system", zap.Error(err))
	}
	sys.SpawnBackgroundTasks(5*time.Second, time.Minute)

	d := dispatch.New(sys, time.Now, logger)
	tokens := auth.NewTokenIssuer(cfg.HTTP.JWT.Secret, cfg.HTTP.JWT.Expiry)

	var wg sync.WaitGroup
	var tcpServer *tcp.Server
	var quicServer *quic.Server
	var httpServer *httpapi.Server

	if cfg.TCP.Enabled {
		tcpServer = tcp.New(tcp.Config{
			Address:         cfg.TCP.Address,
			MaxFramePayload: protocol.MaxFramePayload,
			KeepAlive:       true,
			KeepAlivePeriod: 30 * time.Second,
			NoDelay:         true,
		}, d, sys.Sessions, sys.Metrics, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tcpServer.ListenAndServe(); err != nil {
				logger.Info("tcp transport stopped", zap.Error(err))
			}
		}()
	}

	if cfg.QUIC.Enabled {
		quicServer = quic.New(quic.Config{
			Address:                  cfg.QUIC.Address,
			MaxFramePayload:          protocol.MaxFramePayload,
			MaxConcurrentBidiStreams: cfg.QUIC.MaxConcurrentBidiStreams,
			SendWindow:               cfg.QUIC.SendWindow,
			ReceiveWindow:            cfg.QUIC.ReceiveWindow,
			KeepAliveInterval:        cfg.QUIC.KeepAliveInterval,
			MaxIdleTimeout:           cfg.QUIC.MaxIdleTimeout,
		}, d, sys.Sessions, sys.Metrics, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := quicServer.ListenAndServe(); err != nil {
				logger.Info("quic transport stopped", zap.Error(err))
			}
		}()
	}

	if cfg.HTTP.Enabled {
		httpServer = httpapi.New(httpapi.Config{
			Address: cfg.HTTP.Address,
			CORS:    cfg.HTTP.CORS,
		}, d, sys.Sessions, tokens, sys.Metrics, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpServer.ListenAndServe(); err != nil {
				logger.Info("http transport stopped", zap.Error(err))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down...")

	if tcpServer != nil {
		_ = tcpServer.Close()
	}
	if quicServer != nil {
		_ = quicServer.Close()
	}
	if httpServer != nil {
		_ = httpServer.Shutdown()
	}
	if err := sys.Shutdown(); err != nil {
		logger.Error("system shutdown reported an error", zap.Error(err))
	}
	wg.Wait()

	fmt.Println("brokerd stopped")
}
