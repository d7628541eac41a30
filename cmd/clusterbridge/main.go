// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Clusterbridge runs the host side of the controller-to-cluster bridge.
// Controllers connect to its Unix socket and submit HTTP requests
// addressed to the cluster API server. Each request is executed over a
// shared pooled connection to the configured cluster, and the response
// (status, headers, body) is returned to the controller as a binary
// envelope correlated by the controller's request id.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/clusterbridge/executor"
	"github.com/bureau-foundation/clusterbridge/lib/clusterclient"
	"github.com/bureau-foundation/clusterbridge/lib/config"
	"github.com/bureau-foundation/clusterbridge/lib/envelope"
	"github.com/bureau-foundation/clusterbridge/lib/version"
	"github.com/bureau-foundation/clusterbridge/transport"
)

// shutdownTimeout is how long in-flight requests get to finish after a
// shutdown signal before they are cancelled.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var clusterURL string
	var socketPath string
	var logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("clusterbridge", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&clusterURL, "cluster-url", "", "cluster API server URL (overrides cluster.url)")
	flagSet.StringVar(&socketPath, "socket", "", "controller socket path (overrides socket.path)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error (overrides log.level)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("clusterbridge")
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if clusterURL != "" {
		cfg.Cluster.URL = clusterURL
	}
	if socketPath != "" {
		cfg.Socket.Path = socketPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, logCloser := newLogger(cfg.Log)
	defer logCloser.Close()

	logger.Info("starting clusterbridge",
		"version", version.Info(),
		"cluster", cfg.Cluster.URL,
		"socket_path", cfg.Socket.Path,
	)

	httpClient, err := clusterclient.New(clusterclient.Config{
		CAFile:              cfg.Cluster.CAFile,
		CertFile:            cfg.Cluster.CertFile,
		KeyFile:             cfg.Cluster.KeyFile,
		ServerName:          cfg.Cluster.ServerName,
		InsecureSkipVerify:  cfg.Cluster.InsecureSkipVerify,
		BearerTokenFile:     cfg.Cluster.BearerTokenFile,
		MaxIdleConns:        cfg.Client.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Client.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.Client.IdleConnTimeout.Std(),
		DialTimeout:         cfg.Client.DialTimeout.Std(),
		TLSHandshakeTimeout: cfg.Client.TLSHandshakeTimeout.Std(),
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("creating cluster client: %w", err)
	}

	rewriter, err := executor.NewRewriter(cfg.Cluster.URL)
	if err != nil {
		return err
	}
	compression, err := envelope.ParseCompression(cfg.Executor.Compression)
	if err != nil {
		return err
	}
	serializer := executor.NewSerializer(executor.SerializerConfig{
		MaxBodySize: cfg.Executor.MaxBodySize,
		Envelope: envelope.Options{
			Compression:     compression,
			MinCompressSize: cfg.Executor.MinCompressSize,
		},
	})

	queue := executor.NewCommandQueue()
	sink := executor.NewSink(cfg.Executor.ResultBuffer)
	requestExecutor, err := executor.New(executor.Config{
		Rewriter:       rewriter,
		Client:         httpClient,
		Serializer:     serializer,
		Sink:           sink,
		Workers:        cfg.Executor.Workers,
		RequestTimeout: cfg.Executor.RequestTimeout.Std(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating executor: %w", err)
	}

	server, err := transport.NewServer(transport.ServerConfig{
		SocketPath:   cfg.Socket.Path,
		AllowedUIDs:  cfg.Socket.AllowedUIDs,
		MaxFrameSize: cfg.Socket.MaxFrameSize,
		Queue:        queue,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating socket server: %w", err)
	}
	router := transport.NewRouter(sink, server, logger)

	signalContext, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Each stage has its own context so shutdown can stop them in
	// order: intake first, then execution, then result routing, and
	// the socket last so late results still reach their controllers.
	serverContext, cancelServer := context.WithCancel(context.Background())
	defer cancelServer()
	executorContext, cancelExecutor := context.WithCancel(context.Background())
	defer cancelExecutor()

	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(serverContext) }()
	runDone := make(chan error, 1)
	go func() { runDone <- requestExecutor.Run(executorContext, queue) }()
	routerDone := make(chan error, 1)
	go func() { routerDone <- router.Run(context.Background()) }()

	var failure error
	serveFinished := false
	select {
	case <-signalContext.Done():
		logger.Info("received shutdown signal")
	case err := <-serveDone:
		serveFinished = true
		failure = fmt.Errorf("socket server stopped: %w", err)
		if err == nil {
			failure = errors.New("socket server stopped unexpectedly")
		}
	}

	queue.Close()
	drained := make(chan struct{})
	go func() {
		if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("request executor failed", "error", err)
		}
		requestExecutor.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(shutdownTimeout):
		logger.Warn("in-flight requests did not finish, cancelling",
			"in_flight", requestExecutor.Stats().InFlight,
			"timeout", shutdownTimeout,
		)
		cancelExecutor()
		<-drained
	}

	sink.Close()
	if err := <-routerDone; err != nil {
		logger.Error("result router failed", "error", err)
	}

	cancelServer()
	if !serveFinished {
		if err := <-serveDone; err != nil {
			logger.Error("socket server failed", "error", err)
		}
	}

	stats := requestExecutor.Stats()
	logger.Info("shutdown complete",
		"received", stats.Received,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"delivery_failures", stats.DeliveryFailures,
	)
	return failure
}
