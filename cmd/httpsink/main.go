// Command httpsink runs one HTTP sink bridge task: it consumes records
// from Kafka, delivers each to the configured endpoint, and publishes
// the outcome to the response/error topics (SPEC_FULL §1/§2).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/broker"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/credential"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/deadletter"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/errorindex"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/headers"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/httpclient"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/logger"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/metrics"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/pipeline"
	"github.com/verjil-oss/httpsink-bridge/internal/pkg/publisher"
)

// shutdownTimeout bounds how long graceful shutdown waits for the
// operator HTTP server to stop.
const shutdownTimeout = 30 * time.Second

type app struct {
	cfg    *config.Config
	log    *logger.Logger
	source *broker.KafkaBroker
	metrics *metrics.Metrics
	pipe   *pipeline.Pipeline

	opServer *http.Server
}

func main() {
	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, "httpsink: startup failed:", err)
		os.Exit(1)
	}

	if err := a.run(); err != nil {
		a.log.Error("httpsink: exited with error", "error", err.Error())
		os.Exit(1)
	}
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.NewWithRotation(cfg.Logging.Level, cfg.Logging.Format, logger.RotationConfig{
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	m := metrics.New(cfg.Monitoring.Namespace)

	source, err := broker.NewSourceBroker(cfg.Kafka, log)
	if err != nil {
		return nil, fmt.Errorf("httpsink: connecting source broker: %w", err)
	}

	cred, err := credential.New(cfg.Auth, log)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("httpsink: building credential provider: %w", err)
	}

	client := httpclient.New(cfg.Endpoint, cred)
	headerBuilder := headers.New(cfg.Forward)

	var responseProducer broker.Producer = source.Producer(broker.Response)
	responsePub := publisher.NewResponsePublisher(cfg.Response, responseProducer, log)

	errorProducer, err := broker.NewErrorProducer(cfg.ErrorTopic.Driver, source, cfg, log)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("httpsink: building error-topic producer: %w", err)
	}

	deadLetterSink, err := deadletter.New(cfg.ErrorTopic.DeadLetter, log)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("httpsink: building dead-letter sink: %w", err)
	}

	indexMirror, err := errorindex.New(cfg.ErrorTopic.ESAddresses, cfg.ErrorTopic.ESIndex, log)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("httpsink: building error index mirror: %w", err)
	}

	errorPub := publisher.NewErrorPublisher(cfg.ErrorTopic, errorProducer, deadLetterSink, indexMirror, log)

	pipe := pipeline.New(cfg.Behaviour, cfg.Retry, client, headerBuilder, responsePub, errorPub, m, log)

	a := &app{
		cfg:     cfg,
		log:     log,
		source:  source,
		metrics: m,
		pipe:    pipe,
	}
	a.setupOperatorServer()

	return a, nil
}

// setupOperatorServer builds the /healthz, /metrics, /debug/stats
// surface (SPEC_FULL §6 NEW) on a dedicated gin.Engine, separate from
// the data plane so operator traffic never competes with it.
func (a *app) setupOperatorServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/debug/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"app":     a.cfg.App.Name,
			"version": a.cfg.App.Version,
			"topics":  a.cfg.Kafka.Topics,
		})
	})
	if a.cfg.Monitoring.Enabled {
		router.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	}

	a.opServer = &http.Server{
		Addr:    a.cfg.Monitoring.ListenAddr,
		Handler: router,
	}
}

func (a *app) run() error {
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	g, ctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		a.log.Info("httpsink: starting operator server", "address", a.opServer.Addr)
		if err := a.opServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.log.Info("httpsink: consuming", "topics", a.cfg.Kafka.Topics)
		if err := a.source.Consume(ctx, a.cfg.Kafka.Topics, a.pipe.Handle); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigChan:
			a.log.Info("httpsink: received shutdown signal", "signal", sig.String())
			stop()
			return a.shutdown()
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	return g.Wait()
}

func (a *app) shutdown() error {
	a.log.Info("httpsink: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.opServer.Shutdown(ctx); err != nil {
		a.log.Error("httpsink: operator server shutdown failed", "error", err.Error())
	}

	if err := a.source.Close(); err != nil {
		a.log.Error("httpsink: closing source broker failed", "error", err.Error())
	}

	a.log.Info("httpsink: shutdown complete")
	return nil
}
