package main

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"slipdash/internal/amqp"
	"slipdash/internal/cli"
	"slipdash/internal/config"
	"slipdash/internal/log"
	"slipdash/internal/services"
	"slipdash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, os.Stdout).WithComponent(log.ComponentWorker)
	cli.LoadAndValidateConfig(logger, cfg)

	logger.Info("Starting slipdash-worker")

	// The worker consumes; it never publishes.
	storeCfg := *cfg
	storeCfg.AMQPURL = ""
	res := cli.InitBackend(context.Background(), logger, &storeCfg)
	if !res.Shared() {
		logger.Error("slipdash-worker needs a shared ledger; set DATA_BACKEND=sqlite", "backend", res.Type.String())
		os.Exit(1)
	}

	sw := worker.NewSyncWorker(res.Ledger, res.Writer, cfg.SyncBatchSize, logger)
	processor := services.NewSyncProcessor(sw, services.SyncProcessorConfig{PollInterval: cfg.SyncInterval}, logger)

	var (
		consumer *amqp.Client
		wg       sync.WaitGroup
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Sync processor shutdown error", log.FieldError, err.Error())
		}
		wg.Wait()
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err.Error())
			}
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	logger.Info("Performing startup sync check...")
	if err := sw.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err.Error())
	}

	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on the periodic sweep", log.FieldError, err.Error())
		} else {
			consumer = c
			wg.Add(1)
			go func() {
				defer wg.Done()
				consume(ctx, consumer, sw, logger)
			}()
		}
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP_URL provided")
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", log.FieldError, err.Error())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

// consume keeps a consumer attached until ctx ends, reconnecting with
// exponential backoff when the broker drops the channel.
func consume(ctx context.Context, c *amqp.Client, sw *worker.SyncWorker, logger *log.Logger) {
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 0

	op := func() error {
		err := c.ConsumeReviewSync(ctx, sw.HandleSyncMessage)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Message consumption interrupted, reconnecting",
			log.FieldError, err.Error(), "retry_in", wait.String())
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(eb, ctx), notify); err != nil && ctx.Err() == nil {
		logger.Error("Message consumption stopped", log.FieldError, err.Error())
	}
}
