package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"LojaZap/config"
	"LojaZap/internal/queue"
	"LojaZap/internal/service"
	"LojaZap/pkg/logger"
	"LojaZap/pkg/metrics"
	pkgotel "LojaZap/pkg/otel"
	"LojaZap/pkg/snowflake"
	"LojaZap/pkg/whatsapp"
	"LojaZap/storage"
)

func main() {

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	if err := whatsapp.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize whatsapp gateway client", zap.Error(err))
	}

	otelShutdown, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.Config{
		ServiceName:  config.Cfg.ServiceName + "-worker",
		Environment:  config.Cfg.Environment,
		OTLPEndpoint: config.Cfg.OTLPEndpoint,
		SampleRatio:  config.Cfg.OTelSampler,
	})
	if err != nil {
		logger.Logger.Warn("Failed to initialize OpenTelemetry, telemetry disabled", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()
	}

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize dispatch metrics", zap.Error(err))
	}

	// 消费者入队依赖活动服务
	queue.SetEnqueueService(service.Campaign())

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
		zap.Int("batch_size", config.Cfg.DispatchBatchSize),
		zap.Duration("poll_interval", config.Cfg.DispatchPollInterval),
	)

	// 分发循环：固定节拍批处理队列
	go runDispatchLoop(ctx)

	// 启动所有消费者，阻塞到连接关闭
	queue.StartAllConsumers(ctx)

	logger.Logger.Info("Worker service shutting down gracefully")
}

// runDispatchLoop 按轮询间隔执行批处理，直到收到关闭信号
func runDispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(config.Cfg.DispatchPollInterval)
	defer ticker.Stop()

	dispatcher := service.Dispatch()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := dispatcher.RunBatch(ctx, config.Cfg.DispatchBatchSize)
			if err != nil {
				logger.Logger.Error("Dispatch batch failed", zap.Error(err))
				continue
			}
			if result.Listed > 0 {
				logger.Logger.Info("Dispatch batch finished",
					zap.Int("listed", result.Listed),
					zap.Int("claimed", result.Claimed),
					zap.Int("sent", result.Sent),
					zap.Int("failed", result.Failed),
					zap.Int("skipped", result.Skipped),
					zap.Int("requeued", result.Requeued),
					zap.Int("deferred", result.Deferred),
				)
			}
		}
	}
}
