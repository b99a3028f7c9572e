package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalhouse/magpie/internal/queue"
	"github.com/signalhouse/magpie/internal/server"
	"github.com/signalhouse/magpie/internal/util"
	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/extraction"
	"github.com/signalhouse/magpie/pkg/learning"
	"github.com/signalhouse/magpie/pkg/leaselock"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/logger/console"
	"github.com/signalhouse/magpie/pkg/normalize"
	pgxstore "github.com/signalhouse/magpie/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	_ "github.com/lib/pq"
)

const staleRecoveryInterval = 10 * time.Minute

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.ExtractQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	pgStore := pgxstore.New(pgConn)

	dict, err := dictionary.NewService(dictionary.NewServiceParams{
		Store: pgStore,
	})
	if err != nil {
		logger.Fatal("Failed to create dictionary service", "err", err)
	}

	normalizer, err := normalize.NewEngine(normalize.NewEngineParams{
		Graph: pgStore,
		Locks: leaselock.New(pgConn),
	})
	if err != nil {
		logger.Fatal("Failed to create normalization engine", "err", err)
	}

	learner, err := learning.NewEngine(learning.NewEngineParams{
		Dictionary: dict,
		Graph:      pgStore,
	})
	if err != nil {
		logger.Fatal("Failed to create learning engine", "err", err)
	}

	providers := server.BuildProviders()

	orchestrator, err := extraction.NewOrchestrator(extraction.NewOrchestratorParams{
		Graph:      pgStore,
		Segments:   pgStore,
		Dictionary: dict,
		Normalizer: normalizer,
		Learner:    learner,
		Providers:  providers,
		Defaults:   server.DefaultExtractionConfig(),
		Progress:   queue.NewTopicProgressSink(ch),
		Parallel:   int(util.GetEnvNumeric("EXTRACTION_PARALLEL", 4)),
	})
	if err != nil {
		logger.Fatal("Failed to create extraction orchestrator", "err", err)
	}

	// Re-queue work orphaned by a crashed worker, then keep checking
	// while this one runs.
	if err := queue.RecoverStaleSegments(ctx, ch, pgStore); err != nil {
		logger.Error("Stale segment recovery failed", "err", err)
	}
	go func() {
		ticker := time.NewTicker(staleRecoveryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := queue.RecoverStaleSegments(ctx, ch, pgStore); err != nil {
					logger.Error("Stale segment recovery failed", "err", err)
				}
			}
		}
	}()

	logger.Info("Listening for messages")

	// Single consumer channel with prefetch=1 so one job is processed
	// at a time; parallelism lives inside the orchestrator.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.ExtractQueue,
		queue.ExtractQueue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.ExtractQueue, "err", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Info("Message channel closed", "queue", queue.ExtractQueue)
					return
				}

				startTime := time.Now()
				logger.Info("Received message", "queue", queue.ExtractQueue)

				processingErr := queue.ProcessExtractMessage(ctx, orchestrator, string(msg.Body))

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", queue.ExtractQueue, "err", processingErr)
					handleProcessingError(consumerCh, msg, queue.ExtractQueue)
				} else {
					if err := msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", queue.ExtractQueue)
				}

				for name, provider := range providers {
					metrics := provider.GetMetrics()
					if metrics.TotalTokens == 0 {
						continue
					}
					aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
					aiHours := int(aiDuration.Hours())
					aiMinutes := int(aiDuration.Minutes()) % 60
					aiSeconds := int(aiDuration.Seconds()) % 60
					logger.Info(
						"AI Metrics",
						"provider", name,
						"input_tokens", metrics.InputTokens,
						"output_tokens", metrics.OutputTokens,
						"total_tokens", metrics.TotalTokens,
						"duration", fmt.Sprintf("%02d:%02d:%02d", aiHours, aiMinutes, aiSeconds),
					)
					provider.ResetMetrics()
				}

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// If message has been retried 10 times, send to dead-letter
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
