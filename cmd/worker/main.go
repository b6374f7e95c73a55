package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lodestar-hq/lodestar/internal/queue"
	"github.com/lodestar-hq/lodestar/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lodestar-hq/lodestar/pkg/ai"
	oai "github.com/lodestar-hq/lodestar/pkg/ai/ollama"
	gai "github.com/lodestar-hq/lodestar/pkg/ai/openai"
	"github.com/lodestar-hq/lodestar/pkg/embed"
	"github.com/lodestar-hq/lodestar/pkg/identity"
	"github.com/lodestar-hq/lodestar/pkg/leaselock"
	"github.com/lodestar-hq/lodestar/pkg/logger"
	"github.com/lodestar-hq/lodestar/pkg/logger/console"
	"github.com/lodestar-hq/lodestar/pkg/pipeline"
	"github.com/lodestar-hq/lodestar/pkg/relations"
	"github.com/lodestar-hq/lodestar/pkg/scoring"
	pgxstore "github.com/lodestar-hq/lodestar/pkg/store/pgx"
	"github.com/lodestar-hq/lodestar/pkg/topics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Embedding and confirmation capabilities
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient interface {
		ai.EmbeddingClient
		ai.FormatClient
	}

	switch adapter {
	case "ollama":
		client, err := oai.New(oai.Params{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ConfirmModel:   util.GetEnv("AI_CONFIRM_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			APIKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.New(gai.Params{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			ConfirmModel:   util.GetEnv("AI_CONFIRM_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
		})
	}

	// Init pgx client with pgvector types registered per connection
	pgCfg, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Invalid database URL", "err", err)
	}
	pgCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	st := pgxstore.New(pgConn)

	cacheTTL := time.Duration(util.GetEnvNumeric("EMBED_CACHE_TTL_HOURS", 168)) * time.Hour
	embedder, err := embed.New(aiClient, pgxstore.NewEmbedCache(st, cacheTTL), embed.Config{
		Dimensions:        int(util.GetEnvNumeric("EMBED_DIMENSIONS", 768)),
		RequestsPerSecond: util.GetEnvNumeric("EMBED_RPS", 8),
	})
	if err != nil {
		logger.Fatal("Could not create embedder", "err", err)
	}

	var confirmer ai.ConfirmClient
	if util.GetEnv("AI_CONFIRM_MODEL") != "" {
		confirmer = ai.NewConfirmer(aiClient, 2*time.Minute)
	}

	locks := leaselock.New(pgConn)

	// Engines
	topicEngine, err := topics.NewEngine(st, embedder, topics.DefaultConfig())
	if err != nil {
		logger.Fatal("Could not create topic engine", "err", err)
	}
	scoreEngine, err := scoring.NewEngine(st, embedder, topicEngine, scoring.DefaultConfig())
	if err != nil {
		logger.Fatal("Could not create scoring engine", "err", err)
	}
	linkEngine, err := relations.NewEngine(st, embedder, relations.DefaultConfig())
	if err != nil {
		logger.Fatal("Could not create relations engine", "err", err)
	}
	identityEngine, err := identity.NewEngine(st, embedder, confirmer, locks, identity.DefaultConfig())
	if err != nil {
		logger.Fatal("Could not create identity engine", "err", err)
	}

	p := &pipeline.Pipeline{
		Scoring:      scoreEngine,
		Relations:    linkEngine,
		Identity:     identityEngine,
		Topics:       topicEngine,
		TopicCadence: uint64(util.GetEnvNumeric("TOPIC_CADENCE", 4)),
	}

	if util.GetEnvString("RABBITMQ_HOST", "") != "" {
		runWithQueue(ctx, p)
	} else {
		runWithTicker(ctx, p)
	}
}

// runWithTicker drives the pipeline on a fixed interval when no broker
// is configured.
func runWithTicker(ctx context.Context, p *pipeline.Pipeline) {
	interval := time.Duration(util.GetEnvNumeric("RUN_INTERVAL_MIN", 15)) * time.Minute
	logger.Info("No broker configured, running on interval", "interval", interval)

	t := time.NewTicker(interval)
	defer t.Stop()

	p.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case <-t.C:
			p.Run(ctx)
		}
	}
}

// runWithQueue consumes trigger messages, one at a time across all
// queues, with retry and dead-letter handling.
func runWithQueue(ctx context.Context, p *pipeline.Pipeline) {
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	// prefetch=1 so only one trigger is processed at a time; the
	// engines parallelize internally.
	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()

				err := queue.ProcessTrigger(ctx, p, qm.queueName, qm.msg.Body)
				if err != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", err)
					handleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
				}

				logger.Info("Trigger handled", "queue", qm.queueName, "duration", time.Since(startTime))
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

	// After 10 attempts the message parks in the dead-letter queue.
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := queue.PublishFIFO(ch, dlqName, msg.Body, msg.Headers)
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

	pubErr := queue.PublishFIFO(ch, retryName, msg.Body, headers)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
