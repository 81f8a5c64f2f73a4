package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"legalrag/internal/model"
	"legalrag/internal/platform/logger"
	"legalrag/internal/platform/rabbitmq"
)

type MessageStore interface {
	Create(ctx context.Context, message *model.Message) error
}

// TranscriptWorker consumes chat transcript messages and persists them.
type TranscriptWorker struct {
	log       *logger.Logger
	conn      *amqp.Connection
	repo      MessageStore
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTranscriptWorker(log *logger.Logger, conn *amqp.Connection, repo MessageStore, queueName string) *TranscriptWorker {
	return &TranscriptWorker{
		log:       log.With("worker", "TranscriptWorker", "queue", queueName),
		conn:      conn,
		repo:      repo,
		queueName: queueName,
	}
}

func (w *TranscriptWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn("delivery channel closed")
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					w.log.Error("persist transcript failed", "error", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.log.Info("transcript worker started")
	return nil
}

// handle decodes one delivery body and stores it.
func (w *TranscriptWorker) handle(ctx context.Context, body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode transcript failed: %w", err)
	}
	if strings.TrimSpace(msg.SessionID) == "" || strings.TrimSpace(msg.Role) == "" {
		return fmt.Errorf("transcript missing session id or role")
	}
	msg.ID = 0
	return w.repo.Create(ctx, &msg)
}

func (w *TranscriptWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
