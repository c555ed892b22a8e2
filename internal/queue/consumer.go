package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/hotel-reservation/internal/logger"
)

// Consumer drains the event queues into append-only log files: booking
// and payment events go to booking.log, reconciliation alerts to
// reconciliation.log.
type Consumer struct {
	url    string
	logDir string
}

func NewConsumer(url, logDir string) *Consumer {
	if url == "" {
		url = DefaultURL
	}
	if logDir == "" {
		logDir = "logs"
	}
	return &Consumer{url: url, logDir: logDir}
}

// Run connects to the broker and consumes until ctx is done, reconnecting
// with exponential backoff.  Offending messages are rejected without
// requeue so the loop never spins on a poison message.
func (c *Consumer) Run(ctx context.Context) {
	log := logger.WithService("event-consumer")
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Warn("dial broker failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn("consume loop ended; reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("event-consumer: set QoS failed", "error", err)
	}

	type delivery struct {
		queue string
		amqp.Delivery
	}
	merged := make(chan delivery)
	stop := make(chan struct{})
	defer close(stop)
	queues := []string{ReservationCommittedQueue, PaymentRecordedQueue, ReconciliationRequiredQueue}
	done := make(chan struct{}, len(queues))
	for _, q := range queues {
		if err := declare(ch, q); err != nil {
			return err
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go func(q string, msgs <-chan amqp.Delivery) {
			defer func() { done <- struct{}{} }()
			for d := range msgs {
				select {
				case merged <- delivery{queue: q, Delivery: d}:
				case <-stop:
					return
				}
			}
		}(q, msgs)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return errors.New("deliveries channel closed")
		case d := <-merged:
			if err := c.HandleMessage(d.queue, d.Body); err != nil {
				logger.Warn("event-consumer: handle message failed", "queue", d.queue, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage formats one event and appends it to its log file.
func (c *Consumer) HandleMessage(queue string, body []byte) error {
	line, file, err := formatEvent(queue, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.logDir, file), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatEvent(queue string, body []byte) (line, file string, err error) {
	switch queue {
	case ReservationCommittedQueue:
		var ev ReservationCommittedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", "", fmt.Errorf("unmarshal: %w", err)
		}
		who := fmt.Sprintf("guest_id=%d", ev.GuestID)
		if ev.CustomerName != "" {
			who = fmt.Sprintf("customer=%q", ev.CustomerName)
		}
		return fmt.Sprintf("[%s] Reservation committed | reservation_id=%d | %s=%d | %s | stay=%s..%s | status=%s | total=%d | paid=%d | payment_status=%s\n",
			ev.CommittedAt, ev.ReservationID, ev.SubjectKind, ev.SubjectID, who, ev.CheckIn, ev.CheckOut,
			ev.BookingStatus, ev.TotalAmount, ev.TotalPaid, ev.PaymentStatus), "booking.log", nil

	case PaymentRecordedQueue:
		var ev PaymentRecordedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Payment recorded | payment_id=%d | reservation_id=%d | amount=%d | method=%s | txn=%s | balance=%d | payment_status=%s\n",
			ev.RecordedAt, ev.PaymentID, ev.ReservationID, ev.Amount, ev.Method, ev.TransactionID, ev.Balance, ev.PaymentStatus), "booking.log", nil

	case ReconciliationRequiredQueue:
		var ev ReconciliationRequiredEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] RECONCILE %s | reservation_id=%d | %s=%d | amount=%d | method=%s | txn=%s | key=%s | rollback_failed=%t\n",
			ev.OccurredAt, ev.Reason, ev.ReservationID, ev.SubjectKind, ev.SubjectID, ev.Amount, ev.Method,
			ev.TransactionID, ev.IdempotencyKey, ev.RollbackFailed), "reconciliation.log", nil
	}
	return "", "", fmt.Errorf("unknown queue %q", queue)
}
