// Package audit records completed calculations for offline analysis.
//
// Recording never blocks and never fails the calculation that produced
// the record: queue pushes run on a background worker and failures are
// logged and dropped.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Record is one completed calculation: the normalized inputs, the
// per-line traces, the response payload, and the error message when
// the calculation failed.
type Record struct {
	CalculationID string           `json:"calculationId"`
	ClientID      string           `json:"clientId"`
	Model         string           `json:"model"`
	Namespace     string           `json:"namespace"`
	Timestamp     time.Time        `json:"timestamp"`
	DurationMs    int64            `json:"durationMs"`
	Inputs        map[string]any   `json:"inputs,omitempty"`
	Traces        []map[string]any `json:"traces,omitempty"`
	Outputs       json.RawMessage  `json:"outputs,omitempty"`
	ErrorMessage  string           `json:"errorMessage,omitempty"`
}

// Logger records calculations.
type Logger interface {
	Record(ctx context.Context, rec Record)
	Close() error
}

// Nop discards every record.
type Nop struct{}

// Record implements Logger.
func (Nop) Record(context.Context, Record) {}

// Close implements Logger.
func (Nop) Close() error { return nil }

// ZapLogger writes records to the application log. It serves as the
// fallback when no queue is configured.
type ZapLogger struct {
	log *zap.Logger
}

// NewZapLogger creates a log-backed recorder.
func NewZapLogger(log *zap.Logger) *ZapLogger {
	return &ZapLogger{log: log}
}

// Record implements Logger.
func (l *ZapLogger) Record(_ context.Context, rec Record) {
	l.log.Info("calculation audit",
		zap.String("calculationId", rec.CalculationID),
		zap.String("clientId", rec.ClientID),
		zap.String("model", rec.Model),
		zap.String("namespace", rec.Namespace),
		zap.Int64("durationMs", rec.DurationMs),
		zap.String("errorMessage", rec.ErrorMessage))
}

// Close implements Logger.
func (l *ZapLogger) Close() error { return nil }

// QueueLogger pushes records onto a Redis list from a background
// worker. A full buffer drops the record rather than stalling the
// request path.
type QueueLogger struct {
	client *redis.Client
	queue  string
	log    *zap.Logger
	buf    chan Record
	done   chan struct{}
}

// NewQueueLogger creates a queue-backed recorder and starts its worker.
func NewQueueLogger(client *redis.Client, queue string, log *zap.Logger) *QueueLogger {
	l := &QueueLogger{
		client: client,
		queue:  queue,
		log:    log,
		buf:    make(chan Record, 256),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Record implements Logger.
func (l *QueueLogger) Record(_ context.Context, rec Record) {
	select {
	case l.buf <- rec:
	default:
		l.log.Warn("audit buffer full, dropping record",
			zap.String("calculationId", rec.CalculationID))
	}
}

func (l *QueueLogger) run() {
	defer close(l.done)
	for rec := range l.buf {
		l.push(rec)
	}
}

func (l *QueueLogger) push(rec Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		l.log.Warn("audit record marshal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.client.RPush(ctx, l.queue, payload).Err(); err != nil {
		l.log.Warn("audit queue push failed",
			zap.String("queue", l.queue),
			zap.Error(err))
	}
}

// Close drains the buffer and stops the worker.
func (l *QueueLogger) Close() error {
	close(l.buf)
	<-l.done
	return l.client.Close()
}
