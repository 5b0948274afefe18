package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/logger"
)

// MessageWriter は kafka.Writer のうち Publisher が使う部分
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher は予約イベントを Kafka に送信する
// ブローカー障害が続く場合はサーキットブレーカーが開き、送信を即座に失敗させる
type Publisher struct {
	writer  MessageWriter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewWriter はトピック宛ての kafka.Writer を作成する
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewPublisher は Publisher を作成する
func NewPublisher(writer MessageWriter) *Publisher {
	settings := gobreaker.Settings{
		Name:        "kafka-booking-events",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変わりました",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Publisher{
		writer:  writer,
		breaker: gobreaker.NewCircuitBreaker(settings),
		timeout: 5 * time.Second,
	}
}

// Publish はイベントを送信する
// 同じ予約のイベントが同じパーティションに入るよう予約IDをキーにする
func (p *Publisher) Publish(ctx context.Context, event booking.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}

	msg := kafka.Message{
		Key:     []byte(event.BookingID),
		Value:   value,
		Headers: traceHeaders(ctx, string(event.Type)),
		Time:    event.OccurredAt,
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return nil, p.writer.WriteMessages(wctx, msg)
	})
	if err != nil {
		return fmt.Errorf("イベント送信に失敗 (%s): %w", event.Type, err)
	}
	return nil
}

// Close は Writer を閉じる
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// traceHeaders はトレースコンテキストとイベント種別をヘッダーに詰める
func traceHeaders(ctx context.Context, eventType string) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]kafka.Header, 0, len(carrier)+1)
	headers = append(headers, kafka.Header{Key: "event-type", Value: []byte(eventType)})
	for _, k := range carrier.Keys() {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(carrier.Get(k))})
	}
	return headers
}

var _ booking.EventPublisher = (*Publisher)(nil)
