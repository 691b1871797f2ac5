package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/notification"
)

// Publisher はライフサイクル通知をKafkaトピックへ発行する
// キーにイベントIDを使うため、同一イベントの通知はパーティション内で順序が保たれる
type Publisher struct {
	writer *kafka.Writer
	topic  string
}

// NewPublisher はPublisherを作成する
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("Kafkaブローカーが設定されていません")
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

// Publish は通知を1件発行する
func (p *Publisher) Publish(ctx context.Context, n *notification.Notification) error {
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(int64(n.EventID), 10)),
		Value: []byte(n.Payload),
		Time:  n.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
			{Key: "seq", Value: []byte(strconv.FormatInt(n.Seq, 10))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("通知の発行に失敗しました: %w", err)
	}
	return nil
}

// Close はライターを閉じる
func (p *Publisher) Close() error {
	return p.writer.Close()
}
