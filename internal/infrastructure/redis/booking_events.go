package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/logger"
)

// イベント種別
const (
	EventBookingCreated       = "created"
	EventBookingStatusChanged = "status_changed"
)

// BookingEvent は予約の作成・ステータス変更を通知するメッセージ
type BookingEvent struct {
	EventID        string    `json:"event_id"`
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	BookingID      string    `json:"booking_id"`
	Reference      string    `json:"reference"`
	BlockSeatID    string    `json:"block_seat_id"`
	ClassID        int       `json:"class_id"`
	AgencyID       string    `json:"agency_id"`
	Quantity       int       `json:"quantity"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Currency       string    `json:"currency"`
	TotalAmount    int64     `json:"total_amount"`
}

// NewStreamPublisher は Redis Streams への watermill パブリッシャーを作成する
func NewStreamPublisher(client *redis.Client) (message.Publisher, error) {
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, NewWatermillLogger(logger.Get()))
	if err != nil {
		return nil, fmt.Errorf("パブリッシャー作成に失敗: %w", err)
	}
	return pub, nil
}

// BookingEventPublisher は予約イベントをトピックに発行する
// トピック名は {prefix}.created / {prefix}.status_changed
type BookingEventPublisher struct {
	publisher   message.Publisher
	topicPrefix string
}

func NewBookingEventPublisher(pub message.Publisher, topicPrefix string) *BookingEventPublisher {
	if topicPrefix == "" {
		topicPrefix = "booking"
	}
	return &BookingEventPublisher{publisher: pub, topicPrefix: topicPrefix}
}

// Topic はイベント種別に対応するトピック名を返す
func (p *BookingEventPublisher) Topic(eventType string) string {
	return p.topicPrefix + "." + eventType
}

func (p *BookingEventPublisher) PublishBookingCreated(ctx context.Context, b *booking.Booking) error {
	return p.publish(ctx, newBookingEvent(EventBookingCreated, b, ""))
}

func (p *BookingEventPublisher) PublishBookingStatusChanged(ctx context.Context, b *booking.Booking, from booking.Status) error {
	return p.publish(ctx, newBookingEvent(EventBookingStatusChanged, b, from))
}

func (p *BookingEventPublisher) publish(ctx context.Context, ev BookingEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("イベントのエンコードに失敗: %w", err)
	}
	msg := message.NewMessage(ev.EventID, payload)
	msg.Metadata.Set("type", ev.Type)
	msg.Metadata.Set("reference", ev.Reference)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.Topic(ev.Type), msg); err != nil {
		return fmt.Errorf("イベント発行に失敗: %w", err)
	}
	return nil
}

// Close は内部のパブリッシャーを閉じる
func (p *BookingEventPublisher) Close() error {
	return p.publisher.Close()
}

func newBookingEvent(eventType string, b *booking.Booking, from booking.Status) BookingEvent {
	return BookingEvent{
		EventID:        uuid.NewString(),
		Type:           eventType,
		OccurredAt:     time.Now().UTC(),
		BookingID:      b.ID,
		Reference:      b.Reference,
		BlockSeatID:    b.BlockSeatID,
		ClassID:        b.ClassID,
		AgencyID:       b.AgencyID,
		Quantity:       b.Quantity,
		Status:         string(b.Status),
		PreviousStatus: string(from),
		Currency:       b.PriceSnapshot.Currency,
		TotalAmount:    b.PriceSnapshot.TotalAmount,
	}
}
