package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
)

// Type はライフサイクル通知の種別を表す
type Type string

const (
	TypeEventCreated         Type = "event.created"
	TypeParticipantJoined    Type = "participant.joined"
	TypeLocationRevealed     Type = "location.revealed"
	TypeParticipantConfirmed Type = "participant.confirmed"
)

// Notification はイベントの状態遷移ごとに追記される通知を表す
// Seq はログが採番する単調増加の通し番号
type Notification struct {
	Seq         int64
	Type        Type
	EventID     event.ID
	Payload     json.RawMessage
	OccurredAt  time.Time
	PublishedAt *time.Time // 外部への中継が完了した時刻（未中継はnil）
}

// EventCreatedPayload はイベント作成通知のペイロード
type EventCreatedPayload struct {
	EventID   event.ID        `json:"event_id"`
	Organizer event.Principal `json:"organizer"`
	Name      string          `json:"name"`
	RevealAt  time.Time       `json:"reveal_at"`
	StartAt   time.Time       `json:"start_at"`
}

// ParticipantJoinedPayload は参加登録通知のペイロード
type ParticipantJoinedPayload struct {
	EventID     event.ID        `json:"event_id"`
	Participant event.Principal `json:"participant"`
}

// LocationRevealedPayload は場所公開通知のペイロード
type LocationRevealedPayload struct {
	EventID  event.ID  `json:"event_id"`
	Location string    `json:"location"`
	StartAt  time.Time `json:"start_at"`
}

// ParticipantConfirmedPayload は出席確認通知のペイロード
type ParticipantConfirmedPayload struct {
	EventID     event.ID        `json:"event_id"`
	Participant event.Principal `json:"participant"`
}

// NewEventCreated はイベント作成通知を生成する
func NewEventCreated(e *event.Event, occurredAt time.Time) (*Notification, error) {
	return build(TypeEventCreated, e.ID, occurredAt, EventCreatedPayload{
		EventID:   e.ID,
		Organizer: e.Organizer,
		Name:      e.Name,
		RevealAt:  e.RevealAt,
		StartAt:   e.StartAt,
	})
}

// NewParticipantJoined は参加登録通知を生成する
func NewParticipantJoined(id event.ID, p event.Principal, occurredAt time.Time) (*Notification, error) {
	return build(TypeParticipantJoined, id, occurredAt, ParticipantJoinedPayload{
		EventID:     id,
		Participant: p,
	})
}

// NewLocationRevealed は場所公開通知を生成する
func NewLocationRevealed(e *event.Event, occurredAt time.Time) (*Notification, error) {
	return build(TypeLocationRevealed, e.ID, occurredAt, LocationRevealedPayload{
		EventID:  e.ID,
		Location: e.Location,
		StartAt:  e.StartAt,
	})
}

// NewParticipantConfirmed は出席確認通知を生成する
func NewParticipantConfirmed(id event.ID, p event.Principal, occurredAt time.Time) (*Notification, error) {
	return build(TypeParticipantConfirmed, id, occurredAt, ParticipantConfirmedPayload{
		EventID:     id,
		Participant: p,
	})
}

func build(t Type, id event.ID, occurredAt time.Time, payload interface{}) (*Notification, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("通知ペイロードのシリアライズに失敗: %w", err)
	}
	return &Notification{
		Type:       t,
		EventID:    id,
		Payload:    raw,
		OccurredAt: occurredAt,
	}, nil
}
