package event

import "time"

// ID はイベントの識別子を表す
// 0から始まる連番で、作成順に採番され再利用されない
type ID int64

// Principal は呼び出し元（主催者・参加者）の不透明な識別子を表す
type Principal string

// Event はフラッシュモブイベントのエンティティを表す
// 開催場所は公開時刻まで隠され、公開後に参加者が出席確認を行う
type Event struct {
	ID            ID
	Organizer     Principal
	Name          string
	Location      string // 公開まで空文字、公開時に一度だけ設定される
	RevealAt      time.Time
	StartAt       time.Time
	Active        bool
	Revealed      bool
	Participants  map[Principal]struct{}
	Confirmations map[Principal]struct{}
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New は新しいイベントを作成する
// 公開時刻は現在時刻より後、開催時刻は公開時刻より後でなければならない
// 時刻はすべて呼び出し元から渡される（エンティティ内で時計は参照しない）
func New(organizer Principal, name string, revealAt, startAt, now time.Time) (*Event, error) {
	if !revealAt.After(now) || !startAt.After(revealAt) {
		return nil, ErrInvalidSchedule
	}
	if name == "" {
		return nil, ErrEventNameRequired
	}
	return &Event{
		Organizer:     organizer,
		Name:          name,
		RevealAt:      revealAt,
		StartAt:       startAt,
		Active:        true,
		Revealed:      false,
		Participants:  make(map[Principal]struct{}),
		Confirmations: make(map[Principal]struct{}),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Join は参加者をイベントに登録する
// 同じ参加者の二重登録は常にエラーになる（意図的な重複防止）
func (e *Event) Join(p Principal, now time.Time) error {
	if !e.Active {
		return ErrEventInactive
	}
	if _, ok := e.Participants[p]; ok {
		return ErrAlreadyJoined
	}
	if !now.Before(e.StartAt) {
		return ErrEventPassed
	}
	e.Participants[p] = struct{}{}
	e.UpdatedAt = now
	return nil
}

// Reveal は開催場所を公開する（主催者のみ、公開時刻以降、一度だけ）
func (e *Event) Reveal(caller Principal, location string, now time.Time) error {
	if caller != e.Organizer {
		return ErrNotOrganizer
	}
	if !e.Active {
		return ErrEventInactive
	}
	if e.Revealed {
		return ErrAlreadyRevealed
	}
	if now.Before(e.RevealAt) {
		return ErrRevealTooEarly
	}
	if location == "" {
		return ErrLocationRequired
	}
	e.Location = location
	e.Revealed = true
	e.UpdatedAt = now
	return nil
}

// Confirm は参加者の出席確認を記録する
// 場所公開後かつ開催時刻前で、参加登録済みの場合のみ成功する
func (e *Event) Confirm(p Principal, now time.Time) error {
	if _, ok := e.Participants[p]; !ok {
		return ErrNotParticipant
	}
	if !e.Revealed {
		return ErrNotRevealed
	}
	if _, ok := e.Confirmations[p]; ok {
		return ErrAlreadyConfirmed
	}
	if !now.Before(e.StartAt) {
		return ErrEventPassed
	}
	e.Confirmations[p] = struct{}{}
	e.UpdatedAt = now
	return nil
}

// IsParticipant は指定の呼び出し元が参加登録済みかを返す
func (e *Event) IsParticipant(p Principal) bool {
	_, ok := e.Participants[p]
	return ok
}

// HasConfirmed は指定の呼び出し元が出席確認済みかを返す
func (e *Event) HasConfirmed(p Principal) bool {
	_, ok := e.Confirmations[p]
	return ok
}

// ParticipantCount は参加者数を返す（参加者集合から導出）
func (e *Event) ParticipantCount() int {
	return len(e.Participants)
}

// Details はイベントの公開スナップショットを表す
type Details struct {
	ID               ID        `json:"id"`
	Organizer        Principal `json:"organizer"`
	Name             string    `json:"name"`
	Location         string    `json:"location"`
	RevealAt         time.Time `json:"reveal_at"`
	StartAt          time.Time `json:"start_at"`
	ParticipantCount int       `json:"participant_count"`
	Active           bool      `json:"active"`
	Revealed         bool      `json:"revealed"`
}

// Details はイベントの公開スナップショットを返す
func (e *Event) Details() *Details {
	return &Details{
		ID:               e.ID,
		Organizer:        e.Organizer,
		Name:             e.Name,
		Location:         e.Location,
		RevealAt:         e.RevealAt,
		StartAt:          e.StartAt,
		ParticipantCount: e.ParticipantCount(),
		Active:           e.Active,
		Revealed:         e.Revealed,
	}
}
