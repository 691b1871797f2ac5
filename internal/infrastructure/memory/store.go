package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/notification"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/transaction"
)

// ErrInvalidTx は他ストア・終了済みのトランザクションが渡された場合のエラー
var ErrInvalidTx = errors.New("無効なトランザクションです")

// Store はインメモリの永続化ストア
// event.Repository / notification.Log / transaction.Manager を実装し、
// テストではストアを新規作成するだけで隔離された環境が得られる
//
// 書き込みトランザクションはストア全体のロックを保持するため、
// コマンドは直列化され、クエリが途中状態を観測することはない
type Store struct {
	mu sync.RWMutex

	nextID        event.ID
	events        map[event.ID]*event.Event
	byOrganizer   map[event.Principal][]event.ID
	byParticipant map[event.Principal][]event.ID
	notifications []*notification.Notification
}

// NewStore は空のストアを作成する（IDカウンターは0から開始）
func NewStore() *Store {
	return &Store{
		events:        make(map[event.ID]*event.Event),
		byOrganizer:   make(map[event.Principal][]event.ID),
		byParticipant: make(map[event.Principal][]event.ID),
	}
}

// Tx はインメモリトランザクション
// 変更ごとに取り消し関数を積み、ロールバックで逆順に適用する
// （IDカウンターも巻き戻るため、失敗したコマンドがIDを消費することはない）
type Tx struct {
	store *Store
	undo  []func()
	done  bool
}

// Begin は新しいトランザクションを開始する
func (s *Store) Begin(ctx context.Context) (transaction.Tx, error) {
	s.mu.Lock()
	return &Tx{store: s}, nil
}

// Commit はトランザクションを確定する
func (t *Tx) Commit() error {
	if t.done {
		return ErrInvalidTx
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

// Rollback は積まれた変更を逆順に取り消す
// コミット済みの場合は何もしない（defer tx.Rollback() 用）
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

func (s *Store) unwrap(tx transaction.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s || t.done {
		return nil, ErrInvalidTx
	}
	return t, nil
}

// --- event.Repository ---

// Create は新しいイベントを登録し、次の連番IDを採番する
func (s *Store) Create(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	t, err := s.unwrap(tx)
	if err != nil {
		return err
	}

	id := s.nextID
	s.nextID++

	stored := cloneEvent(e)
	stored.ID = id
	s.events[id] = stored
	s.byOrganizer[e.Organizer] = append(s.byOrganizer[e.Organizer], id)
	e.ID = id

	t.undo = append(t.undo, func() {
		delete(s.events, id)
		ids := s.byOrganizer[e.Organizer]
		s.byOrganizer[e.Organizer] = ids[:len(ids)-1]
		s.nextID = id
	})
	return nil
}

// GetByID はIDからイベントのコピーを取得する
func (s *Store) GetByID(ctx context.Context, id event.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, event.ErrEventNotFound
	}
	return cloneEvent(e), nil
}

// List はイベント一覧をID順に取得する
func (s *Store) List(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*event.Event, 0, limit)
	for id := event.ID(offset); id < s.nextID && len(events) < limit; id++ {
		if e, ok := s.events[id]; ok {
			events = append(events, cloneEvent(e))
		}
	}
	return events, nil
}

// AddParticipant は参加者を追加し、参加者側のインデックスにも追記する
func (s *Store) AddParticipant(ctx context.Context, tx transaction.Tx, id event.ID, p event.Principal, at time.Time) error {
	t, err := s.unwrap(tx)
	if err != nil {
		return err
	}

	e, ok := s.events[id]
	if !ok {
		return event.ErrEventNotFound
	}
	if _, joined := e.Participants[p]; joined {
		return event.ErrAlreadyJoined
	}

	prevUpdated := e.UpdatedAt
	e.Participants[p] = struct{}{}
	e.UpdatedAt = at
	s.byParticipant[p] = append(s.byParticipant[p], id)

	t.undo = append(t.undo, func() {
		delete(e.Participants, p)
		e.UpdatedAt = prevUpdated
		ids := s.byParticipant[p]
		s.byParticipant[p] = ids[:len(ids)-1]
	})
	return nil
}

// MarkRevealed は開催場所を設定し公開済みにする
func (s *Store) MarkRevealed(ctx context.Context, tx transaction.Tx, id event.ID, location string, at time.Time) error {
	t, err := s.unwrap(tx)
	if err != nil {
		return err
	}

	e, ok := s.events[id]
	if !ok {
		return event.ErrEventNotFound
	}
	if e.Revealed {
		return event.ErrAlreadyRevealed
	}

	prevUpdated := e.UpdatedAt
	e.Location = location
	e.Revealed = true
	e.UpdatedAt = at

	t.undo = append(t.undo, func() {
		e.Location = ""
		e.Revealed = false
		e.UpdatedAt = prevUpdated
	})
	return nil
}

// AddConfirmation は出席確認を追加する
func (s *Store) AddConfirmation(ctx context.Context, tx transaction.Tx, id event.ID, p event.Principal, at time.Time) error {
	t, err := s.unwrap(tx)
	if err != nil {
		return err
	}

	e, ok := s.events[id]
	if !ok {
		return event.ErrEventNotFound
	}
	if _, confirmed := e.Confirmations[p]; confirmed {
		return event.ErrAlreadyConfirmed
	}

	prevUpdated := e.UpdatedAt
	e.Confirmations[p] = struct{}{}
	e.UpdatedAt = at

	t.undo = append(t.undo, func() {
		delete(e.Confirmations, p)
		e.UpdatedAt = prevUpdated
	})
	return nil
}

// ListByOrganizer は主催者が作成したイベントIDを作成順に取得する
func (s *Store) ListByOrganizer(ctx context.Context, p event.Principal) ([]event.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]event.ID{}, s.byOrganizer[p]...), nil
}

// ListByParticipant は参加者が参加登録したイベントIDを登録順に取得する
func (s *Store) ListByParticipant(ctx context.Context, p event.Principal) ([]event.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]event.ID{}, s.byParticipant[p]...), nil
}

// --- notification.Log ---

// Append は通知を追記しSeqを採番する（1から開始）
func (s *Store) Append(ctx context.Context, tx transaction.Tx, n *notification.Notification) error {
	t, err := s.unwrap(tx)
	if err != nil {
		return err
	}

	stored := *n
	stored.Seq = int64(len(s.notifications)) + 1
	s.notifications = append(s.notifications, &stored)
	n.Seq = stored.Seq

	t.undo = append(t.undo, func() {
		s.notifications = s.notifications[:len(s.notifications)-1]
	})
	return nil
}

// ListAfter は指定Seqより後の通知をSeq順に取得する
func (s *Store) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*notification.Notification, 0, limit)
	for _, n := range s.notifications {
		if n.Seq <= afterSeq {
			continue
		}
		c := *n
		result = append(result, &c)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// ListUnpublished は未中継の通知をSeq順に取得する
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]*notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*notification.Notification, 0, limit)
	for _, n := range s.notifications {
		if n.PublishedAt != nil {
			continue
		}
		c := *n
		result = append(result, &c)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// MarkPublished は指定Seqの通知を中継済みにする
func (s *Store) MarkPublished(ctx context.Context, seqs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	marked := make(map[int64]struct{}, len(seqs))
	for _, seq := range seqs {
		marked[seq] = struct{}{}
	}
	for _, n := range s.notifications {
		if _, ok := marked[n.Seq]; ok && n.PublishedAt == nil {
			at := now
			n.PublishedAt = &at
		}
	}
	return nil
}

// CountUnpublished は未中継の通知数を返す
func (s *Store) CountUnpublished(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, n := range s.notifications {
		if n.PublishedAt == nil {
			count++
		}
	}
	return count, nil
}

func cloneEvent(e *event.Event) *event.Event {
	c := *e
	c.Participants = make(map[event.Principal]struct{}, len(e.Participants))
	for p := range e.Participants {
		c.Participants[p] = struct{}{}
	}
	c.Confirmations = make(map[event.Principal]struct{}, len(e.Confirmations))
	for p := range e.Confirmations {
		c.Confirmations[p] = struct{}{}
	}
	return &c
}

// インターフェースを満たしているか確認
var (
	_ event.Repository    = (*Store)(nil)
	_ notification.Log    = (*Store)(nil)
	_ transaction.Manager = (*Store)(nil)
)
