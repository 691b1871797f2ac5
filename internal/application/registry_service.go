package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/notification"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/transaction"
	redisinfra "github.com/sanosuguru/go-flashmob-registry/internal/infrastructure/redis"
	"github.com/sanosuguru/go-flashmob-registry/internal/pkg/logger"
	"github.com/sanosuguru/go-flashmob-registry/internal/pkg/metrics"
)

const (
	detailsCacheTTL = 30 * time.Second

	eventLockTTL        = 10 * time.Second
	eventLockRetries    = 3
	eventLockRetryDelay = 100 * time.Millisecond

	// イベントごとの変更を直列化するストライプドミューテックスの本数
	eventLockStripes = 64
)

// RegistryService はイベントレジストリのコマンド/クエリAPI
// すべてのコマンドは単一トランザクションで全適用または全失敗し、
// 成功時には状態遷移と同一トランザクションで通知を1件追記する
type RegistryService struct {
	txManager transaction.Manager
	eventRepo event.Repository
	notifLog  notification.Log

	lockManager *redisinfra.LockManager  // 複数インスタンス構成向け（省略可）
	cache       *redisinfra.DetailsCache // 詳細スナップショットのキャッシュ（省略可）
	metrics     *metrics.Metrics         // 省略可
	clock       clockwork.Clock

	createMu   sync.Mutex // ID採番の直列化
	eventLocks [eventLockStripes]sync.Mutex
}

// NewRegistryService はRegistryServiceを作成する
// clock が nil の場合は実時計を使用する（テストではフェイククロックを注入）
func NewRegistryService(
	tm transaction.Manager,
	er event.Repository,
	nl notification.Log,
	lm *redisinfra.LockManager,
	cache *redisinfra.DetailsCache,
	m *metrics.Metrics,
	clock clockwork.Clock,
) *RegistryService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RegistryService{
		txManager:   tm,
		eventRepo:   er,
		notifLog:    nl,
		lockManager: lm,
		cache:       cache,
		metrics:     m,
		clock:       clock,
	}
}

type CreateEventInput struct {
	Organizer event.Principal
	Name      string
	RevealAt  time.Time
	StartAt   time.Time
}

// CreateEvent は新しいイベントを作成する
// 事前条件はストアに触れる前に検証されるため、失敗したコマンドがIDを消費することはない
func (s *RegistryService) CreateEvent(ctx context.Context, input CreateEventInput) (*event.Event, error) {
	now := s.clock.Now()

	e, err := event.New(input.Organizer, input.Name, input.RevealAt, input.StartAt, now)
	if err != nil {
		s.countCommand("create_event", "invalid")
		return nil, err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		s.countCommand("create_event", "error")
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.eventRepo.Create(ctx, tx, e); err != nil {
		s.countCommand("create_event", "error")
		return nil, fmt.Errorf("イベント作成に失敗しました: %w", err)
	}
	n, err := notification.NewEventCreated(e, now)
	if err != nil {
		s.countCommand("create_event", "error")
		return nil, err
	}
	if err := s.notifLog.Append(ctx, tx, n); err != nil {
		s.countCommand("create_event", "error")
		return nil, fmt.Errorf("通知の追記に失敗しました: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.countCommand("create_event", "error")
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	s.countCommand("create_event", "success")
	return e, nil
}

type JoinEventInput struct {
	EventID     event.ID
	Participant event.Principal
}

// JoinEvent は参加者をイベントに登録する
// 同じ参加者の2回目の登録は常に ErrAlreadyJoined で失敗する（黙殺しない）
func (s *RegistryService) JoinEvent(ctx context.Context, input JoinEventInput) (*event.Event, error) {
	now := s.clock.Now()

	unlock := s.lockEvent(input.EventID)
	defer unlock()

	release, err := s.acquireEventLock(ctx, input.EventID)
	if err != nil {
		s.countCommand("join_event", "lock_failed")
		return nil, err
	}
	defer release()

	e, err := s.eventRepo.GetByID(ctx, input.EventID)
	if err != nil {
		s.countCommand("join_event", "not_found")
		return nil, err
	}
	if err := e.Join(input.Participant, now); err != nil {
		s.countCommand("join_event", "invalid")
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		s.countCommand("join_event", "error")
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.eventRepo.AddParticipant(ctx, tx, e.ID, input.Participant, now); err != nil {
		s.countCommand("join_event", "error")
		return nil, err
	}
	n, err := notification.NewParticipantJoined(e.ID, input.Participant, now)
	if err != nil {
		s.countCommand("join_event", "error")
		return nil, err
	}
	if err := s.notifLog.Append(ctx, tx, n); err != nil {
		s.countCommand("join_event", "error")
		return nil, fmt.Errorf("通知の追記に失敗しました: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.countCommand("join_event", "error")
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	s.invalidateDetails(ctx, e.ID)
	s.countCommand("join_event", "success")
	return e, nil
}

type RevealLocationInput struct {
	EventID  event.ID
	Caller   event.Principal
	Location string
}

// RevealLocation は開催場所を公開する（主催者のみ、公開時刻以降、一度だけ）
func (s *RegistryService) RevealLocation(ctx context.Context, input RevealLocationInput) (*event.Event, error) {
	now := s.clock.Now()

	unlock := s.lockEvent(input.EventID)
	defer unlock()

	release, err := s.acquireEventLock(ctx, input.EventID)
	if err != nil {
		s.countCommand("reveal_location", "lock_failed")
		return nil, err
	}
	defer release()

	e, err := s.eventRepo.GetByID(ctx, input.EventID)
	if err != nil {
		s.countCommand("reveal_location", "not_found")
		return nil, err
	}
	if err := e.Reveal(input.Caller, input.Location, now); err != nil {
		s.countCommand("reveal_location", "invalid")
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		s.countCommand("reveal_location", "error")
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.eventRepo.MarkRevealed(ctx, tx, e.ID, e.Location, now); err != nil {
		s.countCommand("reveal_location", "error")
		return nil, err
	}
	n, err := notification.NewLocationRevealed(e, now)
	if err != nil {
		s.countCommand("reveal_location", "error")
		return nil, err
	}
	if err := s.notifLog.Append(ctx, tx, n); err != nil {
		s.countCommand("reveal_location", "error")
		return nil, fmt.Errorf("通知の追記に失敗しました: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.countCommand("reveal_location", "error")
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	s.invalidateDetails(ctx, e.ID)
	s.countCommand("reveal_location", "success")
	return e, nil
}

type ConfirmParticipationInput struct {
	EventID     event.ID
	Participant event.Principal
}

// ConfirmParticipation は場所公開後の出席確認を記録する
func (s *RegistryService) ConfirmParticipation(ctx context.Context, input ConfirmParticipationInput) (*event.Event, error) {
	now := s.clock.Now()

	unlock := s.lockEvent(input.EventID)
	defer unlock()

	release, err := s.acquireEventLock(ctx, input.EventID)
	if err != nil {
		s.countCommand("confirm_participation", "lock_failed")
		return nil, err
	}
	defer release()

	e, err := s.eventRepo.GetByID(ctx, input.EventID)
	if err != nil {
		s.countCommand("confirm_participation", "not_found")
		return nil, err
	}
	if err := e.Confirm(input.Participant, now); err != nil {
		s.countCommand("confirm_participation", "invalid")
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		s.countCommand("confirm_participation", "error")
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.eventRepo.AddConfirmation(ctx, tx, e.ID, input.Participant, now); err != nil {
		s.countCommand("confirm_participation", "error")
		return nil, err
	}
	n, err := notification.NewParticipantConfirmed(e.ID, input.Participant, now)
	if err != nil {
		s.countCommand("confirm_participation", "error")
		return nil, err
	}
	if err := s.notifLog.Append(ctx, tx, n); err != nil {
		s.countCommand("confirm_participation", "error")
		return nil, fmt.Errorf("通知の追記に失敗しました: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.countCommand("confirm_participation", "error")
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	s.countCommand("confirm_participation", "success")
	return e, nil
}

// GetEventDetails はイベントの公開スナップショットを取得する
func (s *RegistryService) GetEventDetails(ctx context.Context, id event.ID) (*event.Details, error) {
	// キャッシュから取得を試みる
	if s.cache != nil {
		details, err := s.cache.Get(ctx, id)
		if err == nil {
			logger.Debug("詳細キャッシュヒット", zap.Int64("event_id", int64(id)))
			return details, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	e, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	details := e.Details()

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, details, detailsCacheTTL); cacheErr != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(cacheErr))
		}
	}
	return details, nil
}

// ListEvents はイベント詳細の一覧をID順に取得する
func (s *RegistryService) ListEvents(ctx context.Context, limit, offset int) ([]*event.Details, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	events, err := s.eventRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	details := make([]*event.Details, len(events))
	for i, e := range events {
		details[i] = e.Details()
	}
	return details, nil
}

// IsParticipant は指定の呼び出し元が参加登録済みかを返す
func (s *RegistryService) IsParticipant(ctx context.Context, id event.ID, p event.Principal) (bool, error) {
	e, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return e.IsParticipant(p), nil
}

// HasConfirmed は指定の呼び出し元が出席確認済みかを返す
func (s *RegistryService) HasConfirmed(ctx context.Context, id event.ID, p event.Principal) (bool, error) {
	e, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return e.HasConfirmed(p), nil
}

// ListOrganizedEvents は主催者が作成したイベントIDを作成順に取得する
func (s *RegistryService) ListOrganizedEvents(ctx context.Context, p event.Principal) ([]event.ID, error) {
	return s.eventRepo.ListByOrganizer(ctx, p)
}

// ListJoinedEvents は参加者が参加登録したイベントIDを登録順に取得する
func (s *RegistryService) ListJoinedEvents(ctx context.Context, p event.Principal) ([]event.ID, error) {
	return s.eventRepo.ListByParticipant(ctx, p)
}

// ListNotifications は指定Seqより後のライフサイクル通知をSeq順に取得する
func (s *RegistryService) ListNotifications(ctx context.Context, afterSeq int64, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return s.notifLog.ListAfter(ctx, afterSeq, limit)
}

// lockEvent はプロセス内のイベント単位ロックを取得する
func (s *RegistryService) lockEvent(id event.ID) func() {
	mu := &s.eventLocks[uint64(id)%eventLockStripes]
	mu.Lock()
	return mu.Unlock
}

// acquireEventLock は分散ロックを取得する（LockManager未設定時は何もしない）
func (s *RegistryService) acquireEventLock(ctx context.Context, id event.ID) (func(), error) {
	if s.lockManager == nil {
		return func() {}, nil
	}

	start := time.Now()
	lock, err := s.lockManager.AcquireLockWithRetry(ctx, fmt.Sprintf("event:%d", id), eventLockTTL, eventLockRetries, eventLockRetryDelay)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		s.metrics.DistributedLockDuration.WithLabelValues("acquire", status).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, redisinfra.ErrLockNotAcquired) {
			return nil, fmt.Errorf("イベントが他の操作によって処理中です")
		}
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}

	return func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil {
			logger.Warn("ロック解放エラー", zap.Int64("event_id", int64(id)), zap.Error(releaseErr))
		}
	}, nil
}

func (s *RegistryService) invalidateDetails(ctx context.Context, id event.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		logger.Warn("キャッシュ無効化エラー", zap.Int64("event_id", int64(id)), zap.Error(err))
	}
}

func (s *RegistryService) countCommand(command, status string) {
	if s.metrics != nil {
		s.metrics.RegistryCommandsTotal.WithLabelValues(command, status).Inc()
	}
}
