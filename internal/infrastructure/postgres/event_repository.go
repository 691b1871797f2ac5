package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/transaction"
)

// pqUniqueViolation はPostgreSQLの一意制約違反コード
const pqUniqueViolation = "23505"

// eventRow はDBの行を表す構造体
type eventRow struct {
	ID        int64     `db:"id"`
	Organizer string    `db:"organizer"`
	Name      string    `db:"name"`
	Location  string    `db:"location"`
	RevealAt  time.Time `db:"reveal_at"`
	StartAt   time.Time `db:"start_at"`
	Active    bool      `db:"active"`
	Revealed  bool      `db:"revealed"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// toEntity はeventRowをEventエンティティに変換する（集合は呼び出し側で充填）
func (r *eventRow) toEntity() *event.Event {
	return &event.Event{
		ID:            event.ID(r.ID),
		Organizer:     event.Principal(r.Organizer),
		Name:          r.Name,
		Location:      r.Location,
		RevealAt:      r.RevealAt,
		StartAt:       r.StartAt,
		Active:        r.Active,
		Revealed:      r.Revealed,
		Participants:  make(map[event.Principal]struct{}),
		Confirmations: make(map[event.Principal]struct{}),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// EventRepository はイベントリポジトリのPostgreSQL実装
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository はEventRepositoryを作成する
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create は新しいイベントを作成する
// IDはカウンター行の UPDATE ... RETURNING でトランザクション内に採番するため、
// ロールバック時はIDも消費されず、行ロックにより複数インスタンス間でも直列化される
func (r *EventRepository) Create(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("無効なトランザクションです")
	}

	var id int64
	err := sqlxTx.QueryRowContext(ctx,
		`UPDATE event_id_counter SET next_id = next_id + 1 WHERE id = 0 RETURNING next_id - 1`,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("イベントIDの採番に失敗しました: %w", err)
	}

	query := `
		INSERT INTO events (id, organizer, name, location, reveal_at, start_at, active, revealed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = sqlxTx.ExecContext(ctx, query,
		id, string(e.Organizer), e.Name, e.Location, e.RevealAt, e.StartAt,
		e.Active, e.Revealed, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベント作成に失敗しました: %w", err)
	}

	e.ID = event.ID(id)
	return nil
}

// GetByID はIDからイベントを取得する（参加者・出席確認の集合を含む）
func (r *EventRepository) GetByID(ctx context.Context, id event.ID) (*event.Event, error) {
	query := `SELECT id, organizer, name, location, reveal_at, start_at, active, revealed, created_at, updated_at FROM events WHERE id = $1`

	var row eventRow
	err := r.db.GetContext(ctx, &row, query, int64(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrEventNotFound
		}
		return nil, fmt.Errorf("イベント取得に失敗しました: %w", err)
	}
	e := row.toEntity()

	var participants []string
	err = r.db.SelectContext(ctx, &participants,
		`SELECT participant FROM event_participants WHERE event_id = $1 ORDER BY seq`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("参加者取得に失敗しました: %w", err)
	}
	for _, p := range participants {
		e.Participants[event.Principal(p)] = struct{}{}
	}

	var confirmations []string
	err = r.db.SelectContext(ctx, &confirmations,
		`SELECT participant FROM event_confirmations WHERE event_id = $1`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("出席確認取得に失敗しました: %w", err)
	}
	for _, p := range confirmations {
		e.Confirmations[event.Principal(p)] = struct{}{}
	}

	return e, nil
}

// List はイベント一覧をID順に取得する
func (r *EventRepository) List(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	query := `
		SELECT id, organizer, name, location, reveal_at, start_at, active, revealed, created_at, updated_at
		FROM events
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	var rows []eventRow
	err := r.db.SelectContext(ctx, &rows, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧取得に失敗しました: %w", err)
	}

	events := make([]*event.Event, len(rows))
	for i := range rows {
		e, err := r.GetByID(ctx, event.ID(rows[i].ID))
		if err != nil {
			return nil, err
		}
		events[i] = e
	}
	return events, nil
}

// AddParticipant は参加者を追加する
// 主キー制約が最終防壁となり、一意制約違反は ErrAlreadyJoined に変換する
func (r *EventRepository) AddParticipant(ctx context.Context, tx transaction.Tx, id event.ID, p event.Principal, at time.Time) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("無効なトランザクションです")
	}

	query := `INSERT INTO event_participants (event_id, participant, joined_at) VALUES ($1, $2, $3)`
	_, err := sqlxTx.ExecContext(ctx, query, int64(id), string(p), at)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return event.ErrAlreadyJoined
		}
		return fmt.Errorf("参加者追加に失敗しました: %w", err)
	}

	if err := r.touch(ctx, sqlxTx, id, at); err != nil {
		return err
	}
	return nil
}

// MarkRevealed は開催場所を設定し公開済みにする
func (r *EventRepository) MarkRevealed(ctx context.Context, tx transaction.Tx, id event.ID, location string, at time.Time) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("無効なトランザクションです")
	}

	query := `UPDATE events SET location = $1, revealed = TRUE, updated_at = $2 WHERE id = $3 AND NOT revealed`
	result, err := sqlxTx.ExecContext(ctx, query, location, at, int64(id))
	if err != nil {
		return fmt.Errorf("場所公開に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		if err := sqlxTx.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)`, int64(id)); err != nil {
			return fmt.Errorf("イベント確認に失敗しました: %w", err)
		}
		if !exists {
			return event.ErrEventNotFound
		}
		return event.ErrAlreadyRevealed
	}
	return nil
}

// AddConfirmation は出席確認を追加する
func (r *EventRepository) AddConfirmation(ctx context.Context, tx transaction.Tx, id event.ID, p event.Principal, at time.Time) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("無効なトランザクションです")
	}

	query := `INSERT INTO event_confirmations (event_id, participant, confirmed_at) VALUES ($1, $2, $3)`
	_, err := sqlxTx.ExecContext(ctx, query, int64(id), string(p), at)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return event.ErrAlreadyConfirmed
		}
		return fmt.Errorf("出席確認追加に失敗しました: %w", err)
	}

	if err := r.touch(ctx, sqlxTx, id, at); err != nil {
		return err
	}
	return nil
}

// ListByOrganizer は主催者が作成したイベントIDを作成順に取得する
func (r *EventRepository) ListByOrganizer(ctx context.Context, p event.Principal) ([]event.ID, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM events WHERE organizer = $1 ORDER BY id`, string(p))
	if err != nil {
		return nil, fmt.Errorf("主催イベント一覧取得に失敗しました: %w", err)
	}
	return toEventIDs(ids), nil
}

// ListByParticipant は参加者が参加登録したイベントIDを登録順に取得する
func (r *EventRepository) ListByParticipant(ctx context.Context, p event.Principal) ([]event.ID, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT event_id FROM event_participants WHERE participant = $1 ORDER BY seq`, string(p))
	if err != nil {
		return nil, fmt.Errorf("参加イベント一覧取得に失敗しました: %w", err)
	}
	return toEventIDs(ids), nil
}

// touch はイベントの更新時刻を進める
func (r *EventRepository) touch(ctx context.Context, tx *sqlx.Tx, id event.ID, at time.Time) error {
	result, err := tx.ExecContext(ctx, `UPDATE events SET updated_at = $1 WHERE id = $2`, at, int64(id))
	if err != nil {
		return fmt.Errorf("イベント更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return event.ErrEventNotFound
	}
	return nil
}

func toEventIDs(ids []int64) []event.ID {
	result := make([]event.ID, len(ids))
	for i, id := range ids {
		result[i] = event.ID(id)
	}
	return result
}

// インターフェースを満たしているか確認
var _ event.Repository = (*EventRepository)(nil)
