package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/notification"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/transaction"
)

// notificationRow はDBの行を表す構造体
type notificationRow struct {
	Seq         int64      `db:"seq"`
	Type        string     `db:"type"`
	EventID     int64      `db:"event_id"`
	Payload     []byte     `db:"payload"`
	OccurredAt  time.Time  `db:"occurred_at"`
	PublishedAt *time.Time `db:"published_at"`
}

func (r *notificationRow) toEntity() *notification.Notification {
	return &notification.Notification{
		Seq:         r.Seq,
		Type:        notification.Type(r.Type),
		EventID:     event.ID(r.EventID),
		Payload:     json.RawMessage(r.Payload),
		OccurredAt:  r.OccurredAt,
		PublishedAt: r.PublishedAt,
	}
}

// NotificationLog は通知ログのPostgreSQL実装（アウトボックスパターン）
// published_at が NULL の行が中継待ちを表す
type NotificationLog struct {
	db *sqlx.DB
}

// NewNotificationLog はNotificationLogを作成する
func NewNotificationLog(db *sqlx.DB) *NotificationLog {
	return &NotificationLog{db: db}
}

// Append は通知を追記しSeqを採番する
func (l *NotificationLog) Append(ctx context.Context, tx transaction.Tx, n *notification.Notification) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("無効なトランザクションです")
	}

	query := `
		INSERT INTO notifications (type, event_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4)
		RETURNING seq
	`
	err := sqlxTx.QueryRowContext(ctx, query,
		string(n.Type), int64(n.EventID), []byte(n.Payload), n.OccurredAt,
	).Scan(&n.Seq)
	if err != nil {
		return fmt.Errorf("通知の追記に失敗しました: %w", err)
	}
	return nil
}

// ListAfter は指定Seqより後の通知をSeq順に取得する
func (l *NotificationLog) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]*notification.Notification, error) {
	query := `
		SELECT seq, type, event_id, payload, occurred_at, published_at
		FROM notifications
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2
	`
	var rows []notificationRow
	if err := l.db.SelectContext(ctx, &rows, query, afterSeq, limit); err != nil {
		return nil, fmt.Errorf("通知一覧取得に失敗しました: %w", err)
	}
	return toNotifications(rows), nil
}

// ListUnpublished は未中継の通知をSeq順に取得する
func (l *NotificationLog) ListUnpublished(ctx context.Context, limit int) ([]*notification.Notification, error) {
	query := `
		SELECT seq, type, event_id, payload, occurred_at, published_at
		FROM notifications
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
	`
	var rows []notificationRow
	if err := l.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("未中継通知取得に失敗しました: %w", err)
	}
	return toNotifications(rows), nil
}

// MarkPublished は指定Seqの通知を中継済みにする
func (l *NotificationLog) MarkPublished(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`UPDATE notifications SET published_at = NOW() WHERE seq IN (?)`, seqs)
	if err != nil {
		return fmt.Errorf("クエリ構築に失敗しました: %w", err)
	}
	query = l.db.Rebind(query)

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("中継済み更新に失敗しました: %w", err)
	}
	return nil
}

// CountUnpublished は未中継の通知数を返す
func (l *NotificationLog) CountUnpublished(ctx context.Context) (int64, error) {
	var count int64
	err := l.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE published_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("未中継通知数の取得に失敗しました: %w", err)
	}
	return count, nil
}

func toNotifications(rows []notificationRow) []*notification.Notification {
	result := make([]*notification.Notification, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result
}

// インターフェースを満たしているか確認
var _ notification.Log = (*NotificationLog)(nil)
