package notification

import (
	"context"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/transaction"
)

// Log は追記専用の通知ログのインターフェース
// 状態遷移と同一トランザクションで追記することで、通知と状態の不整合を防ぐ
type Log interface {
	// Append は通知を追記しSeqを採番する（トランザクション必須）
	Append(ctx context.Context, tx transaction.Tx, n *Notification) error

	// ListAfter は指定Seqより後の通知をSeq順に取得する（外部オブザーバー向け）
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]*Notification, error)

	// ListUnpublished は未中継の通知をSeq順に取得する
	ListUnpublished(ctx context.Context, limit int) ([]*Notification, error)

	// MarkPublished は指定Seqの通知を中継済みにする
	MarkPublished(ctx context.Context, seqs []int64) error

	// CountUnpublished は未中継の通知数を返す
	CountUnpublished(ctx context.Context) (int64, error)
}
