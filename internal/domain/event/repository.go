package event

import (
	"context"
	"time"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/transaction"
)

// Repository はイベントリポジトリのインターフェース
// 変更系は差分を書き込む（エンティティ全体を上書きしない）
type Repository interface {
	// Create は新しいイベントを作成し、トランザクション内で次の連番IDを採番する
	Create(ctx context.Context, tx transaction.Tx, e *Event) error

	// GetByID はIDからイベントを取得する（参加者・出席確認の集合を含む）
	GetByID(ctx context.Context, id ID) (*Event, error)

	// List はイベント一覧をID順に取得する
	List(ctx context.Context, limit, offset int) ([]*Event, error)

	// AddParticipant は参加者を追加する（トランザクション必須）
	AddParticipant(ctx context.Context, tx transaction.Tx, id ID, p Principal, at time.Time) error

	// MarkRevealed は開催場所を設定し公開済みにする（トランザクション必須）
	MarkRevealed(ctx context.Context, tx transaction.Tx, id ID, location string, at time.Time) error

	// AddConfirmation は出席確認を追加する（トランザクション必須）
	AddConfirmation(ctx context.Context, tx transaction.Tx, id ID, p Principal, at time.Time) error

	// ListByOrganizer は主催者が作成したイベントIDを作成順に取得する
	ListByOrganizer(ctx context.Context, p Principal) ([]ID, error)

	// ListByParticipant は参加者が参加登録したイベントIDを登録順に取得する
	ListByParticipant(ctx context.Context, p Principal) ([]ID, error)
}
