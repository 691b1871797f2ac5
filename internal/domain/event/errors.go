package event

import "errors"

// Event ドメインのエラー定義
var (
	ErrEventNotFound     = errors.New("イベントが見つかりません")
	ErrInvalidSchedule   = errors.New("公開時刻は現在時刻より後、開催時刻は公開時刻より後である必要があります")
	ErrEventNameRequired = errors.New("イベント名は必須です")
	ErrLocationRequired  = errors.New("開催場所は必須です")
	ErrEventInactive     = errors.New("イベントは有効ではありません")
	ErrAlreadyJoined     = errors.New("既に参加登録されています")
	ErrAlreadyRevealed   = errors.New("開催場所は既に公開されています")
	ErrAlreadyConfirmed  = errors.New("既に出席確認済みです")
	ErrNotOrganizer      = errors.New("イベントの主催者ではありません")
	ErrNotParticipant    = errors.New("イベントの参加者ではありません")
	ErrNotRevealed       = errors.New("開催場所はまだ公開されていません")
	ErrRevealTooEarly    = errors.New("公開時刻より前に開催場所は公開できません")
	ErrEventPassed       = errors.New("イベントは既に開催時刻を過ぎています")
)
