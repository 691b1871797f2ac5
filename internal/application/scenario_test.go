package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/notification"
)

// TestScenario_FullEventFlow はフラッシュモブイベントの完全なフローをテストします
// 作成 → 参加登録 → 場所公開 → 出席確認 → クエリ確認
func TestScenario_FullEventFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 1. イベント作成（t=100, 公開=200, 開催=300）
	e, err := env.svc.CreateEvent(ctx, CreateEventInput{
		Organizer: "organizer-yamada",
		Name:      "渋谷ゲリラダンス",
		RevealAt:  ts(200),
		StartAt:   ts(300),
	})
	require.NoError(t, err)
	assert.Equal(t, event.ID(0), e.ID)

	// 2. 開催前に3人が参加登録
	env.advanceTo(150)
	for _, p := range []event.Principal{"P1", "P2", "P3"} {
		_, err := env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: p})
		require.NoError(t, err)
	}

	details, err := env.svc.GetEventDetails(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, details.ParticipantCount)
	assert.Empty(t, details.Location) // 公開前は場所が読めない

	// 3. 公開時刻後に主催者が場所を公開
	env.advanceTo(210)
	_, err = env.svc.RevealLocation(ctx, RevealLocationInput{
		EventID: 0, Caller: "organizer-yamada", Location: "渋谷スクランブル交差点",
	})
	require.NoError(t, err)

	// 4. 参加者のうち2人が出席確認
	env.advanceTo(220)
	for _, p := range []event.Principal{"P1", "P3"} {
		_, err := env.svc.ConfirmParticipation(ctx, ConfirmParticipationInput{EventID: 0, Participant: p})
		require.NoError(t, err)
	}

	// 5. 状態確認
	details, err = env.svc.GetEventDetails(ctx, 0)
	require.NoError(t, err)
	assert.True(t, details.Revealed)
	assert.Equal(t, "渋谷スクランブル交差点", details.Location)
	assert.Equal(t, 3, details.ParticipantCount)

	confirmed, err := env.svc.HasConfirmed(ctx, 0, "P2")
	require.NoError(t, err)
	assert.False(t, confirmed)

	// 6. 遷移ごとに通知が1件ずつ、発生順に並ぶ
	notifications, err := env.svc.ListNotifications(ctx, 0, 20)
	require.NoError(t, err)
	require.Len(t, notifications, 7) // created + join*3 + revealed + confirm*2
	assert.Equal(t, notification.TypeEventCreated, notifications[0].Type)
	assert.Equal(t, notification.TypeLocationRevealed, notifications[4].Type)
}

// TestScenario_ConfirmationsAreSubsetOfParticipants は出席確認が常に参加者の部分集合であることを確認します
func TestScenario_ConfirmationsAreSubsetOfParticipants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")

	env.advanceTo(150)
	_, err := env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: "P1"})
	require.NoError(t, err)

	env.advanceTo(210)
	_, err = env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "organizer-1", Location: "Plaza"})
	require.NoError(t, err)

	// 参加していない P2 は確認できない
	_, err = env.svc.ConfirmParticipation(ctx, ConfirmParticipationInput{EventID: 0, Participant: "P2"})
	assert.ErrorIs(t, err, event.ErrNotParticipant)

	_, err = env.svc.ConfirmParticipation(ctx, ConfirmParticipationInput{EventID: 0, Participant: "P1"})
	require.NoError(t, err)

	e, err := env.store.GetByID(ctx, 0)
	require.NoError(t, err)
	for p := range e.Confirmations {
		_, joined := e.Participants[p]
		assert.True(t, joined, "confirmation without participation: %s", p)
	}
}

// TestScenario_ConcurrentJoins は複数参加者が同時に参加登録するシナリオ
func TestScenario_ConcurrentJoins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")
	env.advanceTo(150)

	const numParticipants = 50
	var wg sync.WaitGroup
	var successCount int32

	for i := 0; i < numParticipants; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.svc.JoinEvent(ctx, JoinEventInput{
				EventID:     0,
				Participant: event.Principal(fmt.Sprintf("user-%03d", n)),
			})
			if err == nil {
				atomic.AddInt32(&successCount, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(numParticipants), successCount)

	details, err := env.svc.GetEventDetails(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, numParticipants, details.ParticipantCount)
}

// TestScenario_ConcurrentDuplicateJoin は同一参加者の同時二重登録が1回だけ成功することを確認します
func TestScenario_ConcurrentDuplicateJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")
	env.advanceTo(150)

	const attempts = 20
	var wg sync.WaitGroup
	var successCount, duplicateCount int32

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: "P1"})
			switch {
			case err == nil:
				atomic.AddInt32(&successCount, 1)
			case err == event.ErrAlreadyJoined:
				atomic.AddInt32(&duplicateCount, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount)
	assert.Equal(t, int32(attempts-1), duplicateCount)

	details, err := env.svc.GetEventDetails(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, details.ParticipantCount)
}

// TestScenario_ConcurrentCreates は同時作成でもIDが0,1,2,…と密に採番されることを確認します
func TestScenario_ConcurrentCreates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const numEvents = 20
	var wg sync.WaitGroup
	ids := make(chan event.ID, numEvents)

	for i := 0; i < numEvents; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			e, err := env.svc.CreateEvent(ctx, CreateEventInput{
				Organizer: event.Principal(fmt.Sprintf("org-%02d", n)),
				Name:      fmt.Sprintf("イベント%02d", n),
				RevealAt:  ts(200),
				StartAt:   ts(300),
			})
			if err == nil {
				ids <- e.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[event.ID]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	require.Len(t, seen, numEvents)
	for i := event.ID(0); i < numEvents; i++ {
		assert.True(t, seen[i], "missing id %d", i)
	}
}

// TestScenario_LateJoinerCannotConfirm は開催時刻後の参加・確認が拒否されることを確認します
func TestScenario_LateJoinerCannotConfirm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")

	env.advanceTo(150)
	_, err := env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: "P1"})
	require.NoError(t, err)

	env.advanceTo(210)
	_, err = env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "organizer-1", Location: "Plaza"})
	require.NoError(t, err)

	// 開催時刻ちょうどでも拒否される（now < eventTime が条件）
	env.advanceTo(300)
	_, err = env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: "P2"})
	assert.ErrorIs(t, err, event.ErrEventPassed)

	_, err = env.svc.ConfirmParticipation(ctx, ConfirmParticipationInput{EventID: 0, Participant: "P1"})
	assert.ErrorIs(t, err, event.ErrEventPassed)
}
