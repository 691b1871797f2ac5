package application

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/event"
	"github.com/sanosuguru/go-flashmob-registry/internal/domain/notification"
	"github.com/sanosuguru/go-flashmob-registry/internal/infrastructure/memory"
)

func ts(sec int64) time.Time {
	return time.Unix(sec, 0)
}

type testEnv struct {
	store *memory.Store
	clock clockwork.FakeClock
	svc   *RegistryService
}

// newTestEnv は t=100 のフェイククロックと空のストアで環境を作る
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(ts(100))
	svc := NewRegistryService(store, store, store, nil, nil, nil, clock)
	return &testEnv{store: store, clock: clock, svc: svc}
}

// advanceTo はフェイククロックを指定のUnix秒まで進める
func (env *testEnv) advanceTo(sec int64) {
	env.clock.Advance(ts(sec).Sub(env.clock.Now()))
}

func (env *testEnv) createEvent(t *testing.T, organizer event.Principal) *event.Event {
	t.Helper()
	e, err := env.svc.CreateEvent(context.Background(), CreateEventInput{
		Organizer: organizer,
		Name:      "渋谷ゲリラダンス",
		RevealAt:  ts(200),
		StartAt:   ts(300),
	})
	require.NoError(t, err)
	return e
}

func TestRegistryService_CreateEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// シナリオA: now=100, reveal=200, start=300 → ID 0, 未公開
	e := env.createEvent(t, "organizer-1")
	assert.Equal(t, event.ID(0), e.ID)
	assert.False(t, e.Revealed)
	assert.True(t, e.Active)

	details, err := env.svc.GetEventDetails(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "渋谷ゲリラダンス", details.Name)
	assert.Empty(t, details.Location)
	assert.Equal(t, 0, details.ParticipantCount)
}

func TestRegistryService_CreateEvent_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		input    CreateEventInput
		expected error
	}{
		{
			name: "公開時刻が過去",
			input: CreateEventInput{
				Organizer: "org-1", Name: "X", RevealAt: ts(50), StartAt: ts(300),
			},
			expected: event.ErrInvalidSchedule,
		},
		{
			name: "開催時刻が公開時刻より前",
			input: CreateEventInput{
				Organizer: "org-1", Name: "X", RevealAt: ts(200), StartAt: ts(150),
			},
			expected: event.ErrInvalidSchedule,
		},
		{
			name: "イベント名未指定",
			input: CreateEventInput{
				Organizer: "org-1", Name: "", RevealAt: ts(200), StartAt: ts(300),
			},
			expected: event.ErrEventNameRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateEvent(ctx, tt.input)
			assert.ErrorIs(t, err, tt.expected)
		})
	}

	// 失敗したコマンドはIDを消費しない
	e := env.createEvent(t, "organizer-1")
	assert.Equal(t, event.ID(0), e.ID)
}

func TestRegistryService_EventIDsAreDense(t *testing.T) {
	env := newTestEnv(t)

	for i := int64(0); i < 5; i++ {
		e := env.createEvent(t, "organizer-1")
		assert.Equal(t, event.ID(i), e.ID)
	}
}

func TestRegistryService_JoinEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")

	// シナリオB: join at t=150 → 参加済み、count=1
	env.advanceTo(150)
	e, err := env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: "P1"})
	require.NoError(t, err)
	assert.Equal(t, 1, e.ParticipantCount())

	joined, err := env.svc.IsParticipant(ctx, 0, "P1")
	require.NoError(t, err)
	assert.True(t, joined)

	details, err := env.svc.GetEventDetails(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, details.ParticipantCount)
}

func TestRegistryService_JoinEvent_Twice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")

	env.advanceTo(150)
	_, err := env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: "P1"})
	require.NoError(t, err)

	_, err = env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: "P1"})
	assert.ErrorIs(t, err, event.ErrAlreadyJoined)
}

func TestRegistryService_JoinEvent_AfterStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")

	// シナリオE: start=300 のイベントに t=305 で参加 → EventPassed
	env.advanceTo(305)
	_, err := env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: "P2"})
	assert.ErrorIs(t, err, event.ErrEventPassed)
}

func TestRegistryService_JoinEvent_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.JoinEvent(context.Background(), JoinEventInput{EventID: 42, Participant: "P1"})
	assert.ErrorIs(t, err, event.ErrEventNotFound)
}

func TestRegistryService_RevealLocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")

	// シナリオC: t=150 では早すぎる
	env.advanceTo(150)
	_, err := env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "organizer-1", Location: "Plaza"})
	assert.ErrorIs(t, err, event.ErrRevealTooEarly)

	// t=210 では成功する
	env.advanceTo(210)
	e, err := env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "organizer-1", Location: "Plaza"})
	require.NoError(t, err)
	assert.True(t, e.Revealed)
	assert.Equal(t, "Plaza", e.Location)

	details, err := env.svc.GetEventDetails(ctx, 0)
	require.NoError(t, err)
	assert.True(t, details.Revealed)
	assert.Equal(t, "Plaza", details.Location)
}

func TestRegistryService_RevealLocation_NotOrganizer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")

	// シナリオF: 主催者以外による公開 → NotOrganizer
	env.advanceTo(210)
	_, err := env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "P2", Location: "X"})
	assert.ErrorIs(t, err, event.ErrNotOrganizer)

	// 失敗後も未公開のまま
	details, err := env.svc.GetEventDetails(ctx, 0)
	require.NoError(t, err)
	assert.False(t, details.Revealed)
	assert.Empty(t, details.Location)
}

func TestRegistryService_RevealLocation_Twice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")

	env.advanceTo(210)
	_, err := env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "organizer-1", Location: "Plaza"})
	require.NoError(t, err)

	_, err = env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "organizer-1", Location: "別の場所"})
	assert.ErrorIs(t, err, event.ErrAlreadyRevealed)

	// 最初の場所が保持される
	details, err := env.svc.GetEventDetails(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Plaza", details.Location)
}

func TestRegistryService_ConfirmParticipation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")

	env.advanceTo(150)
	_, err := env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: "P1"})
	require.NoError(t, err)

	// 公開前の確認は失敗する
	_, err = env.svc.ConfirmParticipation(ctx, ConfirmParticipationInput{EventID: 0, Participant: "P1"})
	assert.ErrorIs(t, err, event.ErrNotRevealed)

	env.advanceTo(210)
	_, err = env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "organizer-1", Location: "Plaza"})
	require.NoError(t, err)

	// シナリオD: t=220 で確認成功
	env.advanceTo(220)
	_, err = env.svc.ConfirmParticipation(ctx, ConfirmParticipationInput{EventID: 0, Participant: "P1"})
	require.NoError(t, err)

	confirmed, err := env.svc.HasConfirmed(ctx, 0, "P1")
	require.NoError(t, err)
	assert.True(t, confirmed)

	// 二重確認は失敗する
	_, err = env.svc.ConfirmParticipation(ctx, ConfirmParticipationInput{EventID: 0, Participant: "P1"})
	assert.ErrorIs(t, err, event.ErrAlreadyConfirmed)
}

func TestRegistryService_ConfirmParticipation_NotParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createEvent(t, "organizer-1")

	env.advanceTo(210)
	_, err := env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "organizer-1", Location: "Plaza"})
	require.NoError(t, err)

	_, err = env.svc.ConfirmParticipation(ctx, ConfirmParticipationInput{EventID: 0, Participant: "P9"})
	assert.ErrorIs(t, err, event.ErrNotParticipant)
}

func TestRegistryService_Listings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createEvent(t, "org-A") // 0
	env.createEvent(t, "org-B") // 1
	env.createEvent(t, "org-A") // 2

	organized, err := env.svc.ListOrganizedEvents(ctx, "org-A")
	require.NoError(t, err)
	assert.Equal(t, []event.ID{0, 2}, organized)

	// 参加していないプリンシパルは空（エラーにはならない）
	joined, err := env.svc.ListJoinedEvents(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, joined)

	env.advanceTo(150)
	for _, id := range []event.ID{1, 0} {
		_, err := env.svc.JoinEvent(ctx, JoinEventInput{EventID: id, Participant: "P1"})
		require.NoError(t, err)
	}

	joined, err = env.svc.ListJoinedEvents(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, []event.ID{1, 0}, joined)
}

func TestRegistryService_Queries_NotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.GetEventDetails(ctx, 0)
	assert.ErrorIs(t, err, event.ErrEventNotFound)

	_, err = env.svc.IsParticipant(ctx, 0, "P1")
	assert.ErrorIs(t, err, event.ErrEventNotFound)

	_, err = env.svc.HasConfirmed(ctx, 0, "P1")
	assert.ErrorIs(t, err, event.ErrEventNotFound)
}

func TestRegistryService_Notifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createEvent(t, "organizer-1")
	env.advanceTo(150)
	_, err := env.svc.JoinEvent(ctx, JoinEventInput{EventID: 0, Participant: "P1"})
	require.NoError(t, err)
	env.advanceTo(210)
	_, err = env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "organizer-1", Location: "Plaza"})
	require.NoError(t, err)
	env.advanceTo(220)
	_, err = env.svc.ConfirmParticipation(ctx, ConfirmParticipationInput{EventID: 0, Participant: "P1"})
	require.NoError(t, err)

	// 成功した遷移ごとに1件、発生順に追記される
	notifications, err := env.svc.ListNotifications(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 4)
	assert.Equal(t, notification.TypeEventCreated, notifications[0].Type)
	assert.Equal(t, notification.TypeParticipantJoined, notifications[1].Type)
	assert.Equal(t, notification.TypeLocationRevealed, notifications[2].Type)
	assert.Equal(t, notification.TypeParticipantConfirmed, notifications[3].Type)

	for i, n := range notifications {
		assert.Equal(t, int64(i+1), n.Seq)
		assert.Equal(t, event.ID(0), n.EventID)
	}
}

func TestRegistryService_FailedCommandAppendsNoNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createEvent(t, "organizer-1")
	env.advanceTo(150)

	_, err := env.svc.RevealLocation(ctx, RevealLocationInput{EventID: 0, Caller: "organizer-1", Location: "Plaza"})
	require.ErrorIs(t, err, event.ErrRevealTooEarly)

	notifications, err := env.svc.ListNotifications(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, notifications, 1) // event.created のみ
}

func TestRegistryService_ListEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.createEvent(t, "organizer-1")
	}

	details, err := env.svc.ListEvents(ctx, 0, 0) // limit 0 → デフォルト20
	require.NoError(t, err)
	require.Len(t, details, 3)
	assert.Equal(t, event.ID(0), details[0].ID)
	assert.Equal(t, event.ID(2), details[2].ID)
}
