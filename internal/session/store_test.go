package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	store := NewStore()
	sess := store.Create()

	require.NotEmpty(t, sess.ID)
	assert.Equal(t, StateIdle, sess.State)
	assert.Empty(t, sess.History)

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestGetUnknownSession(t *testing.T) {
	store := NewStore()
	_, err := store.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAppendPreservesOrder(t *testing.T) {
	store := NewStore()
	sess := store.Create()

	require.NoError(t, store.Append(sess.ID, Message{Role: RoleUser, Content: "공장별 불량률 보여줘"}))
	require.NoError(t, store.Append(sess.ID, Message{Role: RoleAssistant, Content: "어느 공장 기준인가요?"}))

	history, err := store.History(sess.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, RoleAssistant, history[1].Role)
	assert.False(t, history[0].Timestamp.IsZero())
}

func TestHistoryReturnsCopy(t *testing.T) {
	store := NewStore()
	sess := store.Create()
	require.NoError(t, store.Append(sess.ID, Message{Role: RoleUser, Content: "원본"}))

	history, err := store.History(sess.ID)
	require.NoError(t, err)
	history[0].Content = "변조"

	again, err := store.History(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "원본", again[0].Content)
}

func TestStateTransitions(t *testing.T) {
	store := NewStore()
	sess := store.Create()

	require.NoError(t, store.SetState(sess.ID, StateAwaitingConfirmation))
	state, err := store.State(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingConfirmation, state)

	require.NoError(t, store.SetState(sess.ID, StateConfirmed))
	state, err = store.State(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, state)
}

func TestResetClearsHistoryAndState(t *testing.T) {
	store := NewStore()
	sess := store.Create()
	require.NoError(t, store.Append(sess.ID, Message{Role: RoleUser, Content: "질문"}))
	require.NoError(t, store.SetState(sess.ID, StateAwaitingConfirmation))
	_, err := store.IncConfirmationRetries(sess.ID)
	require.NoError(t, err)

	require.NoError(t, store.Reset(sess.ID))

	history, err := store.History(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	state, err := store.State(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ConfirmationRetries)
}

func TestListNewestFirstWithTitles(t *testing.T) {
	store := NewStore()

	older := store.Create()
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Append(older.ID, Message{Role: RoleUser, Content: "연도별 불량률 비교해줘"}))

	newer := store.Create()
	long := "이것은 삼십 글자를 훌쩍 넘기는 아주 아주 긴 사용자 질문 제목입니다"
	require.NoError(t, store.Append(newer.ID, Message{Role: RoleUser, Content: long}))

	summaries := store.List()
	require.Len(t, summaries, 2)
	assert.Equal(t, newer.ID, summaries[0].ID)
	assert.Equal(t, older.ID, summaries[1].ID)
	assert.Equal(t, "연도별 불량률 비교해줘", summaries[1].Title)
	assert.Len(t, []rune(summaries[0].Title), 33, "long titles truncate to 30 runes plus ellipsis")
}

func TestListTitleForEmptySession(t *testing.T) {
	store := NewStore()
	store.Create()

	summaries := store.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, "새 대화", summaries[0].Title)
}

func TestConfirmationRetryCounter(t *testing.T) {
	store := NewStore()
	sess := store.Create()

	n, err := store.IncConfirmationRetries(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.IncConfirmationRetries(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.ResetConfirmationRetries(sess.ID))
	n, err = store.IncConfirmationRetries(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDelete(t *testing.T) {
	store := NewStore()
	sess := store.Create()

	require.NoError(t, store.Delete(sess.ID))
	_, err := store.Get(sess.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Delete(sess.ID), ErrNotFound)
}
