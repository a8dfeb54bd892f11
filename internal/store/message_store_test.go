package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
)

func TestSortChronological_TieBreaksByID(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []chat.Message{
		{ID: "c", CreatedAt: t0.Add(time.Second)},
		{ID: "b", CreatedAt: t0},
		{ID: "a", CreatedAt: t0},
	}
	SortChronological(msgs)

	require.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestFilterBetween(t *testing.T) {
	msgs := []chat.Message{
		{ID: "1", SenderID: "cust-1", ReceiverID: "ag-9"},
		{ID: "2", SenderID: "cust-2", ReceiverID: "ag-9"},
		{ID: "3", SenderID: "ag-9", ReceiverID: "cust-1"},
	}
	got := FilterBetween(msgs, "ag-9", "cust-1")

	require.Len(t, got, 2)
	require.Equal(t, "1", got[0].ID)
	require.Equal(t, "3", got[1].ID)
}

func TestGenNewID_IsTimeOrdered(t *testing.T) {
	a := GenNewID()
	time.Sleep(2 * time.Millisecond)
	b := GenNewID()
	require.Less(t, a.String(), b.String())
}
