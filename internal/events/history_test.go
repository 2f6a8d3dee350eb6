package events

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHistoryKeepsOrder(t *testing.T) {
	h := NewHistory(8)

	for i := 0; i < 3; i++ {
		h.Add(HistoryItem{Name: strconv.Itoa(i), Timestamp: time.Unix(int64(i), 0)})
	}

	require.Equal(t, 3, h.Len())
	items := h.GetAll()
	require.Equal(t, "0", items[0].Name)
	require.Equal(t, "2", items[2].Name)
}

func TestHistoryOverwritesOldest(t *testing.T) {
	h := NewHistory(4)

	for i := 0; i < 10; i++ {
		h.Add(HistoryItem{Name: strconv.Itoa(i)})
	}

	require.Equal(t, 4, h.Len())
	items := h.GetAll()
	require.Equal(t, "6", items[0].Name)
	require.Equal(t, "9", items[3].Name)
}
