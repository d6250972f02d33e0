package cursor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolve_DefaultsToNowDescending(t *testing.T) {
	before := time.Now().UTC()
	q := Resolve(nil, nil, 0)
	after := time.Now().UTC()

	require.False(t, q.Before)
	require.Equal(t, ">=", q.Sign())
	require.Equal(t, DefaultLimit, q.Limit)
	require.False(t, q.Anchor.Before(before))
	require.False(t, q.Anchor.After(after))
}

func TestResolve_BeforeWinsOverAfter(t *testing.T) {
	b := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)

	q := Resolve(&b, &a, 5)
	require.True(t, q.Before)
	require.Equal(t, "<=", q.Sign())
	require.Equal(t, b, q.Anchor)
	require.Equal(t, 5, q.Limit)
}

func TestResolve_AfterOnly(t *testing.T) {
	a := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	q := Resolve(nil, &a, 3)
	require.False(t, q.Before)
	require.Equal(t, ">=", q.Sign())
	require.Equal(t, a, q.Anchor)
}

func TestResolve_NonPositiveLimitUsesDefault(t *testing.T) {
	require.Equal(t, DefaultLimit, Resolve(nil, nil, -1).Limit)
	require.Equal(t, DefaultLimit, Resolve(nil, nil, 0).Limit)
}

func TestFetchLimit_IsLimitPlusProbeRow(t *testing.T) {
	q := Resolve(nil, nil, 10)
	require.Equal(t, 11, q.FetchLimit())
}

func TestTrim_DropsProbeRowAndReportsNext(t *testing.T) {
	rows := []int{1, 2, 3, 4}

	items, hasNext := Trim(rows, 3)
	require.True(t, hasNext)
	require.Equal(t, []int{1, 2, 3}, items)

	items, hasNext = Trim(rows, 4)
	require.False(t, hasNext)
	require.Len(t, items, 4)

	items, hasNext = Trim([]int{}, 3)
	require.False(t, hasNext)
	require.Empty(t, items)
}
