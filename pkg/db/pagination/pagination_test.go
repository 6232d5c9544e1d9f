package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-01-02T03:04:05Z"})
	require.NoError(t, err)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", decoded.ID)
	assert.Equal(t, "2026-01-02T03:04:05Z", decoded.CreatedAt)

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	one, two, three := 1, 2, 3
	extract := func(v *int) string {
		if *v == 2 {
			return "two"
		}
		return "other"
	}

	info := BuildCursorPageInfo([]*int{&one, &two, &three}, 2, extract)
	assert.True(t, info.HasMore)
	assert.Equal(t, "two", info.NextPageToken)

	info = BuildCursorPageInfo([]*int{&one, &two}, 2, extract)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	info = BuildCursorPageInfo[int](nil, 2, extract)
	assert.False(t, info.HasMore)
}
