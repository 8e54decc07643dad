package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2025-06-15T12:00:00Z"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
	assert.Equal(t, "2025-06-15T12:00:00Z", cursor.CreatedAt)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not base64 at all!!!")
	require.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	type row struct{ ID string }
	extract := func(r *row) string { return r.ID }

	t.Run("empty", func(t *testing.T) {
		info := BuildCursorPageInfo(nil, 10, extract)
		assert.False(t, info.HasMore)
		assert.Empty(t, info.NextPageToken)
	})

	t.Run("partial page", func(t *testing.T) {
		info := BuildCursorPageInfo([]*row{{"a"}, {"b"}}, 3, extract)
		assert.False(t, info.HasMore)
		assert.Equal(t, "b", info.NextPageToken)
	})

	t.Run("overflow row means more pages", func(t *testing.T) {
		info := BuildCursorPageInfo([]*row{{"a"}, {"b"}, {"c"}, {"d"}}, 3, extract)
		assert.True(t, info.HasMore)
		assert.Equal(t, "c", info.NextPageToken)
	})
}
