package encoder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	s := NewCursorSerializer()

	sortValues := []any{"2024-01-05T00:00:00Z", "report--abc"}
	cursor, err := s.Serialize(sortValues)
	require.NoError(t, err)
	require.NotEmpty(t, cursor)

	decoded, err := s.Deserialize(cursor)
	require.NoError(t, err)
	require.Equal(t, sortValues, decoded)
}

func TestCursorRoundTripNumericValues(t *testing.T) {
	s := NewCursorSerializer()

	cursor, err := s.Serialize([]any{float64(42), "id"})
	require.NoError(t, err)

	decoded, err := s.Deserialize(cursor)
	require.NoError(t, err)
	require.Equal(t, []any{float64(42), "id"}, decoded)
}

func TestSerializeEmptySortValues(t *testing.T) {
	s := NewCursorSerializer()
	_, err := s.Serialize(nil)
	require.Error(t, err)
}

func TestDeserializeInvalidCursor(t *testing.T) {
	s := NewCursorSerializer()

	for _, cursor := range []string{
		"not base64 !!",
		"bm90IGpzb24=", // valid base64, invalid JSON
		"W10=",         // empty tuple
		"IltdIg==",     // JSON but not an array
	} {
		_, err := s.Deserialize(cursor)
		require.ErrorIs(t, err, ErrInvalidCursor, "cursor %q", cursor)
	}
}

func TestPlaintextCursorEncoder(t *testing.T) {
	s := NewCursorSerializerWithEncoder(NoopEncoder{})

	cursor, err := s.Serialize([]any{"2024-01-05T00:00:00Z", "report--abc"})
	require.NoError(t, err)
	require.JSONEq(t, `["2024-01-05T00:00:00Z","report--abc"]`, cursor)

	decoded, err := s.Deserialize(cursor)
	require.NoError(t, err)
	require.Equal(t, []any{"2024-01-05T00:00:00Z", "report--abc"}, decoded)
}

func TestCursorIsOpaqueBase64(t *testing.T) {
	s := NewCursorSerializer()
	cursor, err := s.Serialize([]any{"a"})
	require.NoError(t, err)
	// URL-safe alphabet only, suitable for query parameters.
	require.NotContains(t, cursor, "+")
	require.NotContains(t, cursor, "/")
}
