package encoder

import (
	"encoding/json"
	"errors"
)

var ErrInvalidCursor = errors.New("invalid pagination cursor")

// CursorSerializer round-trips the backing engine's native sort-key
// tuple for a hit. The cursor is opaque to consumers and must never be
// interpreted as a numeric offset.
type CursorSerializer struct {
	encoder Encoder
}

func NewCursorSerializer() *CursorSerializer {
	return NewCursorSerializerWithEncoder(NewBase64Encoder())
}

// NewCursorSerializerWithEncoder builds a serializer over a specific
// encoding; NoopEncoder yields readable plaintext cursors for
// debugging resume points.
func NewCursorSerializerWithEncoder(enc Encoder) *CursorSerializer {
	return &CursorSerializer{encoder: enc}
}

// Serialize encodes the sort values of the last returned hit.
func (s *CursorSerializer) Serialize(sortValues []any) (string, error) {
	if len(sortValues) == 0 {
		return "", errors.New("empty sort values provided for cursor")
	}
	data, err := json.Marshal(sortValues)
	if err != nil {
		return "", err
	}
	return s.encoder.Encode(data)
}

// Deserialize decodes a cursor back into the engine's resume point.
func (s *CursorSerializer) Deserialize(cursor string) ([]any, error) {
	data, err := s.encoder.Decode(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var sortValues []any
	if err := json.Unmarshal(data, &sortValues); err != nil {
		return nil, ErrInvalidCursor
	}
	if len(sortValues) == 0 {
		return nil, ErrInvalidCursor
	}
	return sortValues, nil
}
