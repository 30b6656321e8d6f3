package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

func TestDecodeDetails(t *testing.T) {
	got, err := decodeDetails([]byte(`{
		"itemId": 9007199254740993,
		"quantity": 3,
		"subtotal": "2198",
		"reason": null,
		"ratio": 0.5,
		"voided": true,
		"tags": [1, "a"],
		"nested": {"batchSequence": 2}
	}`))
	require.NoError(t, err)
	assert.Equal(t, order.Details{
		"itemId":   int64(9007199254740993),
		"quantity": int64(3),
		"subtotal": "2198",
		"reason":   nil,
		"ratio":    0.5,
		"voided":   true,
		"tags":     []any{int64(1), "a"},
		"nested":   map[string]any{"batchSequence": int64(2)},
	}, got)
}

func TestDecodeDetails_Empty(t *testing.T) {
	got, err := decodeDetails(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = decodeDetails([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeDetails_Invalid(t *testing.T) {
	for _, raw := range []string{`[1, 2]`, `{"a":`, `"text"`} {
		_, err := decodeDetails([]byte(raw))
		require.Error(t, err, raw)
	}
}
