package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusOpen, StatusConfirmed, StatusPaid, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusOpen, StatusConfirmed}:      true,
		{StatusOpen, StatusCancelled}:      true,
		{StatusConfirmed, StatusPaid}:      true,
		{StatusConfirmed, StatusCancelled}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition("BOGUS", StatusOpen))
}

func TestActionGuards(t *testing.T) {
	tests := []struct {
		status   Status
		add      bool
		modify   bool
		void     bool
		checkout bool
		cancel   bool
		terminal bool
	}{
		{status: StatusOpen, add: true, modify: true, cancel: true},
		{status: StatusConfirmed, add: true, void: true, checkout: true, cancel: true},
		{status: StatusPaid, terminal: true},
		{status: StatusCancelled, terminal: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.add, CanAddItems(tt.status))
			assert.Equal(t, tt.modify, CanModifyItems(tt.status))
			assert.Equal(t, tt.void, CanVoidItem(tt.status))
			assert.Equal(t, tt.checkout, CanCheckout(tt.status))
			assert.Equal(t, tt.cancel, CanCancel(tt.status))
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestNextBatchSequence(t *testing.T) {
	assert.Equal(t, 1, NextBatchSequence(nil))
	assert.Equal(t, 4, NextBatchSequence([]Item{
		{BatchSequence: 1}, {BatchSequence: 3, Status: ItemVoided}, {BatchSequence: 2},
	}))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("CONFIRMED")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, s)

	_, err = ParseStatus("confirmed")
	require.Error(t, err)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{err: validationf("bad"), want: KindValidation},
		{err: &OrderNotFoundError{OrderID: 1}, want: KindNotFound},
		{err: &ProductNotFoundError{ProductID: 1}, want: KindNotFound},
		{err: invalidStatef("nope"), want: KindInvalidState},
		{err: ErrConflict, want: KindConflict},
		{err: ErrTimeout, want: KindTimeout},
		{err: ErrLockUnavailable, want: KindTimeout},
		{err: assert.AnError, want: KindInternal},
		{err: nil, want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
	assert.True(t, Retryable(ErrTimeout))
	assert.False(t, Retryable(validationf("bad")))
}

func TestSnapshotIsCopy(t *testing.T) {
	items := []Item{{ID: 1, Quantity: 1, Status: ItemActive}}
	snap := NewSnapshot(Order{ID: 1}, items)
	snap.Items[0].Quantity = 5
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 1, snap.ActiveCount())
}
