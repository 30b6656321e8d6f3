package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
)

type mockStore struct {
	Store
	gotRange Range
	gotLoc   *time.Location
	gotLimit int
}

func (m *mockStore) SalesByDate(_ context.Context, r Range, loc *time.Location) ([]DailySales, error) {
	m.gotRange, m.gotLoc = r, loc
	return []DailySales{{Orders: 1}}, nil
}

func (m *mockStore) SalesByProduct(_ context.Context, r Range, limit int) ([]ProductSales, error) {
	m.gotRange, m.gotLimit = r, limit
	return nil, nil
}

func (m *mockStore) Summary(_ context.Context, r Range) (Summary, error) {
	m.gotRange = r
	return Summary{PaidOrders: 3}, nil
}

var testNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	bangkok := time.FixedZone("ICT", 7*60*60)
	return NewService(store, bangkok, func() time.Time { return testNow })
}

func TestResolve(t *testing.T) {
	svc := newTestService(&mockStore{})
	day := 24 * time.Hour

	tests := []struct {
		name    string
		in      Range
		want    Range
		wantErr bool
	}{
		{name: "default", in: Range{}, want: Range{From: testNow.Add(-30 * day), To: testNow}},
		{name: "only from", in: Range{From: testNow.Add(-day)}, want: Range{From: testNow.Add(-day), To: testNow.Add(29 * day)}},
		{name: "only to", in: Range{To: testNow}, want: Range{From: testNow.Add(-30 * day), To: testNow}},
		{name: "explicit", in: Range{From: testNow.Add(-day), To: testNow}, want: Range{From: testNow.Add(-day), To: testNow}},
		{name: "inverted", in: Range{From: testNow, To: testNow.Add(-day)}, wantErr: true},
		{name: "empty", in: Range{From: testNow, To: testNow}, wantErr: true},
		{name: "too wide", in: Range{From: testNow.Add(-367 * day), To: testNow}, wantErr: true},
		{name: "max span", in: Range{From: testNow.Add(-366 * day), To: testNow}, want: Range{From: testNow.Add(-366 * day), To: testNow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Resolve(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, order.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.From.Equal(got.From), "from %s", got.From)
			assert.True(t, tt.want.To.Equal(got.To), "to %s", got.To)
		})
	}
}

func TestService_PassesLocation(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(store)

	rows, err := svc.SalesByDate(context.Background(), Range{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "ICT", store.gotLoc.String())
	assert.True(t, store.gotRange.To.Equal(testNow))
}

func TestService_ProductLimit(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(store)

	for _, tc := range []struct{ in, want int }{{0, 20}, {5, 5}, {500, 20}} {
		_, err := svc.SalesByProduct(context.Background(), Range{}, tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, store.gotLimit)
	}
}

func TestService_RejectsBadRange(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(store)

	_, err := svc.Summary(context.Background(), Range{From: testNow, To: testNow.Add(-time.Hour)})
	require.ErrorIs(t, err, order.ErrValidation)
	assert.Equal(t, order.KindValidation, order.KindOf(err))

	sum, err := svc.Summary(context.Background(), Range{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.PaidOrders)
}
