package payment

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCashReturnsChange(t *testing.T) {
	s := NewSimulator(1, 0, Always(true))

	st, err := s.Settle(context.Background(), MethodCash, decimal.RequireFromString("23.52"), money("30.00"))
	require.NoError(t, err)
	require.NotNil(t, st.ChangeDue)
	assert.Equal(t, "6.48", st.ChangeDue.StringFixed(2))

	st, err = s.Settle(context.Background(), MethodCash, decimal.RequireFromString("23.52"), money("23.52"))
	require.NoError(t, err)
	assert.True(t, st.ChangeDue.IsZero())
}

func TestCashValidation(t *testing.T) {
	s := NewSimulator(1, 0, Always(true))
	total := decimal.RequireFromString("10.00")

	_, err := s.Settle(context.Background(), MethodCash, total, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.Settle(context.Background(), MethodCash, total, money("9.99"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.False(t, apperr.IsRetryable(err))
}

func TestCardDecline(t *testing.T) {
	s := NewSimulator(0.9, 0, Always(false))

	_, err := s.Settle(context.Background(), MethodMockCard, decimal.NewFromInt(5), nil)
	assert.ErrorIs(t, err, apperr.ErrPaymentDeclined)
	assert.True(t, apperr.IsRetryable(err))

	s.Decider = Always(true)
	st, err := s.Settle(context.Background(), MethodMockCard, decimal.NewFromInt(5), nil)
	require.NoError(t, err)
	assert.Nil(t, st.ChangeDue)
}

func TestCardDelayHonoursContext(t *testing.T) {
	s := NewSimulator(1, time.Minute, Always(true))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Settle(ctx, MethodMockCard, decimal.NewFromInt(5), nil)
	assert.ErrorIs(t, err, apperr.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUnknownMethod(t *testing.T) {
	s := NewSimulator(1, 0, Always(true))
	_, err := s.Settle(context.Background(), Method("IOU"), decimal.NewFromInt(1), nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ParseMethod("bitcoin")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	m, err := ParseMethod(" mock_card ")
	require.NoError(t, err)
	assert.Equal(t, MethodMockCard, m)
}

func TestSeededDeciderIsReproducible(t *testing.T) {
	a, b := NewSeededDecider(42), NewSeededDecider(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Approve(0.5), b.Approve(0.5))
	}

	d := NewSeededDecider(7)
	approved := 0
	for i := 0; i < 1000; i++ {
		if d.Approve(0.9) {
			approved++
		}
	}
	assert.InDelta(t, 900, approved, 60)
	assert.False(t, NewSeededDecider(1).Approve(0))
}
