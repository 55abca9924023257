package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/payrollflow/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	id := uuid.MustParse("6f1c1c1e-3a7f-4a4b-9a8e-1a2b3c4d5e6f")
	period := models.Period{Month: 3, Year: 2024}

	assert.Equal(t, "payrollflow:summary:6f1c1c1e-3a7f-4a4b-9a8e-1a2b3c4d5e6f:2024-03", SummaryKey(&id, period))
	assert.Equal(t, "payrollflow:summary:all:2024-03", SummaryKey(nil, period))
	assert.Equal(t, "payrollflow:funds:6f1c1c1e-3a7f-4a4b-9a8e-1a2b3c4d5e6f", FundsKey(id))
}

func TestRememberWithoutCache(t *testing.T) {
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := Remember(context.Background(), nil, "k", 0, compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Remember(context.Background(), nil, "k", 0, func() (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestInvalidator(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	c := NewCache(rdb)
	changed, other := uuid.New(), uuid.New()
	period := models.Period{Month: 3, Year: 2026}

	for _, key := range []string{FundsKey(changed), SummaryKey(&changed, period), SummaryKey(nil, period), FundsKey(other), SummaryKey(&other, period)} {
		require.NoError(t, c.Set(ctx, key, 1, time.Minute))
	}

	NewInvalidator(c).PayrollsChanged(ctx, changed)

	assert.False(t, mr.Exists(FundsKey(changed)))
	assert.False(t, mr.Exists(SummaryKey(&changed, period)))
	assert.False(t, mr.Exists(SummaryKey(nil, period)), "cross-company summary includes the company")
	assert.True(t, mr.Exists(FundsKey(other)))
	assert.True(t, mr.Exists(SummaryKey(&other, period)))

	var got int
	err := c.Get(ctx, FundsKey(changed), &got)
	assert.ErrorIs(t, err, ErrMiss)
}
