package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLong(t *testing.T) *Position {
	t.Helper()
	pos, err := NewPosition("pos-1", validLong(), decimal.NewFromInt(100), time.Now(), 0.74, "adaptive")
	require.NoError(t, err)
	return pos
}

func TestNewPositionCopiesSignalLevels(t *testing.T) {
	pos := openLong(t)

	assert.Equal(t, PositionOpen, pos.Status)
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromFloat(2.45)))
	assert.True(t, pos.TargetPrice.Equal(decimal.NewFromFloat(2.58)))
	assert.True(t, pos.StopPrice.Equal(decimal.NewFromFloat(2.35)))
	assert.Equal(t, pos.EntryQuality, pos.LastQuality)
}

func TestNewPositionRejectsNonPositiveAmount(t *testing.T) {
	_, err := NewPosition("pos-1", validLong(), decimal.Zero, time.Now(), 0.74, "adaptive")
	assert.Error(t, err)
}

func TestTightenStopLong(t *testing.T) {
	pos := openLong(t)

	require.NoError(t, pos.TightenStop(decimal.NewFromFloat(2.40)))
	assert.True(t, pos.StopPrice.Equal(decimal.NewFromFloat(2.40)))

	// moving the stop back down would loosen it
	assert.Error(t, pos.TightenStop(decimal.NewFromFloat(2.36)))
	assert.Error(t, pos.TightenStop(decimal.Zero))
}

func TestTightenTargetLong(t *testing.T) {
	pos := openLong(t)

	require.NoError(t, pos.TightenTarget(decimal.NewFromFloat(2.55)))
	assert.True(t, pos.TargetPrice.Equal(decimal.NewFromFloat(2.55)))

	assert.Error(t, pos.TightenTarget(decimal.NewFromFloat(2.60)))
}

func TestTightenShortDirections(t *testing.T) {
	pos, err := NewPosition("pos-2", validShort(), decimal.NewFromInt(100), time.Now(), 0.6, "fixed")
	require.NoError(t, err)

	// short stops may only fall, targets may only rise
	require.NoError(t, pos.TightenStop(decimal.NewFromFloat(2.50)))
	assert.Error(t, pos.TightenStop(decimal.NewFromFloat(2.60)))

	require.NoError(t, pos.TightenTarget(decimal.NewFromFloat(2.35)))
	assert.Error(t, pos.TightenTarget(decimal.NewFromFloat(2.20)))
}

func TestPnL(t *testing.T) {
	long := openLong(t)

	// qty = 100 / 2.45; pnl = (2.58 - 2.45) * qty
	gain := long.PnL(decimal.NewFromFloat(2.58))
	assert.InDelta(t, 5.306, gain.InexactFloat64(), 0.001)

	loss := long.PnL(decimal.NewFromFloat(2.35))
	assert.True(t, loss.IsNegative())

	flat := long.PnL(long.EntryPrice)
	assert.True(t, flat.IsZero())

	short, err := NewPosition("pos-2", validShort(), decimal.NewFromInt(100), time.Now(), 0.6, "fixed")
	require.NoError(t, err)
	assert.True(t, short.PnL(decimal.NewFromFloat(2.30)).IsPositive())
	assert.True(t, short.PnL(decimal.NewFromFloat(2.55)).IsNegative())
}
