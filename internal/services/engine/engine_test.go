package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ccc1236/coinsph-trading-bot/config"
	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

type fakeMarket struct {
	price      decimal.Decimal
	priceErr   error
	volatility float64
	volErr     error
	trend      float64
	trendErr   error
}

func (m *fakeMarket) Price(context.Context, domain.Pair) (decimal.Decimal, error) {
	return m.price, m.priceErr
}

func (m *fakeMarket) Volatility(context.Context, domain.Pair) (float64, error) {
	return m.volatility, m.volErr
}

func (m *fakeMarket) Trend(context.Context, domain.Pair, time.Duration) (float64, error) {
	return m.trend, m.trendErr
}

type fakeAccount struct {
	balance decimal.Decimal
	err     error
}

func (a *fakeAccount) Balance(context.Context, string) (decimal.Decimal, error) {
	return a.balance, a.err
}

type decisionLog struct {
	saved []domain.TradeDecision
}

func (l *decisionLog) SaveDecision(d domain.TradeDecision) error {
	l.saved = append(l.saved, d)
	return nil
}

type tradeLog struct {
	events []domain.ClosedPositionEvent
}

func (l *tradeLog) RecordClose(e domain.ClosedPositionEvent) error {
	l.events = append(l.events, e)
	return nil
}

var entryTime = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func testSignal() domain.Signal {
	return domain.Signal{
		Direction:         domain.DirectionLong,
		Pair:              domain.Pair{From: "XRP", To: "PHP"},
		EntryPrice:        decimal.NewFromFloat(2.45),
		TargetPrice:       decimal.NewFromFloat(2.58),
		StopPrice:         decimal.NewFromFloat(2.35),
		Risk:              5,
		ExpectedChangePct: 5.3,
		ReceivedAt:        entryTime,
	}
}

func calmMarket() *fakeMarket {
	return &fakeMarket{
		price:      decimal.NewFromFloat(2.45),
		volatility: 1.5,
	}
}

func newTestEngine(t *testing.T, cfg config.Config, market *fakeMarket) (*Engine, *decisionLog, *tradeLog) {
	t.Helper()

	decisions := &decisionLog{}
	trades := &tradeLog{}
	account := &fakeAccount{balance: decimal.NewFromInt(1000)}

	e, err := New(cfg, zap.NewNop(), market, account, decisions, trades)
	require.NoError(t, err)

	e.now = func() time.Time { return entryTime }
	return e, decisions, trades
}

func defaultConfig() config.Config {
	return config.Default(domain.Pair{From: "XRP", To: "PHP"})
}

func TestEvaluateSignalAccepts(t *testing.T) {
	e, decisions, _ := newTestEngine(t, defaultConfig(), calmMarket())

	decision, err := e.EvaluateSignal(context.Background(), testSignal())
	require.NoError(t, err)

	assert.True(t, decision.Accepted)
	assert.NotEmpty(t, decision.PositionID)
	assert.Greater(t, decision.Assessment.Composite, 0.6)
	assert.True(t, decision.Sizing.Amount.IsPositive())

	positions := e.OpenPositions()
	require.Len(t, positions, 1)
	assert.Equal(t, decision.PositionID, positions[0].ID)
	assert.Equal(t, decision.Assessment.Composite, positions[0].EntryQuality)
	assert.Equal(t, positions[0].EntryQuality, positions[0].LastQuality)

	assert.Equal(t, 1, e.TradesToday(entryTime))
	require.Len(t, decisions.saved, 1)
	assert.True(t, decisions.saved[0].Accepted)
}

func TestEvaluateSignalRejectsHighRisk(t *testing.T) {
	e, decisions, _ := newTestEngine(t, defaultConfig(), calmMarket())

	sig := testSignal()
	sig.Risk = 9

	decision, err := e.EvaluateSignal(context.Background(), sig)
	require.NoError(t, err)

	assert.False(t, decision.Accepted)
	assert.Equal(t, domain.RejectRiskTooHigh, decision.Reason)
	assert.Empty(t, e.OpenPositions())
	assert.Equal(t, 0, e.TradesToday(entryTime))

	// rejections are journaled too
	require.Len(t, decisions.saved, 1)
	assert.False(t, decisions.saved[0].Accepted)
}

func TestEvaluateSignalMalformedFailsFast(t *testing.T) {
	e, decisions, _ := newTestEngine(t, defaultConfig(), calmMarket())

	sig := testSignal()
	sig.StopPrice = decimal.NewFromFloat(2.50) // stop above entry on a long

	_, err := e.EvaluateSignal(context.Background(), sig)
	require.Error(t, err)
	assert.Empty(t, decisions.saved)
}

func TestEvaluateSignalWithoutPriceFails(t *testing.T) {
	market := calmMarket()
	market.priceErr = context.DeadlineExceeded
	e, _, _ := newTestEngine(t, defaultConfig(), market)

	_, err := e.EvaluateSignal(context.Background(), testSignal())
	require.Error(t, err)
	assert.Empty(t, e.OpenPositions())
}

func TestEvaluateSignalMissingVolatilityScoresDegenerate(t *testing.T) {
	market := calmMarket()
	market.volErr = context.DeadlineExceeded
	e, _, _ := newTestEngine(t, defaultConfig(), market)

	decision, err := e.EvaluateSignal(context.Background(), testSignal())
	require.NoError(t, err)

	assert.Zero(t, decision.Assessment.Volatility)
	// remaining sub-scores keep the signal above the quality floor
	assert.True(t, decision.Accepted)
}

func TestEvaluateSignalDailyLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxTradesPerDay = 2
	e, _, _ := newTestEngine(t, cfg, calmMarket())

	for i := 0; i < 2; i++ {
		decision, err := e.EvaluateSignal(context.Background(), testSignal())
		require.NoError(t, err)
		require.True(t, decision.Accepted)
	}

	decision, err := e.EvaluateSignal(context.Background(), testSignal())
	require.NoError(t, err)
	assert.False(t, decision.Accepted)
	assert.Equal(t, domain.RejectDailyLimitReached, decision.Reason)
	assert.Len(t, e.OpenPositions(), 2)
}

func openPosition(t *testing.T, e *Engine) domain.TradeDecision {
	t.Helper()
	decision, err := e.EvaluateSignal(context.Background(), testSignal())
	require.NoError(t, err)
	require.True(t, decision.Accepted)
	return decision
}

func TestTickClosesOnTarget(t *testing.T) {
	market := calmMarket()
	e, _, trades := newTestEngine(t, defaultConfig(), market)
	decision := openPosition(t, e)

	market.price = decimal.NewFromFloat(2.59)
	events := e.Tick(context.Background(), entryTime.Add(time.Hour))

	require.Len(t, events, 1)
	assert.Equal(t, domain.CloseReasonTarget, events[0].Reason)
	assert.Equal(t, decision.PositionID, events[0].PositionID)
	assert.True(t, events[0].PnL.IsPositive())
	assert.Empty(t, e.OpenPositions())

	require.Len(t, trades.events, 1)
	assert.Equal(t, events[0], trades.events[0])
}

func TestTickStopFiresDuringHoldWindow(t *testing.T) {
	market := calmMarket()
	e, _, _ := newTestEngine(t, defaultConfig(), market)
	openPosition(t, e)

	market.price = decimal.NewFromFloat(2.34)
	events := e.Tick(context.Background(), entryTime.Add(5*time.Minute))

	require.Len(t, events, 1)
	assert.Equal(t, domain.CloseReasonStop, events[0].Reason)
	assert.True(t, events[0].PnL.IsNegative())
}

func TestTickHoldWindowSuppressesTarget(t *testing.T) {
	market := calmMarket()
	e, _, _ := newTestEngine(t, defaultConfig(), market)
	openPosition(t, e)

	market.price = decimal.NewFromFloat(2.59)
	events := e.Tick(context.Background(), entryTime.Add(10*time.Minute))

	assert.Empty(t, events)
	assert.Len(t, e.OpenPositions(), 1)

	// the same price closes the position once the hold window has passed
	events = e.Tick(context.Background(), entryTime.Add(time.Hour))
	require.Len(t, events, 1)
	assert.Equal(t, domain.CloseReasonTarget, events[0].Reason)
}

func TestTickHoldWindowSuppressesQualityDegraded(t *testing.T) {
	market := calmMarket()
	e, _, _ := newTestEngine(t, defaultConfig(), market)
	openPosition(t, e)

	// price drifts far from entry: re-scored quality would collapse, but the
	// hold window keeps the position open
	market.price = decimal.NewFromFloat(2.57)
	events := e.Tick(context.Background(), entryTime.Add(10*time.Minute))

	assert.Empty(t, events)
	assert.Len(t, e.OpenPositions(), 1)

	// once the hold window has passed the degradation closes it
	events = e.Tick(context.Background(), entryTime.Add(time.Hour))
	require.Len(t, events, 1)
	assert.Equal(t, domain.CloseReasonQualityDegraded, events[0].Reason)
	assert.Less(t, events[0].FinalQuality, events[0].EntryQuality)
}

func TestTickEmergencyTrendFiresDuringHoldWindow(t *testing.T) {
	market := calmMarket()
	e, _, _ := newTestEngine(t, defaultConfig(), market)
	openPosition(t, e)

	market.price = decimal.NewFromFloat(2.46)
	market.trend = -0.06
	events := e.Tick(context.Background(), entryTime.Add(5*time.Minute))

	require.Len(t, events, 1)
	assert.Equal(t, domain.CloseReasonEmergencyTrend, events[0].Reason)
}

func TestTickQualityDegraded(t *testing.T) {
	market := calmMarket()
	e, _, _ := newTestEngine(t, defaultConfig(), market)
	openPosition(t, e)

	// price drifts just below target: alignment collapses, quality drops
	market.price = decimal.NewFromFloat(2.57)
	events := e.Tick(context.Background(), entryTime.Add(time.Hour))

	require.Len(t, events, 1)
	assert.Equal(t, domain.CloseReasonQualityDegraded, events[0].Reason)
	assert.Less(t, events[0].FinalQuality, events[0].EntryQuality)
}

func TestTickTimeExpired(t *testing.T) {
	cfg := defaultConfig()
	cfg.HighQualityThreshold = 0.9
	market := calmMarket()
	e, _, _ := newTestEngine(t, cfg, market)
	openPosition(t, e)

	// price unchanged, quality intact, but the position has overstayed
	events := e.Tick(context.Background(), entryTime.Add(25*time.Hour))

	require.Len(t, events, 1)
	assert.Equal(t, domain.CloseReasonTimeExpired, events[0].Reason)
}

func TestTickHighQualityExemptFromTimeExit(t *testing.T) {
	market := calmMarket()
	e, _, _ := newTestEngine(t, defaultConfig(), market)
	decision := openPosition(t, e)
	require.GreaterOrEqual(t, decision.Assessment.Composite, 0.7)

	events := e.Tick(context.Background(), entryTime.Add(25*time.Hour))

	assert.Empty(t, events)
	assert.Len(t, e.OpenPositions(), 1)
}

func TestTickSkipsPositionWithoutPrice(t *testing.T) {
	market := calmMarket()
	e, _, _ := newTestEngine(t, defaultConfig(), market)
	openPosition(t, e)

	market.priceErr = context.DeadlineExceeded
	events := e.Tick(context.Background(), entryTime.Add(time.Hour))

	assert.Empty(t, events)
	assert.Len(t, e.OpenPositions(), 1)
}

// slowMarket blocks a single Price call until released, standing in for a
// provider stuck in retry backoff.
type slowMarket struct {
	*fakeMarket

	mu      sync.Mutex
	block   bool
	entered chan struct{}
	release chan struct{}
}

func (m *slowMarket) Price(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	m.mu.Lock()
	shouldBlock := m.block
	m.block = false
	m.mu.Unlock()

	if shouldBlock {
		close(m.entered)
		<-m.release
	}
	return m.fakeMarket.Price(ctx, pair)
}

func TestTickDoesNotBlockSignalEvaluation(t *testing.T) {
	market := &slowMarket{
		fakeMarket: calmMarket(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	e, err := New(defaultConfig(), zap.NewNop(), market, &fakeAccount{balance: decimal.NewFromInt(1000)}, nil, nil)
	require.NoError(t, err)
	e.now = func() time.Time { return entryTime }

	openPosition(t, e)

	market.mu.Lock()
	market.block = true
	market.mu.Unlock()

	tickDone := make(chan []domain.ClosedPositionEvent, 1)
	go func() {
		tickDone <- e.Tick(context.Background(), entryTime.Add(time.Minute))
	}()
	<-market.entered

	// the tick is stalled on market data; a webhook signal must still get through
	sigDone := make(chan error, 1)
	go func() {
		_, err := e.EvaluateSignal(context.Background(), testSignal())
		sigDone <- err
	}()

	select {
	case err := <-sigDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("signal evaluation blocked behind the polling cycle's market fetch")
	}

	close(market.release)
	events := <-tickDone
	assert.Empty(t, events)
	assert.Len(t, e.OpenPositions(), 2)
}

func TestTightenStops(t *testing.T) {
	e, _, _ := newTestEngine(t, defaultConfig(), calmMarket())
	decision := openPosition(t, e)

	// tightening is allowed
	err := e.TightenStops(decision.PositionID, decimal.NewFromFloat(2.55), decimal.NewFromFloat(2.40))
	require.NoError(t, err)

	positions := e.OpenPositions()
	require.Len(t, positions, 1)
	assert.True(t, positions[0].StopPrice.Equal(decimal.NewFromFloat(2.40)))
	assert.True(t, positions[0].TargetPrice.Equal(decimal.NewFromFloat(2.55)))

	// loosening is rejected
	err = e.TightenStops(decision.PositionID, decimal.Decimal{}, decimal.NewFromFloat(2.30))
	require.Error(t, err)

	// zero values leave levels unchanged
	err = e.TightenStops(decision.PositionID, decimal.Decimal{}, decimal.Decimal{})
	require.NoError(t, err)

	err = e.TightenStops("no-such-id", decimal.Decimal{}, decimal.NewFromFloat(2.41))
	require.Error(t, err)
}

func TestCloseShutsDownEngine(t *testing.T) {
	market := calmMarket()
	e, _, trades := newTestEngine(t, defaultConfig(), market)
	openPosition(t, e)

	events := e.Close(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, domain.CloseReasonShutdown, events[0].Reason)
	assert.Len(t, trades.events, 1)

	_, err := e.EvaluateSignal(context.Background(), testSignal())
	assert.ErrorIs(t, err, ErrEngineClosed)

	assert.Empty(t, e.Tick(context.Background(), entryTime.Add(time.Hour)))
	assert.Empty(t, e.Close(context.Background()))
}

func TestCloseFallsBackToEntryPrice(t *testing.T) {
	market := calmMarket()
	e, _, _ := newTestEngine(t, defaultConfig(), market)
	openPosition(t, e)

	market.priceErr = context.DeadlineExceeded
	events := e.Close(context.Background())

	require.Len(t, events, 1)
	assert.True(t, events[0].ExitPrice.Equal(decimal.NewFromFloat(2.45)))
	assert.True(t, events[0].PnL.IsZero())
}
