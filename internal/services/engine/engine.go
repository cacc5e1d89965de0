// Package engine owns the position lifecycle: it admits signals through the
// gate, sizes accepted ones, and re-evaluates every open position on each
// polling cycle until an exit trigger closes it.
//
// A single mutex serializes all engine-state mutation, so a signal arriving
// while a poll cycle is mid-evaluation cannot interleave with it. The engine
// performs no network I/O of its own; market data and balances come from
// collaborators that have already fetched them.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ccc1236/coinsph-trading-bot/config"
	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/gate"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/scorer"
	"github.com/ccc1236/coinsph-trading-bot/internal/services/sizing"
)

// ErrEngineClosed is returned by EvaluateSignal after Close.
var ErrEngineClosed = errors.New("engine is closed")

// MarketData supplies already-fetched market inputs for a pair.
type MarketData interface {
	// Price returns the latest market price.
	Price(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
	// Volatility returns recent volatility as a percentage of price.
	Volatility(ctx context.Context, pair domain.Pair) (float64, error)
	// Trend returns the fractional price change over the lookback window.
	Trend(ctx context.Context, pair domain.Pair, lookback time.Duration) (float64, error)
}

// Account exposes the available quote balance.
type Account interface {
	Balance(ctx context.Context, currency string) (decimal.Decimal, error)
}

type decisionWriter interface {
	SaveDecision(decision domain.TradeDecision) error
}

type tradeRecorder interface {
	RecordClose(event domain.ClosedPositionEvent) error
}

// Engine is the signal evaluation and position lifecycle engine.
type Engine struct {
	cfg       config.Config
	logger    *zap.Logger
	scorer    *scorer.Scorer
	strategy  sizing.Strategy
	gate      *gate.Gate
	counter   *DailyCounter
	market    MarketData
	account   Account
	decisions decisionWriter
	trades    tradeRecorder

	mu        sync.Mutex
	positions map[string]*domain.Position
	closed    bool
	now       func() time.Time
}

// New assembles an engine. decisions and trades may be nil; persistence is
// then skipped.
func New(
	cfg config.Config,
	logger *zap.Logger,
	market MarketData,
	account Account,
	decisions decisionWriter,
	trades tradeRecorder,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	strategy, err := sizing.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sizing strategy")
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		scorer:    scorer.New(cfg.QualityWeights, cfg.IdealRiskReward),
		strategy:  strategy,
		gate:      gate.New(cfg),
		counter:   NewDailyCounter(cfg.DailyWindow),
		market:    market,
		account:   account,
		decisions: decisions,
		trades:    trades,
		positions: make(map[string]*domain.Position),
		now:       time.Now,
	}, nil
}

// EvaluateSignal scores, gates and sizes one incoming signal. An accepted
// signal opens an in-memory position and increments the daily counter; the
// returned decision tells the execution collaborator what to place. A
// rejection is a normal decision, not an error. Malformed signals are the
// one input that fails fast.
func (e *Engine) EvaluateSignal(ctx context.Context, sig domain.Signal) (domain.TradeDecision, error) {
	if err := sig.Validate(); err != nil {
		return domain.TradeDecision{}, errors.Wrap(err, "malformed signal")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.TradeDecision{}, ErrEngineClosed
	}

	now := e.now()

	price, err := e.market.Price(ctx, sig.Pair)
	if err != nil {
		return domain.TradeDecision{}, errors.Wrapf(err, "no market price for %s", sig.Pair.String())
	}

	// missing volatility is a degenerate input, not an error: the volatility
	// sub-score becomes 0 and the signal is simply scored worse
	volatility, err := e.market.Volatility(ctx, sig.Pair)
	if err != nil {
		e.logger.Warn("volatility unavailable, scoring it as degenerate",
			zap.String("pair", sig.Pair.String()), zap.Error(err))
		volatility = -1
	}

	assessment := e.scorer.Score(sig, price, volatility)

	result := e.gate.Admit(sig, assessment, e.counter.Count(now), price)
	if !result.Accepted {
		decision := domain.TradeDecision{
			Reason:     result.Reason,
			Assessment: assessment,
			Pair:       sig.Pair.String(),
			DecidedAt:  now,
		}
		e.logger.Info("signal rejected",
			zap.String("pair", sig.Pair.String()),
			zap.String("reason", string(result.Reason)),
			zap.Float64("quality", assessment.Composite))
		e.saveDecision(decision)
		return decision, nil
	}

	balance, err := e.account.Balance(ctx, sig.Pair.To)
	if err != nil {
		return domain.TradeDecision{}, errors.Wrapf(err, "failed to get %s balance", sig.Pair.To)
	}

	trend, err := e.market.Trend(ctx, sig.Pair, time.Duration(e.cfg.TrendLookbackHours)*time.Hour)
	if err != nil {
		e.logger.Warn("trend unavailable, sizing without it",
			zap.String("pair", sig.Pair.String()), zap.Error(err))
		trend = 0
	}

	sized := e.strategy.Size(sizing.Inputs{
		Signal:      sig,
		Assessment:  assessment,
		Balance:     balance,
		TradesToday: e.counter.Count(now),
		Trend:       trend,
	})

	pos, err := domain.NewPosition(uuid.NewString(), sig, sized.Amount, now, assessment.Composite, sized.Strategy)
	if err != nil {
		return domain.TradeDecision{}, errors.Wrap(err, "failed to open position")
	}

	e.positions[pos.ID] = pos
	e.counter.Increment(now)

	decision := domain.TradeDecision{
		Accepted:   true,
		Assessment: assessment,
		Sizing:     sized,
		PositionID: pos.ID,
		Pair:       sig.Pair.String(),
		DecidedAt:  now,
	}

	e.logger.Info("signal accepted",
		zap.String("pair", sig.Pair.String()),
		zap.String("position_id", pos.ID),
		zap.String("direction", sig.Direction.String()),
		zap.Float64("quality", assessment.Composite),
		zap.String("amount", sized.Amount.String()),
		zap.String("strategy", sized.Strategy))
	e.saveDecision(decision)

	return decision, nil
}

// marketSnapshot carries one pair's market inputs for a poll cycle.
type marketSnapshot struct {
	price      decimal.Decimal
	priceErr   error
	trend      float64
	trendErr   error
	volatility float64
}

// Tick re-evaluates every open position against fresh market data and
// returns one event per position closed this cycle. A position whose price
// is unavailable is skipped and retried next cycle. Market data is fetched
// before the engine lock is taken, so a webhook signal is never blocked
// behind the market provider's retry backoff.
func (e *Engine) Tick(ctx context.Context, now time.Time) []domain.ClosedPositionEvent {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	pairs := make(map[string]domain.Pair, len(e.positions))
	for _, pos := range e.positions {
		pairs[pos.Signal.Pair.String()] = pos.Signal.Pair
	}
	e.mu.Unlock()

	if len(pairs) == 0 {
		return nil
	}

	snapshots := e.fetchSnapshots(ctx, pairs)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	var events []domain.ClosedPositionEvent
	for id, pos := range e.positions {
		// a position opened after the snapshot has no data yet; next cycle
		snap, ok := snapshots[pos.Signal.Pair.String()]
		if !ok || snap.priceErr != nil {
			// transient: retried next cycle
			e.logger.Debug("no market price, skipping position this cycle",
				zap.String("position_id", id), zap.Error(snap.priceErr))
			continue
		}

		reason, fire := e.exitTrigger(pos, snap, now)
		if !fire {
			continue
		}

		event := e.closePosition(pos, snap.price, reason, now)
		events = append(events, event)
		delete(e.positions, id)
	}

	return events
}

// fetchSnapshots gathers market inputs for each distinct pair in the open
// position set. Missing volatility is recorded as the degenerate marker.
func (e *Engine) fetchSnapshots(ctx context.Context, pairs map[string]domain.Pair) map[string]marketSnapshot {
	lookback := time.Duration(e.cfg.TrendLookbackHours) * time.Hour

	snapshots := make(map[string]marketSnapshot, len(pairs))
	for key, pair := range pairs {
		var snap marketSnapshot
		snap.price, snap.priceErr = e.market.Price(ctx, pair)
		if snap.priceErr != nil {
			snapshots[key] = snap
			continue
		}

		snap.trend, snap.trendErr = e.market.Trend(ctx, pair, lookback)

		volatility, err := e.market.Volatility(ctx, pair)
		if err != nil {
			volatility = -1
		}
		snap.volatility = volatility

		snapshots[key] = snap
	}

	return snapshots
}

// exitTrigger evaluates the trigger families in priority order: stop,
// target, emergency-trend, quality-degraded, time-expired. During the
// minimum hold window only stop and emergency-trend may fire.
func (e *Engine) exitTrigger(pos *domain.Position, snap marketSnapshot, now time.Time) (domain.CloseReason, bool) {
	price := snap.price

	if e.stopHit(pos, price) {
		return domain.CloseReasonStop, true
	}

	holding := now.Sub(pos.EntryTime)
	withinHold := holding < time.Duration(e.cfg.MinHoldMinutes)*time.Minute

	if !withinHold && e.targetReached(pos, price) {
		return domain.CloseReasonTarget, true
	}

	if snap.trendErr == nil && e.trendAdverse(pos, snap.trend) {
		return domain.CloseReasonEmergencyTrend, true
	}

	if withinHold {
		return "", false
	}

	// re-assessment is a new value each cycle, never a mutation of the old one
	pos.LastQuality = e.scorer.Score(pos.Signal, price, snap.volatility).Composite

	if pos.LastQuality < pos.EntryQuality-e.cfg.DegradationThreshold || pos.LastQuality < e.cfg.MinSignalQuality {
		return domain.CloseReasonQualityDegraded, true
	}

	if holding > time.Duration(e.cfg.TimeExitHours)*time.Hour && pos.EntryQuality < e.cfg.HighQualityThreshold {
		return domain.CloseReasonTimeExpired, true
	}

	return "", false
}

func (e *Engine) stopHit(pos *domain.Position, price decimal.Decimal) bool {
	if pos.Signal.Direction == domain.DirectionShort {
		return price.GreaterThanOrEqual(pos.StopPrice)
	}
	return price.LessThanOrEqual(pos.StopPrice)
}

func (e *Engine) targetReached(pos *domain.Position, price decimal.Decimal) bool {
	if pos.Signal.Direction == domain.DirectionShort {
		return price.LessThanOrEqual(pos.TargetPrice)
	}
	return price.GreaterThanOrEqual(pos.TargetPrice)
}

// trendAdverse checks the direction-adjusted trend against the emergency
// threshold: a falling market is adverse for longs, a rising one for shorts.
func (e *Engine) trendAdverse(pos *domain.Position, trend float64) bool {
	adverse := trend
	if pos.Signal.Direction == domain.DirectionShort {
		adverse = -trend
	}
	return adverse <= e.cfg.EmergencyTrendThreshold
}

func (e *Engine) closePosition(pos *domain.Position, price decimal.Decimal, reason domain.CloseReason, now time.Time) domain.ClosedPositionEvent {
	pos.Status = domain.PositionClosed

	event := domain.ClosedPositionEvent{
		PositionID:   pos.ID,
		Pair:         pos.Signal.Pair.String(),
		Direction:    pos.Signal.Direction.String(),
		Reason:       reason,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    price,
		Amount:       pos.Amount,
		PnL:          pos.PnL(price),
		EntryQuality: pos.EntryQuality,
		FinalQuality: pos.LastQuality,
		SizedBy:      pos.SizedBy,
		OpenedAt:     pos.EntryTime,
		ClosedAt:     now,
	}

	e.logger.Info("position closed",
		zap.String("position_id", pos.ID),
		zap.String("pair", event.Pair),
		zap.String("reason", string(reason)),
		zap.String("exit_price", price.String()),
		zap.String("pnl", event.PnL.String()))

	if e.trades != nil {
		if err := e.trades.RecordClose(event); err != nil {
			e.logger.Error("failed to record closed position", zap.Error(err))
		}
	}

	return event
}

// TightenStops tightens an open position's target and/or stop. A zero
// decimal leaves the corresponding level unchanged. Loosening is rejected.
func (e *Engine) TightenStops(id string, target, stop decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[id]
	if !ok {
		return errors.Errorf("no open position with id %s", id)
	}

	if !stop.IsZero() {
		if err := pos.TightenStop(stop); err != nil {
			return err
		}
	}
	if !target.IsZero() {
		if err := pos.TightenTarget(target); err != nil {
			return err
		}
	}
	return nil
}

// OpenPositions returns a snapshot of all open positions.
func (e *Engine) OpenPositions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, *pos)
	}
	return out
}

// TradesToday returns the number of positions opened in the current window.
func (e *Engine) TradesToday(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counter.Count(now)
}

// Close shuts the engine down: every open position is closed with reason
// "shutdown" at the last known price (entry price when no price is
// available) and the events are returned so the caller can flatten real
// positions. Further EvaluateSignal calls fail with ErrEngineClosed.
func (e *Engine) Close(ctx context.Context) []domain.ClosedPositionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	now := e.now()
	events := make([]domain.ClosedPositionEvent, 0, len(e.positions))
	for id, pos := range e.positions {
		price, err := e.market.Price(ctx, pos.Signal.Pair)
		if err != nil {
			price = pos.EntryPrice
		}
		events = append(events, e.closePosition(pos, price, domain.CloseReasonShutdown, now))
		delete(e.positions, id)
	}

	return events
}

func (e *Engine) saveDecision(decision domain.TradeDecision) {
	if e.decisions == nil {
		return
	}
	if err := e.decisions.SaveDecision(decision); err != nil {
		e.logger.Error("failed to persist trade decision", zap.Error(err))
	}
}
