// Package web exposes the HTTP surface of the bot: the signal webhook, a
// status endpoint, an SSE stream of trade decisions and a small dashboard.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
	"github.com/ccc1236/coinsph-trading-bot/internal/storage/decisions"
	"github.com/ccc1236/coinsph-trading-bot/internal/storage/trades"
)

const decisionPollInterval = 2 * time.Second

type signalEvaluator interface {
	EvaluateSignal(ctx context.Context, sig domain.Signal) (domain.TradeDecision, error)
	OpenPositions() []domain.Position
	TradesToday(now time.Time) int
}

type decisionReader interface {
	DecisionsAfter(index uint64) ([]decisions.Record, error)
}

type tradeHistory interface {
	Recent(limit int) ([]domain.ClosedPositionEvent, error)
	PerformanceByStrategy() ([]trades.StrategyPerformance, error)
}

// Server handles signal ingestion over HTTP and serves the dashboard.
type Server struct {
	addr      string
	engine    signalEvaluator
	decisions decisionReader
	history   tradeHistory
	logger    *zap.Logger
}

// NewServer creates a web server. decisions and history may be nil; the
// corresponding endpoints then report unavailable.
func NewServer(addr string, engine signalEvaluator, decisionStore decisionReader, history tradeHistory, logger *zap.Logger) *Server {
	return &Server{
		addr:      addr,
		engine:    engine,
		decisions: decisionStore,
		history:   history,
		logger:    logger,
	}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/signal", s.handleSignal)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/decisions/stream", s.handleDecisionStream)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// signalRequest is the webhook payload of the external signal provider.
type signalRequest struct {
	Direction         string `json:"direction"`
	Pair              string `json:"pair"`
	EntryPrice        string `json:"entry_price"`
	TargetPrice       string `json:"target_price"`
	StopPrice         string `json:"stop_price"`
	Risk              int    `json:"risk"`
	ExpectedChangePct string `json:"expected_change_pct"`
}

func (r signalRequest) toSignal(now time.Time) (domain.Signal, error) {
	parts := strings.Split(r.Pair, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return domain.Signal{}, fmt.Errorf("invalid pair %q, want FROM_TO", r.Pair)
	}

	var direction domain.Direction
	switch strings.ToLower(r.Direction) {
	case "long", "buy":
		direction = domain.DirectionLong
	case "short", "sell":
		direction = domain.DirectionShort
	default:
		return domain.Signal{}, fmt.Errorf("unknown direction %q", r.Direction)
	}

	entry, err := decimal.NewFromString(r.EntryPrice)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("invalid entry_price %q", r.EntryPrice)
	}
	target, err := decimal.NewFromString(r.TargetPrice)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("invalid target_price %q", r.TargetPrice)
	}
	stop, err := decimal.NewFromString(r.StopPrice)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("invalid stop_price %q", r.StopPrice)
	}

	var expected float64
	if r.ExpectedChangePct != "" {
		parsed, err := decimal.NewFromString(r.ExpectedChangePct)
		if err != nil {
			return domain.Signal{}, fmt.Errorf("invalid expected_change_pct %q", r.ExpectedChangePct)
		}
		expected = parsed.InexactFloat64()
	}

	return domain.Signal{
		Direction:         direction,
		Pair:              domain.Pair{From: parts[0], To: parts[1]},
		EntryPrice:        entry,
		TargetPrice:       target,
		StopPrice:         stop,
		Risk:              r.Risk,
		ExpectedChangePct: expected,
		ReceivedAt:        now,
	}, nil
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	sig, err := req.toSignal(time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	decision, err := s.engine.EvaluateSignal(r.Context(), sig)
	if err != nil {
		s.logger.Error("signal evaluation failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, decision)
}

type positionView struct {
	ID           string    `json:"id"`
	Pair         string    `json:"pair"`
	Direction    string    `json:"direction"`
	EntryPrice   string    `json:"entry_price"`
	TargetPrice  string    `json:"target_price"`
	StopPrice    string    `json:"stop_price"`
	Amount       string    `json:"amount"`
	EntryQuality float64   `json:"entry_quality"`
	LastQuality  float64   `json:"last_quality"`
	SizedBy      string    `json:"sized_by"`
	OpenedAt     time.Time `json:"opened_at"`
}

type statusResponse struct {
	OpenPositions []positionView               `json:"open_positions"`
	TradesToday   int                          `json:"trades_today"`
	RecentTrades  []domain.ClosedPositionEvent `json:"recent_trades,omitempty"`
	Performance   []trades.StrategyPerformance `json:"performance,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		OpenPositions: make([]positionView, 0),
		TradesToday:   s.engine.TradesToday(time.Now()),
	}

	for _, pos := range s.engine.OpenPositions() {
		resp.OpenPositions = append(resp.OpenPositions, positionView{
			ID:           pos.ID,
			Pair:         pos.Signal.Pair.String(),
			Direction:    pos.Signal.Direction.String(),
			EntryPrice:   pos.EntryPrice.String(),
			TargetPrice:  pos.TargetPrice.String(),
			StopPrice:    pos.StopPrice.String(),
			Amount:       pos.Amount.String(),
			EntryQuality: pos.EntryQuality,
			LastQuality:  pos.LastQuality,
			SizedBy:      pos.SizedBy,
			OpenedAt:     pos.EntryTime,
		})
	}

	if s.history != nil {
		recent, err := s.history.Recent(20)
		if err != nil {
			s.logger.Error("failed to load recent trades", zap.Error(err))
		} else {
			resp.RecentTrades = recent
		}

		performance, err := s.history.PerformanceByStrategy()
		if err != nil {
			s.logger.Error("failed to load strategy performance", zap.Error(err))
		} else {
			resp.Performance = performance
		}
	}

	writeJSON(w, resp)
}

func (s *Server) handleDecisionStream(w http.ResponseWriter, r *http.Request) {
	if s.decisions == nil {
		http.Error(w, "decision store not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat every 30s so proxies keep the connection open
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(decisionPollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendDecisions := func() error {
		records, err := s.decisions.DecisionsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Decision)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: decision\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendDecisions(); err != nil {
		s.logger.Error("decision stream initial load failed", zap.Error(err))
		http.Error(w, "failed to load decisions", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendDecisions(); err != nil {
				s.logger.Error("decision stream poll failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// Single-page dashboard: open positions, daily counter and a live decision feed.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Signal Engine</title>
  <style>
    body { margin:0; padding:2rem; background:#ffffff; color:#111111; font-family:"Space Mono","JetBrains Mono",monospace; }
    h1 { font-size:1rem; text-transform:uppercase; letter-spacing:.2em; }
    .grid { display:grid; grid-template-columns:1fr 380px; gap:2rem; max-width:1200px; }
    section { border:3px solid #111111; padding:1.5rem; box-shadow:8px 8px 0 rgba(0,0,0,.15); }
    h2 { font-size:.7rem; text-transform:uppercase; letter-spacing:.15em; border-bottom:2px solid #111111; padding-bottom:.6rem; }
    table { width:100%; border-collapse:collapse; font-size:.7rem; }
    th, td { text-align:left; padding:.4rem .6rem; border-bottom:1px dashed #9c9c9c; }
    .pill { display:inline-block; font-size:.6rem; text-transform:uppercase; letter-spacing:.1em; border:2px solid #111111; padding:.3rem .6rem; margin-right:.5rem; }
    .decision { border:2px solid #111111; padding:.8rem; margin-bottom:.8rem; font-size:.68rem; }
    .decision.accepted { border-left:6px solid #1b9aaa; }
    .decision.rejected { border-left:6px solid #d7263d; }
    .muted { color:#4d4d4d; }
    #feed { max-height:70vh; overflow-y:auto; }
  </style>
</head>
<body>
  <h1>Signal Engine</h1>
  <div class="grid">
    <div>
      <section>
        <h2>Status</h2>
        <div>
          <span id="tradesToday" class="pill">trades today: 0</span>
          <span id="openCount" class="pill">open positions: 0</span>
        </div>
        <table id="positions">
          <thead>
            <tr><th>pair</th><th>side</th><th>entry</th><th>target</th><th>stop</th><th>amount</th><th>quality</th><th>sized by</th></tr>
          </thead>
          <tbody></tbody>
        </table>
      </section>
      <section style="margin-top:2rem">
        <h2>Strategy performance</h2>
        <table id="performance">
          <thead>
            <tr><th>strategy</th><th>trades</th><th>win rate</th><th>avg size</th><th>total pnl</th></tr>
          </thead>
          <tbody></tbody>
        </table>
      </section>
    </div>
    <section>
      <h2>Decisions</h2>
      <div id="feed"></div>
    </section>
  </div>
<script>
const feed = document.getElementById('feed');
const MAX_CARDS = 50;

function renderStatus(status){
  document.getElementById('tradesToday').textContent = 'trades today: ' + status.trades_today;
  document.getElementById('openCount').textContent = 'open positions: ' + status.open_positions.length;

  const posBody = document.querySelector('#positions tbody');
  posBody.innerHTML = '';
  for(const p of status.open_positions){
    const row = document.createElement('tr');
    row.innerHTML = '<td>' + p.pair + '</td><td>' + p.direction + '</td><td>' + p.entry_price +
      '</td><td>' + p.target_price + '</td><td>' + p.stop_price + '</td><td>' + p.amount +
      '</td><td>' + p.last_quality.toFixed(2) + '</td><td>' + p.sized_by + '</td>';
    posBody.appendChild(row);
  }

  const perfBody = document.querySelector('#performance tbody');
  perfBody.innerHTML = '';
  for(const s of (status.performance || [])){
    const row = document.createElement('tr');
    row.innerHTML = '<td>' + s.strategy + '</td><td>' + s.trades + '</td><td>' +
      (s.win_rate * 100).toFixed(0) + '%</td><td>' + s.avg_amount + '</td><td>' + s.total_pnl + '</td>';
    perfBody.appendChild(row);
  }
}

function pollStatus(){
  fetch('/status').then(r => r.json()).then(renderStatus).catch(() => {});
}
pollStatus();
setInterval(pollStatus, 5000);

function decisionCard(d){
  const card = document.createElement('div');
  card.className = 'decision ' + (d.accepted ? 'accepted' : 'rejected');
  const head = d.accepted ? 'ACCEPTED' : 'REJECTED (' + d.reason + ')';
  let body = '<strong>' + d.pair + '</strong> ' + head +
    '<div class="muted">quality ' + d.assessment.composite.toFixed(2) + '</div>';
  if(d.accepted){
    body += '<div class="muted">' + d.sizing.strategy + ' sized ' + d.sizing.amount + '</div>';
  }
  card.innerHTML = body;
  return card;
}

function connectSSE(){
  const source = new EventSource('/decisions/stream');
  source.addEventListener('decision', (event) => {
    try{
      const d = JSON.parse(event.data);
      feed.insertBefore(decisionCard(d), feed.firstChild);
      while(feed.children.length > MAX_CARDS){
        feed.removeChild(feed.lastChild);
      }
      pollStatus();
    }catch(err){
      console.error('decision parse', err);
    }
  });
  source.addEventListener('error', () => {
    source.close();
    setTimeout(connectSSE, 2000);
  });
}
connectSSE();
</script>
</body>
</html>`
