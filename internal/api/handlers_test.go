package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crypto-trading-bot/internal/bot"
	"crypto-trading-bot/internal/execution"
	"crypto-trading-bot/internal/feed"
	"crypto-trading-bot/internal/logging"
	"crypto-trading-bot/internal/metrics"
	"crypto-trading-bot/internal/portfolio"
	"crypto-trading-bot/internal/risk"
	"crypto-trading-bot/internal/runner"
	"crypto-trading-bot/internal/sim"
	"crypto-trading-bot/internal/strategy"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "error", Output: "stderr", JSONFormat: true})
}

// testFactory builds runners against an open-ended mock feed so start
// and stop can be exercised over HTTP.
func testFactory(log *logging.Logger) BotFactory {
	return func(spec BotSpec) (*runner.Runner, error) {
		strat, err := strategy.New(spec.Class, spec.Symbol, spec.Interval, strategy.Params(spec.Parameters))
		if err != nil {
			return nil, err
		}
		balance := spec.InitialBalance
		if balance <= 0 {
			balance = 10000
		}
		pf := portfolio.New(spec.ID, balance, portfolio.Limits{})
		re := risk.NewEngine(balance, log)
		s := sim.New(sim.Config{Seed: 0}, log)
		engine := execution.New(spec.ID, execution.Config{}, pf, re, s, nil, log)
		mock := feed.NewMockFeed(feed.MockConfig{StartPrice: 100, Volatility: 0.01, Seed: 3, TickDelay: time.Millisecond}, log)
		return runner.New(spec.ID, strat, mock, engine, pf, runner.Config{Mode: spec.Mode}, nil, log), nil
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := testLogger()
	m := bot.NewManager(2*time.Second, log)
	return NewServer(ServerConfig{ProductionMode: true}, m, testFactory(log), nil, log)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, out
}

func createBot(t *testing.T, s *Server, id string) {
	t.Helper()
	w, _ := doJSON(t, s, http.MethodPost, "/api/bots", BotSpec{
		ID: id, Class: "sma_crossover", Symbol: "BTCUSDT", Interval: "1m",
		Parameters: map[string]float64{"fast_period": 3, "slow_period": 8},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create bot: status %d body %s", w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, body := doJSON(t, s, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("health status = %v", body["status"])
	}
	if body["database"] != "disabled" {
		t.Errorf("database = %v, want disabled", body["database"])
	}
}

func TestCreateAndListBots(t *testing.T) {
	s := newTestServer(t)
	createBot(t, s, "bot-1")
	createBot(t, s, "bot-2")

	w, body := doJSON(t, s, http.MethodGet, "/api/bots", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	bots, ok := body["bots"].([]interface{})
	if !ok || len(bots) != 2 {
		t.Errorf("bots = %v, want 2", body["bots"])
	}
}

func TestCreateBotModeAndBalance(t *testing.T) {
	s := newTestServer(t)
	w, _ := doJSON(t, s, http.MethodPost, "/api/bots", BotSpec{
		ID: "bot-m", Class: "sma_crossover", Symbol: "BTCUSDT", Interval: "1m",
		Mode: "mock", InitialBalance: 5000,
		Parameters: map[string]float64{"fast_period": 3, "slow_period": 8},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create bot: status %d body %s", w.Code, w.Body.String())
	}

	// The listing carries the bot's mode.
	w, body := doJSON(t, s, http.MethodGet, "/api/bots", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	bots, _ := body["bots"].([]interface{})
	found := false
	for _, b := range bots {
		item, _ := b.(map[string]interface{})
		if item["id"] == "bot-m" {
			found = true
			if item["mode"] != "mock" {
				t.Errorf("listed mode = %v, want mock", item["mode"])
			}
		}
	}
	if !found {
		t.Fatal("created bot missing from listing")
	}

	// The status view reflects the requested balance and mode.
	w, body = doJSON(t, s, http.MethodGet, "/api/bots/bot-m/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: status = %d", w.Code)
	}
	if body["mode"] != "mock" {
		t.Errorf("status mode = %v, want mock", body["mode"])
	}
	if got, _ := body["balance"].(float64); got != 5000 {
		t.Errorf("balance = %v, want 5000", body["balance"])
	}
	if got, _ := body["equity"].(float64); got != 5000 {
		t.Errorf("equity = %v, want 5000", body["equity"])
	}
}

func TestCreateBotValidation(t *testing.T) {
	s := newTestServer(t)

	// Missing required fields.
	w, _ := doJSON(t, s, http.MethodPost, "/api/bots", map[string]string{"class": "sma_crossover"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing fields: status = %d, want 400", w.Code)
	}

	// Unknown strategy class is rejected by the factory.
	w, _ = doJSON(t, s, http.MethodPost, "/api/bots", BotSpec{
		Class: "nope", Symbol: "BTCUSDT", Interval: "1m",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown class: status = %d, want 400", w.Code)
	}

	// Duplicate id.
	createBot(t, s, "bot-dup")
	w, _ = doJSON(t, s, http.MethodPost, "/api/bots", BotSpec{
		ID: "bot-dup", Class: "sma_crossover", Symbol: "BTCUSDT", Interval: "1m",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: status = %d, want 409", w.Code)
	}
}

func TestUnknownBotReturns404(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{
		"/api/bots/ghost/status", "/api/bots/ghost/trades", "/api/bots/ghost/risk",
	} {
		w, _ := doJSON(t, s, http.MethodGet, path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s: status = %d, want 404", path, w.Code)
		}
	}
	for _, action := range []string{"start", "stop", "kill"} {
		w, _ := doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/bots/ghost/%s", action), nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("POST %s: status = %d, want 404", action, w.Code)
		}
	}
}

func TestBotLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	createBot(t, s, "bot-life")

	w, _ := doJSON(t, s, http.MethodPost, "/api/bots/bot-life/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: status = %d", w.Code)
	}
	time.Sleep(30 * time.Millisecond)

	w, body := doJSON(t, s, http.MethodGet, "/api/bots/bot-life/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if body["status"] != string(runner.StatusRunning) {
		t.Errorf("bot status = %v, want RUNNING", body["status"])
	}
	if body["equity"].(float64) <= 0 {
		t.Errorf("equity = %v", body["equity"])
	}

	// Double start conflicts.
	w, _ = doJSON(t, s, http.MethodPost, "/api/bots/bot-life/start", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("double start: status = %d, want 409", w.Code)
	}

	w, _ = doJSON(t, s, http.MethodPost, "/api/bots/bot-life/stop", nil)
	if w.Code != http.StatusOK {
		t.Errorf("stop: status = %d", w.Code)
	}

	// Running bots cannot be removed; stopped ones can.
	w, _ = doJSON(t, s, http.MethodDelete, "/api/bots/bot-life", nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete: status = %d", w.Code)
	}
}

func TestKillSwitchOverHTTP(t *testing.T) {
	s := newTestServer(t)
	createBot(t, s, "bot-kill")

	w, _ := doJSON(t, s, http.MethodPost, "/api/bots/bot-kill/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: status = %d", w.Code)
	}
	time.Sleep(30 * time.Millisecond)

	w, _ = doJSON(t, s, http.MethodPost, "/api/bots/bot-kill/kill?reason=test", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("kill: status = %d body %s", w.Code, w.Body.String())
	}

	w, body := doJSON(t, s, http.MethodGet, "/api/bots/bot-kill/risk", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("risk: status = %d", w.Code)
	}
	if body["kill_switch_activated"] != true {
		t.Errorf("kill_switch_activated = %v, want true", body["kill_switch_activated"])
	}
	if body["halt_reason"] == "" {
		t.Error("halt_reason empty")
	}
}

func TestBotTradesAndGlobalMetrics(t *testing.T) {
	s := newTestServer(t)
	createBot(t, s, "bot-t")

	w, body := doJSON(t, s, http.MethodGet, "/api/bots/bot-t/trades", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("trades: status = %d", w.Code)
	}
	if _, ok := body["trades"]; !ok {
		t.Error("trades key missing")
	}

	w, body = doJSON(t, s, http.MethodGet, "/api/metrics/global", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("global metrics: status = %d", w.Code)
	}
	if body["bots"].(float64) != 1 {
		t.Errorf("bots = %v, want 1", body["bots"])
	}
	if body["total_equity"].(float64) != 10000 {
		t.Errorf("total equity = %v, want 10000", body["total_equity"])
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	s := newTestServer(t)
	// Labeled vectors only appear in the exposition once observed.
	metrics.SignalsGenerated.WithLabelValues("metrics-test").Inc()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("tradingbot_")) {
		t.Error("exposition does not contain tradingbot_ metrics")
	}
}
