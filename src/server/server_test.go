package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nepse-observer/src/helpers"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"
	"nepse-observer/src/scheduler"
	"nepse-observer/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLog = logger.NewLogger(nil, "ServerTest")

type fakeReader struct {
	index      *models.MMarketIndex
	prices     []models.MPriceQuote
	series     map[string][]models.MIndexSnapshot
	securities map[string]models.MSecurity
	history    map[string][]models.MHistoryRecord
	lastLimit  int
	failWith   error
}

func (f *fakeReader) ReadMarketIndex(context.Context) (*models.MMarketIndex, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.index == nil {
		return nil, fmt.Errorf("market index 58: %w", helpers.ErrNotFound)
	}
	return f.index, nil
}

func (f *fakeReader) ReadMarketStatus(ctx context.Context) (*models.MMarketStatus, error) {
	idx, err := f.ReadMarketIndex(ctx)
	if err != nil {
		return nil, err
	}
	return &models.MMarketStatus{Status: idx.Status, StatusTime: idx.StatusTime, BusinessDate: idx.BusinessDate}, nil
}

func (f *fakeReader) ReadPrice(_ context.Context, symbol string) (*models.MPriceQuote, error) {
	for _, q := range f.prices {
		if q.Symbol == symbol {
			return &q, nil
		}
	}
	return nil, fmt.Errorf("price %s: %w", symbol, helpers.ErrNotFound)
}

func (f *fakeReader) ReadPrices(context.Context) ([]models.MPriceQuote, error) {
	return f.prices, nil
}

func (f *fakeReader) ReadSecurity(_ context.Context, symbol string) (*models.MSecurity, error) {
	if sec, ok := f.securities[symbol]; ok {
		return &sec, nil
	}
	return nil, fmt.Errorf("security %s: %w", symbol, helpers.ErrNotFound)
}

func (f *fakeReader) ReadPriceHistory(_ context.Context, symbol string, limit int) ([]models.MHistoryRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastLimit = limit
	rows := f.history[symbol]
	if rows == nil {
		rows = []models.MHistoryRecord{}
	}
	return rows, nil
}

func (f *fakeReader) ReadIntradayIndex(_ context.Context, date string) ([]models.MIndexSnapshot, error) {
	if s, ok := f.series[date]; ok {
		return s, nil
	}
	return []models.MIndexSnapshot{}, nil
}

type fakeJobs struct {
	statuses []models.MJobStatus
	stopping bool
}

func (f *fakeJobs) Statuses() []models.MJobStatus { return f.statuses }

func (f *fakeJobs) Status(name string) (models.MJobStatus, error) {
	for _, st := range f.statuses {
		if st.JobName == name {
			return st, nil
		}
	}
	return models.MJobStatus{}, fmt.Errorf("%s: %w", name, scheduler.ErrJobNotFound)
}

func (f *fakeJobs) Trigger(name string) (string, error) {
	if f.stopping {
		return "", scheduler.ErrStopping
	}
	st, err := f.Status(name)
	if err != nil {
		return "", err
	}
	if st.Status == models.JobRunning {
		return "", scheduler.ErrJobRunning
	}
	return "run-" + name, nil
}

func newTestServer(reader *fakeReader, jobs *fakeJobs) *APIServer {
	gin.SetMode(gin.TestMode)
	cfg := &models.MConfig{Host: "127.0.0.1", Port: 0, LogLevel: "DEBUG"}
	s := NewAPIServer(cfg, reader, jobs, testLog)
	s.Clock = utils.NewManualClock(time.Date(2026, 10, 15, 11, 15, 0, 0, utils.NPT))
	return s
}

func doRequest(t *testing.T, s *APIServer, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

var nabil = models.MPriceQuote{Symbol: "NABIL", SecurityID: 131, LastTradedPrice: 510, Close: 510}
var nica = models.MPriceQuote{Symbol: "NICA", SecurityID: 139, LastTradedPrice: 415.5, Close: 415.5}

// -----------------------------------------------------------------------------
// REST
// -----------------------------------------------------------------------------

func TestMarketEndpoints(t *testing.T) {
	reader := &fakeReader{
		index:  &models.MMarketIndex{IndexID: 58, Value: 2701.5, Status: models.MarketOpen, StatusTime: "11:15 AM", BusinessDate: "2026-10-15"},
		prices: []models.MPriceQuote{nabil, nica},
		series: map[string][]models.MIndexSnapshot{"2026-10-15": {{Value: 2700}, {Value: 2701.5}}},
	}
	s := newTestServer(reader, &fakeJobs{})

	w := doRequest(t, s, http.MethodGet, "/api/market/index")
	require.Equal(t, http.StatusOK, w.Code)
	var idx models.MMarketIndex
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &idx))
	assert.Equal(t, 2701.5, idx.Value)

	w = doRequest(t, s, http.MethodGet, "/api/market/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"OPEN"`)

	w = doRequest(t, s, http.MethodGet, "/api/market/prices")
	require.Equal(t, http.StatusOK, w.Code)
	var quotes []models.MPriceQuote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quotes))
	assert.Len(t, quotes, 2)

	w = doRequest(t, s, http.MethodGet, "/api/market/prices/nica")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"symbol":"NICA"`)

	w = doRequest(t, s, http.MethodGet, "/api/market/prices/UPPER")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIntradayDefaultsToToday(t *testing.T) {
	reader := &fakeReader{series: map[string][]models.MIndexSnapshot{"2026-10-15": {{Value: 2700}}}}
	s := newTestServer(reader, &fakeJobs{})

	w := doRequest(t, s, http.MethodGet, "/api/market/intraday")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		BusinessDate string                  `json:"business_date"`
		Series       []models.MIndexSnapshot `json:"series"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2026-10-15", body.BusinessDate)
	assert.Len(t, body.Series, 1)

	w = doRequest(t, s, http.MethodGet, "/api/market/intraday?date=2026-10-14")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"series":[]`)

	w = doRequest(t, s, http.MethodGet, "/api/market/intraday?date=15-10-2026")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecurityAndHistoryEndpoints(t *testing.T) {
	reader := &fakeReader{
		securities: map[string]models.MSecurity{"NABIL": {ID: 131, Symbol: "NABIL", Name: "Nabil Bank Limited", InstrumentType: models.InstrumentEquity}},
		history: map[string][]models.MHistoryRecord{"NABIL": {
			{Key: "NABIL", BusinessDate: "2026-10-15", Close: 510},
			{Key: "NABIL", BusinessDate: "2026-10-14", Close: 505},
		}},
	}
	s := newTestServer(reader, &fakeJobs{})

	w := doRequest(t, s, http.MethodGet, "/api/securities/nabil")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Nabil Bank Limited"`)
	assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodGet, "/api/securities/NICA").Code)

	w = doRequest(t, s, http.MethodGet, "/api/market/history/nabil?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Symbol  string                 `json:"symbol"`
		History []models.MHistoryRecord `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NABIL", body.Symbol)
	assert.Len(t, body.History, 2)
	assert.Equal(t, 2, reader.lastLimit)

	w = doRequest(t, s, http.MethodGet, "/api/market/history/NICA")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"history":[]`)
	assert.Equal(t, 0, reader.lastLimit)

	assert.Equal(t, http.StatusBadRequest, doRequest(t, s, http.MethodGet, "/api/market/history/NABIL?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, s, http.MethodGet, "/api/market/history/NABIL?limit=0").Code)
}

func TestMissingIndexIsNotFoundAndStoreFailureIs500(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeJobs{})
	assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodGet, "/api/market/index").Code)

	s = newTestServer(&fakeReader{failWith: helpers.NewStoreError("get index", fmt.Errorf("db closed"))}, &fakeJobs{})
	assert.Equal(t, http.StatusInternalServerError, doRequest(t, s, http.MethodGet, "/api/market/index").Code)
}

func TestJobEndpoints(t *testing.T) {
	jobs := &fakeJobs{statuses: []models.MJobStatus{
		{JobName: "market_index", Status: models.JobSuccess},
		{JobName: "stock_prices", Status: models.JobRunning},
	}}
	s := newTestServer(&fakeReader{}, jobs)

	w := doRequest(t, s, http.MethodGet, "/api/jobs")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.MJobStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = doRequest(t, s, http.MethodGet, "/api/jobs/market_index")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"success"`)

	assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodGet, "/api/jobs/nope").Code)

	w = doRequest(t, s, http.MethodPost, "/api/jobs/market_index/run")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"run-market_index"`)

	assert.Equal(t, http.StatusConflict, doRequest(t, s, http.MethodPost, "/api/jobs/stock_prices/run").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodPost, "/api/jobs/nope/run").Code)

	jobs.stopping = true
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(t, s, http.MethodPost, "/api/jobs/market_index/run").Code)
}

func TestHealthReportsFailedJobs(t *testing.T) {
	jobs := &fakeJobs{statuses: []models.MJobStatus{{JobName: "market_index", Status: models.JobSuccess}}}
	s := newTestServer(&fakeReader{}, jobs)

	w := doRequest(t, s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	jobs.statuses = append(jobs.statuses, models.MJobStatus{JobName: "stock_prices", Status: models.JobFailed})
	w = doRequest(t, s, http.MethodGet, "/api/health")
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	assert.Contains(t, w.Body.String(), `"stock_prices"`)
}

func TestCORSAllowsLocalOrigins(t *testing.T) {
	s := newTestServer(&fakeReader{}, &fakeJobs{})

	req := httptest.NewRequest(http.MethodOptions, "/api/market/prices", nil)
	req.Header.Set("Origin", "http://127.0.0.1:5173")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://127.0.0.1:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/market/prices", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// -----------------------------------------------------------------------------
// WebSocket
// -----------------------------------------------------------------------------

func startHubServer(t *testing.T) (*APIServer, string) {
	t.Helper()
	s := newTestServer(&fakeReader{}, &fakeJobs{})
	s.startHub()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Stop()
		ts.Close()
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) models.MLatestData {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.MLatestData
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketInitialThenUpdates(t *testing.T) {
	s, url := startHubServer(t)
	conn := dial(t, url)

	initial := readUpdate(t, conn)
	assert.Equal(t, "INITIAL", initial.Type)
	assert.Nil(t, initial.Index)
	assert.Eventually(t, func() bool { return s.connections.Load() == 1 }, time.Second, 10*time.Millisecond)

	s.Broadcast(&models.MLatestData{Index: &models.MMarketIndex{Value: 2701.5, Status: models.MarketOpen}})
	update := readUpdate(t, conn)
	assert.Equal(t, "UPDATE", update.Type)
	require.NotNil(t, update.Index)
	assert.Equal(t, 2701.5, update.Index.Value)
	assert.NotZero(t, update.Timestamp)

	s.Broadcast(&models.MLatestData{Type: "JOB", Jobs: []models.MJobStatus{{JobName: "market_index", Status: models.JobSuccess}}})
	job := readUpdate(t, conn)
	assert.Equal(t, "JOB", job.Type)
	require.Len(t, job.Jobs, 1)
}

func TestWebSocketLateJoinerGetsMergedState(t *testing.T) {
	s, url := startHubServer(t)

	s.Broadcast(&models.MLatestData{Index: &models.MMarketIndex{Value: 2700, UpdatedAt: 1}})
	s.Broadcast(&models.MLatestData{Index: &models.MMarketIndex{Value: 2701.5, UpdatedAt: 2}})
	s.Broadcast(&models.MLatestData{Prices: []models.MPriceQuote{nica, nabil}})
	s.Broadcast(&models.MLatestData{Prices: []models.MPriceQuote{{Symbol: "NABIL", LastTradedPrice: 512}}})
	require.Eventually(t, func() bool {
		st := s.initialState(nil)
		return len(st.Prices) == 2 && st.Prices[0].LastTradedPrice == 512
	}, time.Second, 10*time.Millisecond)

	conn := dial(t, url)
	initial := readUpdate(t, conn)
	assert.Equal(t, "INITIAL", initial.Type)
	require.NotNil(t, initial.Index)
	assert.Equal(t, 2701.5, initial.Index.Value)
	require.Len(t, initial.Recent, 2)
	assert.Equal(t, 2700.0, initial.Recent[0].Value)
	require.Len(t, initial.Prices, 2)
	assert.Equal(t, "NABIL", initial.Prices[0].Symbol)
}

func TestWebSocketSubscribeFiltersPrices(t *testing.T) {
	s, url := startHubServer(t)
	conn := dial(t, url)
	readUpdate(t, conn)

	require.NoError(t, conn.WriteJSON(models.MSubscribeCommand{Command: "subscribe", Symbols: []string{" nabil "}}))
	answer := readUpdate(t, conn)
	assert.Equal(t, "INITIAL", answer.Type)

	// an update with nothing for this client is skipped
	s.Broadcast(&models.MLatestData{Prices: []models.MPriceQuote{nica}})
	s.Broadcast(&models.MLatestData{Prices: []models.MPriceQuote{nica, nabil}})

	update := readUpdate(t, conn)
	require.Len(t, update.Prices, 1)
	assert.Equal(t, "NABIL", update.Prices[0].Symbol)
}

func TestWebSocketBadCommandDisconnects(t *testing.T) {
	s, url := startHubServer(t)
	conn := dial(t, url)
	readUpdate(t, conn)
	require.Eventually(t, func() bool { return s.connections.Load() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Eventually(t, func() bool { return s.connections.Load() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopClosesClients(t *testing.T) {
	s, url := startHubServer(t)
	conn := dial(t, url)
	readUpdate(t, conn)

	require.NoError(t, s.Stop())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	// after stop, broadcasts queue without a reader and never block
	for i := 0; i < 300; i++ {
		s.Broadcast(&models.MLatestData{Prices: []models.MPriceQuote{nabil}})
	}
}
