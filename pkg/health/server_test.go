package health

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/relaypool-hq/relaypool/pkg/circuitbreaker"
	"github.com/relaypool-hq/relaypool/pkg/models"
)

// stubEngine records calls and serves a canned snapshot.
type stubEngine struct {
	snapshot  models.Snapshot
	injected  []models.Intent
	triggered []string
}

func (e *stubEngine) Snapshot() models.Snapshot {
	return e.snapshot
}

func (e *stubEngine) InjectIntent(sender, receiver common.Address, amount *big.Int) models.Intent {
	intent := models.Intent{
		Sender:     sender,
		Receiver:   receiver,
		Amount:     amount,
		Sequence:   uint64(len(e.injected)),
		ReceivedAt: time.Now(),
	}
	e.injected = append(e.injected, intent)
	return intent
}

func (e *stubEngine) TriggerExecution(reason string) {
	e.triggered = append(e.triggered, reason)
}

func newTestServer(engine *stubEngine) *Server {
	cooldown := circuitbreaker.New(true, 1, time.Minute, time.Minute, nil)
	return NewServer("0", engine, cooldown, nil)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&stubEngine{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReadyReflectsStartedState(t *testing.T) {
	engine := &stubEngine{}
	srv := newTestServer(engine)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	engine.snapshot.StartedAt = time.Now()
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	engine := &stubEngine{
		snapshot: models.Snapshot{
			Status: models.StatusPooling,
			PooledIntents: []models.Intent{
				{
					Sender:   common.BigToAddress(big.NewInt(1)),
					Receiver: common.BigToAddress(big.NewInt(2)),
					Amount:   big.NewInt(10),
					Sequence: 7,
				},
			},
			LastBatch: &models.BatchSummary{
				SettlementTx: common.BigToHash(big.NewInt(42)),
				Size:         5,
				TotalAmount:  big.NewInt(500),
				CompletedAt:  time.Now(),
			},
			Predictor: models.PredictorSnapshot{
				Ready:      true,
				LatestFee:  "30000",
				Confidence: 0.81,
				Cutoff:     0.7,
			},
			TotalBatchesExecuted:  3,
			TotalIntentsProcessed: 15,
			StartedAt:             time.Now(),
		},
	}
	srv := newTestServer(engine)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"status":"POOLING"`)
	assert.Contains(t, body, `"pool_size":1`)
	assert.Contains(t, body, `"sequence":7`)
	assert.Contains(t, body, `"total_amount":"500"`)
	assert.Contains(t, body, `"confidence":0.81`)
	assert.NotContains(t, body, "last_error")
}

func TestInjectEndpoint(t *testing.T) {
	engine := &stubEngine{}
	srv := newTestServer(engine)

	body := `{"sender":"0x0000000000000000000000000000000000000001","receiver":"0x0000000000000000000000000000000000000002","amount":"250"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inject", strings.NewReader(body)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, engine.injected, 1)
	assert.Equal(t, int64(250), engine.injected[0].Amount.Int64())
	assert.Contains(t, rec.Body.String(), `"sequence":0`)
}

func TestInjectRejectsBadInput(t *testing.T) {
	engine := &stubEngine{}
	srv := newTestServer(engine)

	cases := []struct {
		name string
		body string
	}{
		{"bad address", `{"sender":"nope","receiver":"0x0000000000000000000000000000000000000002","amount":"10"}`},
		{"zero amount", `{"sender":"0x0000000000000000000000000000000000000001","receiver":"0x0000000000000000000000000000000000000002","amount":"0"}`},
		{"non-numeric amount", `{"sender":"0x0000000000000000000000000000000000000001","receiver":"0x0000000000000000000000000000000000000002","amount":"ten"}`},
		{"malformed json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inject", strings.NewReader(tc.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, engine.injected)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inject", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTriggerEndpoint(t *testing.T) {
	engine := &stubEngine{}
	srv := newTestServer(engine)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"manual"}, engine.triggered)
}

func TestMetricsAuth(t *testing.T) {
	srv := newTestServer(&stubEngine{})
	srv.metricsAPIKey = "secret"

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
