// Package health exposes the operational HTTP surface: liveness and
// readiness probes, the JSON state snapshot, demo intent injection, manual
// execution and cooldown controls, and Prometheus metrics.
package health

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaypool-hq/relaypool/pkg/circuitbreaker"
	"github.com/relaypool-hq/relaypool/pkg/logger"
	"github.com/relaypool-hq/relaypool/pkg/models"
)

// Engine is the relayer surface the server reads and drives.
type Engine interface {
	Snapshot() models.Snapshot
	InjectIntent(sender, receiver common.Address, amount *big.Int) models.Intent
	TriggerExecution(reason string)
}

// Server represents the health check and admin HTTP server
type Server struct {
	port          string
	engine        Engine
	cooldown      *circuitbreaker.CircuitBreaker
	metricsAPIKey string
	logger        logger.Logger
}

// NewServer creates a new health check server
func NewServer(port string, engine Engine, cooldown *circuitbreaker.CircuitBreaker, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		port:          port,
		engine:        engine,
		cooldown:      cooldown,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
		logger:        log,
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		snap := s.engine.Snapshot()
		if snap.StartedAt.IsZero() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Relayer not started"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/inject", s.handleInject)

	// Manual execution trigger, follows the same drop rules as the
	// automatic triggers
	mux.HandleFunc("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.engine.TriggerExecution("manual")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("Execution triggered"))
	})

	// Cooldown admin control endpoint
	mux.HandleFunc("/cooldown/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.cooldown.Reset()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Cooldown reset"))
	})

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return mux
}

// Start starts the health check server. Blocks until the listener fails.
func (s *Server) Start() {
	s.logger.InfoWithScope(logger.API, "Starting health and metrics server on port %s", s.port)
	if err := http.ListenAndServe(":"+s.port, s.Handler()); err != nil {
		s.logger.ErrorWithScope(logger.API, "Health server error: %v", err)
	}
}

// handleStatus renders the engine snapshot as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()

	pooled := make([]map[string]interface{}, len(snap.PooledIntents))
	for i, intent := range snap.PooledIntents {
		pooled[i] = map[string]interface{}{
			"sender":      intent.Sender.Hex(),
			"receiver":    intent.Receiver.Hex(),
			"amount":      intent.Amount.String(),
			"sequence":    intent.Sequence,
			"received_at": intent.ReceivedAt,
		}
	}

	status := map[string]interface{}{
		"status":                  string(snap.Status),
		"pooled_intents":          pooled,
		"pool_size":               len(pooled),
		"total_batches_executed":  snap.TotalBatchesExecuted,
		"total_intents_processed": snap.TotalIntentsProcessed,
		"started_at":              snap.StartedAt,
		"cooldown_open":           s.cooldown.IsOpen(),
		"predictor": map[string]interface{}{
			"ready":      snap.Predictor.Ready,
			"latest_fee": snap.Predictor.LatestFee,
			"confidence": snap.Predictor.Confidence,
			"cutoff":     snap.Predictor.Cutoff,
		},
	}
	if snap.LastBatch != nil {
		status["last_batch"] = map[string]interface{}{
			"settlement_tx": snap.LastBatch.SettlementTx.Hex(),
			"size":          snap.LastBatch.Size,
			"total_amount":  snap.LastBatch.TotalAmount.String(),
			"completed_at":  snap.LastBatch.CompletedAt,
		}
	}
	if snap.LastError != "" {
		status["last_error"] = snap.LastError
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.ErrorWithScope(logger.API, "Error encoding status JSON: %v", err)
	}
}

// injectRequest is the /inject POST body.
type injectRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

// handleInject enqueues a synthetic intent, the demo alternative to a real
// vault deposit.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if !common.IsHexAddress(req.Sender) || !common.IsHexAddress(req.Receiver) {
		http.Error(w, "Invalid sender or receiver address", http.StatusBadRequest)
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		http.Error(w, "Amount must be a positive decimal integer", http.StatusBadRequest)
		return
	}

	intent := s.engine.InjectIntent(common.HexToAddress(req.Sender), common.HexToAddress(req.Receiver), amount)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"sequence": intent.Sequence,
		"sender":   intent.Sender.Hex(),
		"receiver": intent.Receiver.Hex(),
		"amount":   intent.Amount.String(),
	})
}
