// Package api exposes the calculation service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quote-pricing/core/audit"
	"quote-pricing/core/calc"
	"quote-pricing/core/model"
	"quote-pricing/core/quote"
	"quote-pricing/internal/errors"
)

const (
	headerCalculationID = "x-insight-calculationid"
	headerDebug         = "x-insight-debug"
)

// Server handles calculation requests.
type Server struct {
	registry     *model.Registry
	orchestrator *quote.Orchestrator
	calculator   *calc.Calculator
	audit        audit.Logger
	log          *zap.Logger
	namespace    string
}

// New creates a Server.
func New(registry *model.Registry, orchestrator *quote.Orchestrator, calculator *calc.Calculator,
	auditLog audit.Logger, log *zap.Logger, namespace string) *Server {
	return &Server{
		registry:     registry,
		orchestrator: orchestrator,
		calculator:   calculator,
		audit:        auditLog,
		log:          log,
		namespace:    namespace,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/ces/clients/{clientID}/calculations/{modelID}", s.handleCalculation)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// metadata tags every response with the calculation identity.
type metadata struct {
	CalculationID string `json:"calculationId"`
	Model         string `json:"model,omitempty"`
	ModelVersion  int    `json:"modelVersion,omitempty"`
	Namespace     string `json:"namespace"`
}

type dataEnvelope struct {
	Data     any      `json:"data"`
	Metadata metadata `json:"metadata"`
}

type errorEnvelope struct {
	Error struct {
		ResponseCode int    `json:"responseCode"`
		Description  string `json:"description"`
	} `json:"error"`
	Metadata metadata `json:"metadata"`
}

func (s *Server) handleCalculation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	clientID := chi.URLParam(r, "clientID")
	modelID := chi.URLParam(r, "modelID")

	calculationID := r.Header.Get(headerCalculationID)
	if calculationID == "" {
		calculationID = uuid.NewString()
	}
	debug := strings.EqualFold(r.Header.Get(headerDebug), "true")

	meta := metadata{CalculationID: calculationID, Namespace: s.namespace}

	def, ok := s.registry.Get(modelID, debug)
	if !ok || !def.Active {
		s.writeError(w, http.StatusNotFound, meta, "Model "+modelID+" not found")
		return
	}
	meta.Model = def.ID
	meta.ModelVersion = def.Version

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeError(w, http.StatusBadRequest, meta, "Request body must be a JSON object")
		return
	}
	// Clients wrap the inputs in a modelInputs envelope; remote line
	// dispatch posts the same shape back at this endpoint.
	if inner, ok := raw["modelInputs"].(map[string]any); ok {
		raw = inner
	}

	tokenClient := ExtractClientID(r)
	token := bearerToken(r)

	var outputs calc.Outputs
	var inputs map[string]any
	var traces []map[string]any
	var errorMessage string
	var err error
	switch def.ID {
	case model.RecommendedPriceID:
		var res *quote.Result
		res, err = s.orchestrator.Quote(r.Context(), raw, def, clientID, calculationID, token)
		if err == nil {
			outputs = res.Outputs
			inputs = map[string]any(res.Inputs)
			errorMessage = res.ErrorMessage
			for _, line := range res.Lines {
				if line.Trace != nil {
					traces = append(traces, line.Trace.Map())
				}
			}
		}
	case model.QuoteLineSapID:
		var res *calc.Result
		res, err = s.calculator.Price(r.Context(), raw, def)
		if err == nil {
			outputs = res.Outputs
			inputs = map[string]any(res.Inputs)
			errorMessage = res.ErrorMessage
			if res.Trace != nil {
				traces = []map[string]any{res.Trace.Map()}
			}
		}
	default:
		s.writeError(w, http.StatusNotFound, meta, "Model "+modelID+" not found")
		return
	}

	if err != nil {
		s.record(r.Context(), calculationID, tokenClient, def, start, raw, nil, nil, err.Error())
		s.writeFailure(w, meta, calculationID, err)
		return
	}

	s.record(r.Context(), calculationID, tokenClient, def, start, inputs, traces, outputs, errorMessage)
	s.writeJSON(w, http.StatusOK, dataEnvelope{Data: outputs, Metadata: meta})
}

// writeFailure maps the error taxonomy onto HTTP outcomes.
func (s *Server) writeFailure(w http.ResponseWriter, meta metadata, calculationID string, err error) {
	if verr, ok := errors.AsValidation(err); ok {
		s.writeError(w, http.StatusBadRequest, meta, verr.Error())
		return
	}
	if masked, ok := errors.AsMasked(err); ok {
		s.log.Error("calculation failed",
			zap.String("calculationId", calculationID),
			zap.String("error", masked.Internal))
		s.writeError(w, http.StatusInternalServerError, meta, masked.UserMessage)
		return
	}
	s.log.Error("calculation failed",
		zap.String("calculationId", calculationID),
		zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, meta, "Internal calculation error")
}

func (s *Server) record(ctx context.Context, calculationID, clientID string, def *model.Definition,
	start time.Time, inputs map[string]any, traces []map[string]any, outputs calc.Outputs, errorMessage string) {
	var payload json.RawMessage
	if outputs != nil {
		payload, _ = json.Marshal(outputs)
	}
	s.audit.Record(ctx, audit.Record{
		CalculationID: calculationID,
		ClientID:      clientID,
		Model:         def.ID,
		Namespace:     s.namespace,
		Timestamp:     start,
		DurationMs:    time.Since(start).Milliseconds(),
		Inputs:        inputs,
		Traces:        traces,
		Outputs:       payload,
		ErrorMessage:  errorMessage,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, meta metadata, description string) {
	var env errorEnvelope
	env.Error.ResponseCode = status
	env.Error.Description = description
	env.Metadata = meta
	s.writeJSON(w, status, env)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("write response failed", zap.Error(err))
	}
}
