package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"quote-pricing/core/calc"
	"quote-pricing/core/model"
	"quote-pricing/internal/errors"
)

const (
	headerCalculationID = "x-insight-calculationid"
	headerDebug         = "x-insight-debug"
	headerNamespace     = "x-insight-namespace"
)

// RemotePricer dispatches each line to the calculation endpoint over
// HTTP instead of pricing it in process. Failures are masked: the
// caller sees a stable description while the transport detail stays in
// the logs.
type RemotePricer struct {
	base      string
	namespace string
	client    *http.Client
	log       *zap.Logger
	timeout   time.Duration
}

// NewRemotePricer creates a dispatcher against a base endpoint URL.
func NewRemotePricer(base, namespace string, timeout time.Duration, log *zap.Logger) *RemotePricer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemotePricer{
		base:      base,
		namespace: namespace,
		client:    &http.Client{Timeout: timeout},
		log:       log,
		timeout:   timeout,
	}
}

// remoteEnvelope is the calculation endpoint's response wrapper.
type remoteEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		ResponseCode int    `json:"responseCode"`
		Description  string `json:"description"`
	} `json:"error"`
}

// PriceLine implements LinePricer over the wire. Transient transport
// failures are retried with exponential backoff inside the per-line
// timeout.
func (p *RemotePricer) PriceLine(ctx context.Context, req LineRequest) (*calc.Result, error) {
	lineCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{"modelInputs": req.Values})
	if err != nil {
		return nil, errors.FatalWrap("marshal line dispatch body", err)
	}

	url := fmt.Sprintf("%s/ces/clients/%s/calculations/%s", p.base, req.ClientID, model.QuoteLineSapID)

	var envelope remoteEnvelope
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(lineCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if req.Token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+req.Token)
		}
		httpReq.Header.Set(headerCalculationID, req.CalculationID)
		httpReq.Header.Set(headerNamespace, p.namespace)
		if req.Debug {
			httpReq.Header.Set(headerDebug, "true")
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("calculation endpoint returned %d", resp.StatusCode)
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return backoff.Permanent(fmt.Errorf("decode calculation response: %w", err))
		}
		if resp.StatusCode != http.StatusOK && envelope.Error == nil {
			return backoff.Permanent(fmt.Errorf("calculation endpoint returned %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), lineCtx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, errors.Masked(
			fmt.Sprintf("line dispatch to %s failed: %v", url, err),
			"Calculation service unavailable")
	}

	if envelope.Error != nil {
		return nil, errors.Masked(
			fmt.Sprintf("line dispatch to %s rejected: %d %s", url, envelope.Error.ResponseCode, envelope.Error.Description),
			envelope.Error.Description)
	}

	outputs, err := decodeOutputs(envelope.Data)
	if err != nil {
		return nil, errors.Masked(
			fmt.Sprintf("line dispatch to %s returned malformed data: %v", url, err),
			"Calculation service returned an unreadable response")
	}

	res := &calc.Result{Outputs: outputs, Trace: calc.NewTrace()}
	if msg, ok := outputs.Get("errorMessage"); ok {
		if s, ok := msg.(string); ok {
			res.ErrorMessage = s
		}
	}
	return res, nil
}

// decodeOutputs reads a JSON object into an ordered Outputs list,
// preserving the key order the endpoint emitted.
func decodeOutputs(raw json.RawMessage) (calc.Outputs, error) {
	d := json.NewDecoder(bytes.NewReader(raw))
	tok, err := d.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var outputs calc.Outputs
	for d.More() {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var value any
		if err := d.Decode(&value); err != nil {
			return nil, err
		}
		outputs = append(outputs, calc.Output{Name: name, Value: value})
	}
	return outputs, nil
}
