package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/juristech/process-extract/internal/config"
	"github.com/juristech/process-extract/internal/model"
	"github.com/juristech/process-extract/internal/resilience"
	"github.com/juristech/process-extract/pkg/anthropic"
)

// errMalformedResponse marks model output that failed JSON or schema checks.
// One retry is allowed for it: a fresh sample usually comes back well-formed.
var errMalformedResponse = eris.New("model returned malformed extraction")

// AnthropicExtractor runs extractions through the Anthropic Messages API with
// a request rate limit, retries on transient failures and a circuit breaker
// shared by every worker.
type AnthropicExtractor struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	retry       resilience.RetryConfig
	limiter     *rate.Limiter
	breaker     *resilience.CircuitBreaker
	system      []anthropic.SystemBlock
}

// NewAnthropicExtractor wires an extractor from configuration.
func NewAnthropicExtractor(client anthropic.Client, cfg config.ExtractionConfig, api config.AnthropicConfig) *AnthropicExtractor {
	retry := resilience.FromRetryConfig(cfg.MaxAttempts)
	retry.ShouldRetry = shouldRetryExtraction
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")

	breakerCfg := resilience.FromCircuitConfig(cfg.BreakerThreshold, cfg.BreakerCooldownSecs)
	breakerCfg.ShouldTrip = resilience.IsTransient
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("extraction circuit state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	return &AnthropicExtractor{
		client:      client,
		model:       api.Model,
		maxTokens:   int64(api.MaxTokens),
		temperature: api.Temperature,
		timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
		retry:       retry,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst),
		breaker:     resilience.NewCircuitBreaker(breakerCfg),
		system:      anthropic.BuildCachedSystemBlocks(systemPrompt),
	}
}

// Extract sends the document through the model and returns the validated
// structured extraction. Errors come back classified for the pipeline.
func (e *AnthropicExtractor) Extract(ctx context.Context, doc Document) (*model.Extraction, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	prompt := userPrompt(doc)

	extraction, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*model.Extraction, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "extraction rate limiter")
		}
		return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*model.Extraction, error) {
			return e.attempt(ctx, doc, prompt)
		})
	})
	if err != nil {
		return nil, classifyExtractionErr(err)
	}

	zap.L().Info("extraction complete",
		zap.String("case_id", doc.CaseID),
		zap.Int("pages", doc.Pages),
		zap.Int("events", len(extraction.Timeline)),
		zap.Int("evidence", len(extraction.Evidence)))
	return extraction, nil
}

// attempt performs a single model call and validates its output.
func (e *AnthropicExtractor) attempt(ctx context.Context, doc Document, prompt string) (*model.Extraction, error) {
	temp := e.temperature
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: &temp,
		System:      e.system,
		Messages: []anthropic.Message{{
			Role:     "user",
			Content:  prompt,
			Document: doc.Data,
		}},
	})
	if err != nil {
		if status := anthropic.APIStatusCode(err); status > 0 && resilience.IsTransientHTTPStatus(status) {
			return nil, resilience.NewTransientError(err, status)
		}
		return nil, err
	}

	resp.Usage.LogCost(e.model, "extraction")

	raw := cleanJSONFromText(resp.Text())
	if raw == "" {
		return nil, eris.Wrap(errMalformedResponse, "empty model response")
	}
	if err := ValidateExtraction(BuildExtractionSchema(), []byte(raw)); err != nil {
		return nil, eris.Wrap(errMalformedResponse, err.Error())
	}

	var out model.Extraction
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, eris.Wrap(errMalformedResponse, "unmarshal extraction: "+err.Error())
	}
	if err := out.Validate(); err != nil {
		return nil, eris.Wrap(errMalformedResponse, err.Error())
	}
	return &out, nil
}

// shouldRetryExtraction retries transient API failures and malformed output.
func shouldRetryExtraction(err error) bool {
	return errors.Is(err, errMalformedResponse) || resilience.IsTransient(err)
}

// classifyExtractionErr maps a terminal extraction failure onto the pipeline
// error taxonomy with a client-safe message.
func classifyExtractionErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.WrapError(err, model.ErrKindTimeout, "extraction timed out")
	case errors.Is(err, resilience.ErrCircuitOpen):
		return model.WrapError(err, model.ErrKindExtraction, "extraction backend unavailable")
	case errors.Is(err, errMalformedResponse):
		return model.WrapError(err, model.ErrKindExtraction, "model returned malformed extraction")
	default:
		return model.WrapError(err, model.ErrKindExtraction, "extraction failed")
	}
}

// cleanJSONFromText pulls a JSON object out of text that may carry markdown
// code fences or stray prose around it.
func cleanJSONFromText(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
