// internal/workers/project/extract-project-details/handler.go
package extractprojectdetails

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "astro-backend-llm/internal/common/errors"
	"astro-backend-llm/internal/common/llm"
	"astro-backend-llm/internal/common/metrics"
	"astro-backend-llm/internal/common/secret"
	"astro-backend-llm/internal/models"
)

const (
	TaskType = "extract-project-details"

	stageGeneration = "generation"
	stageParsing    = "parsing"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// TextGenerator runs the free-text generation stage.
type TextGenerator interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// RecordParser runs the structured extraction stage.
type RecordParser interface {
	Extract(ctx context.Context, req llm.ExtractionRequest, out llm.Validator) (int, error)
}

// Handler turns a prompt into validated project details in two sequential LLM calls. It holds
// no per-request state and is safe for concurrent use.
type Handler struct {
	config    *Config
	generator TextGenerator
	parser    RecordParser
	template  *secret.Template
	tracer    trace.Tracer
	logger    Logger
}

func NewHandler(config *Config, generator TextGenerator, parser RecordParser, template *secret.Template, log Logger) (*Handler, error) {
	if config == nil || config.GenerationModel == "" {
		return nil, apperrors.NewConfigurationError("llm.generation_model is required")
	}
	if config.ParserModel == "" {
		return nil, apperrors.NewConfigurationError("llm.parser_model is required")
	}
	if generator == nil || parser == nil {
		return nil, apperrors.NewConfigurationError("llm clients are required")
	}
	if template == nil {
		return nil, apperrors.NewConfigurationError("instruction template is required")
	}

	return &Handler{
		config:    config,
		generator: generator,
		parser:    parser,
		template:  template,
		tracer:    otel.Tracer(TaskType),
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}, nil
}

// Generate runs stage 1 then stage 2. Stage 2 never runs when stage 1 fails, and a record is
// only returned after it passed every field invariant.
func (h *Handler) Generate(ctx context.Context, prompt string) (*models.ProjectDetails, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, apperrors.NewInvalidRequestError("prompt must not be empty")
	}

	ctx, span := h.tracer.Start(ctx, "project.generate", trace.WithAttributes(
		attribute.Int("prompt.length", len(prompt)),
	))
	defer span.End()

	text, err := h.generate(ctx, prompt)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	details, err := h.parse(ctx, text)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("talents.count", len(details.TalentsRequired)))
	span.SetStatus(codes.Ok, "")
	return details, nil
}

func (h *Handler) generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := h.tracer.Start(ctx, "project.generate.stage1", trace.WithAttributes(
		attribute.String("llm.model", h.config.GenerationModel),
		attribute.Float64("llm.temperature", h.config.Temperature),
	))
	defer span.End()

	start := time.Now()
	text, err := h.generator.Complete(ctx, llm.CompletionRequest{
		Model:       h.config.GenerationModel,
		Prompt:      h.template.Render(prompt),
		Temperature: h.config.Temperature,
	})
	metrics.StageDuration.WithLabelValues(stageGeneration).Observe(time.Since(start).Seconds())

	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrNoChoices
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", err, ctxErr)
		}
		h.logger.Error("generation stage failed", map[string]interface{}{
			"model":      h.config.GenerationModel,
			"error":      err.Error(),
			"durationMs": time.Since(start).Milliseconds(),
		})
		stdErr := apperrors.NewUpstreamGenerationError(err)
		recordSpanError(span, stdErr)
		return "", stdErr
	}

	h.logger.Info("generation stage completed", map[string]interface{}{
		"model":      h.config.GenerationModel,
		"textLength": len(text),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return text, nil
}

func (h *Handler) parse(ctx context.Context, text string) (*models.ProjectDetails, error) {
	ctx, span := h.tracer.Start(ctx, "project.generate.stage2", trace.WithAttributes(
		attribute.String("llm.model", h.config.ParserModel),
		attribute.String("llm.response_format", h.config.ResponseFormat),
	))
	defer span.End()

	start := time.Now()
	var details models.ProjectDetails
	attempts, err := h.parser.Extract(ctx, llm.ExtractionRequest{
		Model:          h.config.ParserModel,
		Instructions:   parserInstructions,
		Content:        text,
		Temperature:    h.config.ParserTemperature,
		Schema:         models.ProjectDetailsSchema,
		ResponseFormat: h.config.ResponseFormat,
	}, &details)
	metrics.StageDuration.WithLabelValues(stageParsing).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("parser.attempts", attempts))
	if attempts > 0 {
		metrics.ParserAttempts.Observe(float64(attempts))
	}

	fields := map[string]interface{}{
		"model":      h.config.ParserModel,
		"attempts":   attempts,
		"durationMs": time.Since(start).Milliseconds(),
	}

	if err != nil {
		var stdErr *apperrors.StandardError
		if errors.Is(err, llm.ErrSchemaValidation) {
			stdErr = apperrors.NewSchemaValidationError(err)
		} else {
			stdErr = apperrors.NewUpstreamParsingError(err)
		}
		fields["error"] = err.Error()
		fields["errorCode"] = string(stdErr.Code)
		h.logger.Error("parsing stage failed", fields)
		recordSpanError(span, stdErr)
		return nil, stdErr
	}

	// Parsers other than llm.StructuredClient may skip validation.
	if err := details.Validate(); err != nil {
		stdErr := apperrors.NewSchemaValidationError(err)
		fields["error"] = err.Error()
		h.logger.Error("parsed record violates invariants", fields)
		recordSpanError(span, stdErr)
		return nil, stdErr
	}

	fields["talents"] = len(details.TalentsRequired)
	h.logger.Info("parsing stage completed", fields)
	return &details, nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
