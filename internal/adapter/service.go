package adapter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/browserbase-chat/internal/browser"
	"github.com/shehryarbajwa/browserbase-chat/internal/completion"
	"github.com/shehryarbajwa/browserbase-chat/internal/metrics"
	"github.com/shehryarbajwa/browserbase-chat/internal/protocol"
	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

// Catalog maps model ids to the group that serves them
type Catalog interface {
	GetModelsList(ctx context.Context, forceRefresh bool) ([]models.ModelRecord, error)
	Resolve(ctx context.Context, modelID string) (string, error)
}

// Sessions runs work against a group's page, one caller at a time
type Sessions interface {
	Do(ctx context.Context, group string, fn func(ctx context.Context, page browser.Page) error) error
	// MarkReload makes the next use of the group's page start from a fresh
	// navigation
	MarkReload(group string)
}

// Runner drives one prompt through a page
type Runner interface {
	Run(ctx context.Context, page browser.Page, p completion.Prompt, progress completion.Progress) (models.CompletionResult, error)
}

// Service is the single entry point the HTTP layer talks to
type Service struct {
	catalog  Catalog
	sessions Sessions
	runner   Runner
	validate *validator.Validate
	words    int
	log      zerolog.Logger
	now      func() time.Time
}

// NewService wires the adapter. chunkWords sets the streamed group size.
func NewService(catalog Catalog, sessions Sessions, runner Runner, chunkWords int, log zerolog.Logger) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if chunkWords <= 0 {
		chunkWords = protocol.DefaultChunkWords
	}
	return &Service{
		catalog:  catalog,
		sessions: sessions,
		runner:   runner,
		validate: v,
		words:    chunkWords,
		log:      log.With().Str("component", "adapter").Logger(),
		now:      time.Now,
	}
}

// ChunkWords is the number of words per streamed delta
func (s *Service) ChunkWords() int { return s.words }

// ListModels returns the catalog, refreshing it when the cache expired
func (s *Service) ListModels(ctx context.Context) (protocol.ModelList, error) {
	recs, err := s.catalog.GetModelsList(ctx, false)
	if err != nil {
		return protocol.ModelList{}, err
	}
	return protocol.NewModelList(recs), nil
}

// Refresh rebuilds the catalog regardless of the cache
func (s *Service) Refresh(ctx context.Context) (protocol.ModelList, error) {
	recs, err := s.catalog.GetModelsList(ctx, true)
	if err != nil {
		return protocol.ModelList{}, err
	}
	return protocol.NewModelList(recs), nil
}

// Validate rejects malformed requests before any automation happens
func (s *Service) Validate(req models.ChatRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	return nil
}

// Complete answers a chat request through the remote UI. progress, when
// set, sees the answer grow while it renders.
func (s *Service) Complete(ctx context.Context, req models.ChatRequest, progress completion.Progress) (*protocol.Completion, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	group, err := s.catalog.Resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	prompt := completion.Prompt{
		Group:       group,
		Model:       req.Model,
		Text:        req.Prompt(),
		Temperature: req.Temperature,
	}

	log := s.log.With().Str("group", group).Str("model", req.Model).Logger()
	log.Debug().Int("messages", len(req.Messages)).Bool("stream", req.Stream).Msg("completion started")

	started := s.now()
	var result models.CompletionResult
	err = s.sessions.Do(ctx, group, func(ctx context.Context, page browser.Page) error {
		res, err := s.runner.Run(ctx, page, prompt, progress)
		if err != nil {
			return err
		}
		if res.Partial {
			// the remote UI may still be rendering the cut off answer
			s.sessions.MarkReload(group)
		}
		result = res
		return nil
	})

	outcome := outcomeOf(result, err)
	metrics.ObserveCompletion(group, outcome, started)
	if err != nil {
		log.Warn().Err(err).Str("outcome", outcome).Msg("completion failed")
		return nil, err
	}

	log.Info().
		Str("outcome", outcome).
		Int("chars", len([]rune(result.Content))).
		Dur("took", s.now().Sub(started)).
		Msg("completion finished")
	return protocol.NewCompletion(req.Model, prompt.Text, result, s.now()), nil
}

func outcomeOf(res models.CompletionResult, err error) string {
	var timeout *models.AutomationTimeoutError
	switch {
	case err == nil && res.Partial:
		return "partial"
	case err == nil:
		return "ok"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &models.ValidationError{Message: err.Error()}
	}

	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "ChatRequest.")
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "min":
		msg = fmt.Sprintf("must contain at least %s item", fe.Param())
	case "gte":
		msg = "must be at least " + fe.Param()
	case "lte":
		msg = "must be at most " + fe.Param()
	default:
		msg = "is invalid"
	}
	return &models.ValidationError{Field: field, Message: msg}
}
