package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/tom2tomtomtom/airwave/cache"
	"github.com/tom2tomtomtom/airwave/internal/catalog"
)

// ErrWarmFailed is returned when no target could be warmed
var ErrWarmFailed = errors.New("cache warm failed")

// WarmHandler refreshes catalog reads into the cache
type WarmHandler struct {
	catalog *catalog.Service
	warmer  *cache.Warmer
	logger  zerolog.Logger
}

func NewWarmHandler(svc *catalog.Service, warmer *cache.Warmer, logger zerolog.Logger) *WarmHandler {
	return &WarmHandler{catalog: svc, warmer: warmer, logger: logger}
}

// Targets validates p and resolves it to warm targets
func (h *WarmHandler) Targets(p WarmPayload) ([]cache.WarmTarget, error) {
	var clientID *uuid.UUID
	if p.ClientID != "" {
		id, err := uuid.Parse(p.ClientID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad client_id %q", catalog.ErrInvalidInput, p.ClientID)
		}
		clientID = &id
	}
	return h.catalog.WarmTargets(p.Resources, clientID)
}

// Run warms the targets for p. Partial failures are logged and reported in
// the results; only a warm where every target failed returns an error.
func (h *WarmHandler) Run(ctx context.Context, p WarmPayload) (*cache.WarmupResults, error) {
	targets, err := h.Targets(p)
	if err != nil {
		return nil, err
	}
	res := h.warmer.Warmup(ctx, targets)
	if len(targets) > 0 && res.Errors == len(targets) {
		return res, fmt.Errorf("%w: all %d targets failed", ErrWarmFailed, len(targets))
	}
	return res, nil
}

// ProcessTask implements asynq.Handler
func (h *WarmHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p WarmPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error().Err(err).Msg("bad warm payload")
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info().Strs("resources", p.Resources).Str("client_id", p.ClientID).Msg("warm start")
	res, err := h.Run(ctx, p)
	switch {
	case errors.Is(err, catalog.ErrInvalidInput):
		// retrying cannot fix the payload
		h.logger.Error().Err(err).Msg("warm dropped")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil:
		return err
	}
	h.logger.Info().Int("targets", len(res.Results)).Int("errors", res.Errors).
		Dur("took", res.TotalTime).Msg("warm done")
	return nil
}

var _ asynq.Handler = (*WarmHandler)(nil)
