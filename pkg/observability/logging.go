package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/rewind/pkg/domain"
)

// LogHooks writes unit lifecycle events to logger.
// Recorded mutations are logged at Debug, everything else at Info; failed replays at Error.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnUnitCommitted: func(ctx context.Context, e *domain.UnitEvent) {
			logger.InfoContext(ctx, "unit_committed", "unit_id", e.UnitID, "name", e.Name, "events", e.Events)
		},
		OnUnitDiscarded: func(ctx context.Context, e *domain.UnitEvent) {
			logger.InfoContext(ctx, "unit_discarded", "unit_id", e.UnitID, "name", e.Name)
		},
		OnEventRecorded: func(ctx context.Context, e *domain.RecordEvent) {
			logger.DebugContext(ctx, "event_recorded",
				"unit_id", e.UnitID,
				"kind", string(e.Kind),
				"component", e.Component,
				"member", e.Member,
			)
		},
		OnUndone: func(ctx context.Context, e *domain.UnitEvent) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "replay_failed", "unit_id", e.UnitID, "name", e.Name, "direction", string(e.Direction), "err", e.Err)
				return
			}
			logger.InfoContext(ctx, "replayed", "unit_id", e.UnitID, "name", e.Name, "direction", string(e.Direction))
		},
	}
}
