package generation

import (
	"context"

	"github.com/muhammadolammi/coverletter/internal/domain"
	"github.com/muhammadolammi/coverletter/internal/logger"
)

// LogObserver logs every transition at debug level, failures at warn.
type LogObserver struct{}

func (LogObserver) OnTransition(ctx context.Context, t Transition) {
	log := logger.FromContext(ctx).With("task", t.Task, "from", t.From, "to", t.To)
	if t.Err != nil {
		log.Warn("task transition", "code", domain.Code(t.Err), "error", t.Err)
		return
	}
	log.Debug("task transition")
}
