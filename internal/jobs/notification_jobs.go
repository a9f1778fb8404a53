package jobs

import (
	"context"

	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
)

// dispatch delivers the intents a pass produced. Delivery is best effort: a
// failed dispatch is logged and the pass result stands.
func (jr *JobRunner) dispatch(ctx context.Context, jobName string, intents []domain.NotificationIntent) {
	if len(intents) == 0 || jr.services.Notifications == nil {
		return
	}
	res, err := jr.services.Notifications.Dispatch(ctx, intents)
	if err != nil {
		logger.Error("Failed to dispatch notifications", "job", jobName, "intents", len(intents), "error", err)
		return
	}
	logger.Info("Dispatched notifications", "job", jobName, "delivered", res.Delivered, "suppressed", res.Suppressed)
}
