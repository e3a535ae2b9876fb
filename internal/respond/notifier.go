package respond

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"trendguard/internal/logger"
	"trendguard/pkg/models"
)

// Notifier delivers notify actions to the moderation team channel.
type Notifier interface {
	Notify(ctx context.Context, contentID string, action models.ResponseAction) error
}

// LogNotifier writes notifications to the process log, rate limited so a burst
// of matching content cannot flood the channel.
type LogNotifier struct {
	limiter *rate.Limiter
}

// NewLogNotifier creates a notifier allowing perMinute notifications.
func NewLogNotifier(perMinute int) *LogNotifier {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &LogNotifier{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

// Notify logs one notification. Over-limit notifications are dropped with a
// warning rather than blocking a response worker.
func (n *LogNotifier) Notify(ctx context.Context, contentID string, action models.ResponseAction) error {
	if !n.limiter.Allow() {
		logger.Warnf("notification rate limit exceeded, dropping notify for content %s", contentID)
		return nil
	}
	logger.Infof("moderation notify: content=%s severity=%s reason=%q", contentID, action.Severity, action.Reason)
	return nil
}
