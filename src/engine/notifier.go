package engine

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/model"
)

// Notifier receives user-facing events the engine produces outside the
// request/response cycle: fired alerts and order lifecycle updates from the
// monitor loop.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert model.Alert, lastPrice float64)
	NotifyOrderUpdate(ctx context.Context, order model.Order, message string)
}

// LogNotifier is the default Notifier. It only writes structured logs; a
// chat-bot front-end plugs in its own implementation.
type LogNotifier struct{}

func (LogNotifier) NotifyAlert(ctx context.Context, alert model.Alert, lastPrice float64) {
	logger.WithFields(logger.Fields{
		"user_id":   alert.UserID,
		"symbol":    alert.Symbol,
		"target":    alert.TargetPrice,
		"direction": alert.Direction,
		"last":      lastPrice,
	}).Info("Price alert fired")
}

func (LogNotifier) NotifyOrderUpdate(ctx context.Context, order model.Order, message string) {
	logger.WithFields(logger.Fields{
		"user_id":  order.UserID,
		"order_id": order.ID,
		"venue":    order.Venue,
		"symbol":   order.Symbol,
		"status":   order.Status,
	}).Info(message)
}
