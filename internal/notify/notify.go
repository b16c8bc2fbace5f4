// Package notify hands verification and password-reset tokens to whatever
// delivers them to the user. Delivery itself (SMTP, templates) lives outside
// this service.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"authsvc/internal/logger"
)

// Message is the payload of a verification or password-reset notification.
type Message struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Notifier delivers tokens out of band.
type Notifier interface {
	SendVerification(ctx context.Context, msg Message) error
	SendPasswordReset(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the log. Meant for local development,
// where the link is copied from the console.
type LogNotifier struct {
	log *zap.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = logger.L()
	}
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) SendVerification(_ context.Context, msg Message) error {
	n.log.Info("verification link issued", zap.String("email", msg.Email), zap.String("link", msg.Link))
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, msg Message) error {
	n.log.Info("password reset link issued",
		zap.String("email", msg.Email),
		zap.String("link", msg.Link),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}
