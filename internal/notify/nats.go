package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const (
	SubjectVerification  = "verification"
	SubjectPasswordReset = "password_reset"
)

// Publisher is the subset of *nats.Conn used by NATSNotifier.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSNotifier publishes notifications as JSON for an external mailer.
type NATSNotifier struct {
	pub    Publisher
	prefix string
}

var _ Notifier = (*NATSNotifier)(nil)

// NewNATSNotifier publishes on "<prefix>.verification" and "<prefix>.password_reset".
func NewNATSNotifier(pub Publisher, prefix string) *NATSNotifier {
	return &NATSNotifier{pub: pub, prefix: prefix}
}

// Connect dials the NATS server at url.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("authsvc"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func (n *NATSNotifier) SendVerification(ctx context.Context, msg Message) error {
	return n.publish(ctx, SubjectVerification, msg)
}

func (n *NATSNotifier) SendPasswordReset(ctx context.Context, msg Message) error {
	return n.publish(ctx, SubjectPasswordReset, msg)
}

func (n *NATSNotifier) publish(ctx context.Context, kind string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	subject := n.prefix + "." + kind
	if err := n.pub.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
