package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Notification kinds the flows emit.
const (
	NotificationRegistrationConfirm = "registration.confirm"
	NotificationRecoveryConfirm     = "recovery.confirm"
)

// ConsoleNotifier prints notifications to stdout. It stands in for a real
// mail transport during development and in the examples.
type ConsoleNotifier struct{}

var _ Notifier = ConsoleNotifier{}

func (ConsoleNotifier) Send(ctx context.Context, kind, address string, payload map[string]any) error {
	fmt.Println("====== SENDING NOTIFICATION =======")
	fmt.Printf("id:   %s\n", uuid.NewString())
	fmt.Printf("kind: %s\n", kind)
	fmt.Printf("to:   %s\n", address)
	for k, v := range payload {
		fmt.Printf("  %s: %v\n", k, v)
	}
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, string, string, map[string]any) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
