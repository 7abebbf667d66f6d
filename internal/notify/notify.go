// Package notify defines the notifier collaborator: an external
// transport that delivers a rendered message to a contact address.
// Notification failure never affects fulfillment status; unsent
// messages are retried out-of-band by the maintenance sweep.
package notify

import "context"

type Notifier interface {
	Send(ctx context.Context, addr, subject, htmlBody string) error
}
