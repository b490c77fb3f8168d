// FilePath: internal/notify/notify.go
package notify

import (
	"context"

	nuts "github.com/vaudience/go-nuts"
)

// Dispatcher is the outbound notification collaborator required by the
// relay core. Implementations must not block the caller on delivery;
// rule-triggered and offline notifications are fire-and-forget from the
// protocol's perspective, with failures observable only via logs.
type Dispatcher interface {
	SendPush(tokens []string, message string) error
	SendMail(to, subject, body string) error
	SendTweet(token, secret, text string) error
}

// Sender performs the actual delivery for queued notifications. The
// delivery mechanics (GCM/APNS, SMTP, twitter API) live outside this core;
// LogSender is the in-process default.
type Sender interface {
	Push(ctx context.Context, tokens []string, message string) error
	Mail(ctx context.Context, to, subject, body string) error
	Tweet(ctx context.Context, token, secret, text string) error
}

// LogSender logs deliveries instead of performing them.
type LogSender struct{}

func (LogSender) Push(_ context.Context, tokens []string, message string) error {
	nuts.L.Infof("[Notify] push to %d token(s): %s", len(tokens), message)
	return nil
}

func (LogSender) Mail(_ context.Context, to, subject, _ string) error {
	nuts.L.Infof("[Notify] mail to %s: %s", to, subject)
	return nil
}

func (LogSender) Tweet(_ context.Context, _, _, text string) error {
	nuts.L.Infof("[Notify] tweet: %s", text)
	return nil
}
