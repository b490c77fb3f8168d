// FilePath: internal/notify/dispatcher.go
package notify

import (
	"github.com/hibiken/asynq"
	"github.com/itsatony/relayhub/internal/errors"
)

// QueueDispatcher enqueues deliveries on the notification queue so
// outbound push/mail/tweet calls never block a session loop. A separate
// Worker pool drains the queue.
type QueueDispatcher struct {
	client *asynq.Client
}

// NewQueueDispatcher creates a dispatcher backed by the given redis
// connection.
func NewQueueDispatcher(redis asynq.RedisConnOpt) *QueueDispatcher {
	return &QueueDispatcher{client: asynq.NewClient(redis)}
}

// SendPush queues a push notification for the given device tokens.
func (d *QueueDispatcher) SendPush(tokens []string, message string) error {
	if len(tokens) == 0 {
		return nil
	}
	task, err := NewPushTask(tokens, message)
	if err != nil {
		return errors.NewInternalError("failed to build push task", err)
	}
	if _, err := d.client.Enqueue(task); err != nil {
		return errors.NewUnavailableError("failed to queue push notification", err)
	}
	return nil
}

// SendMail queues a mail delivery.
func (d *QueueDispatcher) SendMail(to, subject, body string) error {
	if to == "" {
		return errors.NewValidationError("mail recipient is empty", nil)
	}
	task, err := NewMailTask(to, subject, body)
	if err != nil {
		return errors.NewInternalError("failed to build mail task", err)
	}
	if _, err := d.client.Enqueue(task); err != nil {
		return errors.NewUnavailableError("failed to queue mail", err)
	}
	return nil
}

// SendTweet queues a tweet.
func (d *QueueDispatcher) SendTweet(token, secret, text string) error {
	if token == "" || secret == "" {
		return errors.NewValidationError("twitter credentials are empty", nil)
	}
	task, err := NewTweetTask(token, secret, text)
	if err != nil {
		return errors.NewInternalError("failed to build tweet task", err)
	}
	if _, err := d.client.Enqueue(task); err != nil {
		return errors.NewUnavailableError("failed to queue tweet", err)
	}
	return nil
}

// Close releases the queue connection.
func (d *QueueDispatcher) Close() error { return d.client.Close() }
