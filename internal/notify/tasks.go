// FilePath: internal/notify/tasks.go
package notify

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names on the notification queue.
const (
	TypePush  = "notify:push"
	TypeMail  = "notify:mail"
	TypeTweet = "notify:tweet"
)

// QueueName is the asynq queue all notification tasks are enqueued on.
const QueueName = "notifications"

const (
	taskMaxRetry = 3
	taskTimeout  = 30 * time.Second
)

// PushPayload is the body of a TypePush task.
type PushPayload struct {
	Tokens  []string `json:"tokens"`
	Message string   `json:"message"`
}

// MailPayload is the body of a TypeMail task.
type MailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TweetPayload is the body of a TypeTweet task.
type TweetPayload struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
	Text   string `json:"text"`
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data,
		asynq.Queue(QueueName),
		asynq.MaxRetry(taskMaxRetry),
		asynq.Timeout(taskTimeout),
	), nil
}

// NewPushTask builds a queued push delivery.
func NewPushTask(tokens []string, message string) (*asynq.Task, error) {
	return newTask(TypePush, PushPayload{Tokens: tokens, Message: message})
}

// NewMailTask builds a queued mail delivery.
func NewMailTask(to, subject, body string) (*asynq.Task, error) {
	return newTask(TypeMail, MailPayload{To: to, Subject: subject, Body: body})
}

// NewTweetTask builds a queued tweet delivery.
func NewTweetTask(token, secret, text string) (*asynq.Task, error) {
	return newTask(TypeTweet, TweetPayload{Token: token, Secret: secret, Text: text})
}
