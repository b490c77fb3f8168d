// FilePath: internal/notify/worker.go
package notify

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	nuts "github.com/vaudience/go-nuts"
)

// Worker is the bounded pool draining the notification queue. Delivery
// failures are retried by the queue and otherwise observable only in logs;
// the protocol side never learns about them.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker creates a worker pool with the given concurrency.
func NewWorker(redis asynq.RedisConnOpt, concurrency int, sender Sender) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 1},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePush, func(ctx context.Context, t *asynq.Task) error {
		var p PushPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		return sender.Push(ctx, p.Tokens, p.Message)
	})
	mux.HandleFunc(TypeMail, func(ctx context.Context, t *asynq.Task) error {
		var p MailPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		return sender.Mail(ctx, p.To, p.Subject, p.Body)
	})
	mux.HandleFunc(TypeTweet, func(ctx context.Context, t *asynq.Task) error {
		var p TweetPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		return sender.Tweet(ctx, p.Token, p.Secret, p.Text)
	})

	return &Worker{server: server, mux: mux}
}

// Start begins processing queued deliveries.
func (w *Worker) Start() error {
	nuts.L.Infof("[Notify] Starting notification worker pool")
	return w.server.Start(w.mux)
}

// Shutdown drains in-flight deliveries and stops the pool.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}
