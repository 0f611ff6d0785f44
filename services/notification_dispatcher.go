package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"momentumAPI/internal/notification"
	"momentumAPI/utils"
)

type PushProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, p notification.Push) error
}

type tokenSource interface {
	deviceTokens(ctx context.Context, p notification.Push) ([]notification.DeviceToken, error)
}

// NotificationDispatcher delivers pushes off the request path with a small worker pool.
type NotificationDispatcher struct {
	tokens   tokenSource
	provider PushProvider
	logger   *zap.Logger
	workers  int
	jobQueue chan notification.Push
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewNotificationDispatcher(tokens tokenSource, provider PushProvider, workers int, logger *zap.Logger) *NotificationDispatcher {
	d := &NotificationDispatcher{
		tokens:   tokens,
		provider: provider,
		logger:   logger,
		workers:  workers,
		jobQueue: make(chan notification.Push, 100),
		stopChan: make(chan struct{}),
	}
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case p := <-d.jobQueue:
			d.process(p)
		case <-d.stopChan:
			return
		}
	}
}

func (d *NotificationDispatcher) process(p notification.Push) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.provider == nil {
		utils.PushesSent.WithLabelValues(string(p.Kind), "skipped").Inc()
		d.logger.Debug("push_skipped_no_provider", zap.String("user_id", p.UserID.String()), zap.String("kind", string(p.Kind)))
		return
	}

	tokens, err := d.tokens.deviceTokens(ctx, p)
	if err != nil {
		utils.PushesSent.WithLabelValues(string(p.Kind), "failed").Inc()
		d.logger.Error("push_tokens_lookup_failed", zap.String("user_id", p.UserID.String()), zap.Error(err))
		return
	}
	if len(tokens) == 0 {
		utils.PushesSent.WithLabelValues(string(p.Kind), "skipped").Inc()
		return
	}

	if err := d.provider.SendPush(ctx, tokens, p); err != nil {
		utils.PushesSent.WithLabelValues(string(p.Kind), "failed").Inc()
		d.logger.Warn("push_failed", zap.String("user_id", p.UserID.String()), zap.String("kind", string(p.Kind)), zap.Error(err))
		return
	}
	utils.PushesSent.WithLabelValues(string(p.Kind), "sent").Inc()
}

// Dispatch queues a push. It gives up when the queue stays full for too long.
func (d *NotificationDispatcher) Dispatch(p notification.Push) bool {
	select {
	case <-d.stopChan:
		return false
	default:
	}

	select {
	case d.jobQueue <- p:
		return true
	case <-d.stopChan:
		return false
	case <-time.After(5 * time.Second):
		d.logger.Warn("push_queue_full", zap.String("user_id", p.UserID.String()), zap.String("kind", string(p.Kind)))
		return false
	}
}

func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("notification_dispatcher_stopping")
		close(d.stopChan)
		d.wg.Wait()
	})
}
