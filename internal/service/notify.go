package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/TaskDealer/internal/port/broadcast"
	"github.com/Strob0t/TaskDealer/internal/port/messagequeue"
	"github.com/Strob0t/TaskDealer/internal/resilience"
)

// notifier fans a state change out to dashboard clients and to other
// instances. Both sinks are optional and failures never reach the caller.
type notifier struct {
	hub     broadcast.Broadcaster
	queue   messagequeue.Queue
	breaker *resilience.Breaker
}

func (n *notifier) broadcast(ctx context.Context, eventType string, payload any) {
	if n.hub == nil {
		return
	}
	n.hub.BroadcastEvent(ctx, eventType, payload)
}

func (n *notifier) publish(ctx context.Context, subject string, payload any) {
	if n.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal queue payload", "subject", subject, "error", err)
		return
	}

	send := func(ctx context.Context) error {
		return n.queue.Publish(ctx, subject, data)
	}
	if n.breaker != nil {
		err = n.breaker.Execute(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		slog.WarnContext(ctx, "publish failed", "subject", subject, "error", err)
	}
}
