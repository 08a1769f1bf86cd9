package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/legalwise-backend/internal/metrics"
)

// Notification is a rendered frame waiting for delivery. An empty UserIDs
// means every connected user.
type Notification struct {
	UserIDs []string
	Payload []byte
}

// Dispatcher hands notifications from request handlers to a single delivery
// worker through a bounded queue, so a handler never blocks on delivery and a
// full queue is reported instead of silently dropped.
type Dispatcher struct {
	queue    chan Notification
	delivery Deliverer
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher with room for size pending notifications.
func NewDispatcher(delivery Deliverer, size int, logger zerolog.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		queue:    make(chan Notification, size),
		delivery: delivery,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Enqueue queues n without blocking.
func (d *Dispatcher) Enqueue(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case d.queue <- n:
		return nil
	default:
		metrics.DispatchDropped.Inc()
		return fmt.Errorf("%w: %d notifications pending", ErrQueueFull, cap(d.queue))
	}
}

// Pending returns the number of queued notifications.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run delivers queued notifications until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.logger.Warn().Int("pending", n).Msg("dispatcher stopped with undelivered notifications")
			}
			return
		case n := <-d.queue:
			d.deliver(n)
		}
	}
}

func (d *Dispatcher) deliver(n Notification) {
	if len(n.UserIDs) == 0 {
		delivered := d.delivery.Broadcast(n.Payload)
		d.logger.Debug().Int("delivered", delivered).Msg("broadcast delivered")
		return
	}
	for _, userID := range n.UserIDs {
		if d.delivery.SendTo(userID, n.Payload) {
			metrics.Deliveries.WithLabelValues("delivered").Inc()
		} else {
			metrics.Deliveries.WithLabelValues("offline").Inc()
		}
	}
}
