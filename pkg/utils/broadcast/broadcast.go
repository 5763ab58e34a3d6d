/*
	Copyright 2026 OpenVelo
*/

// Package broadcast fans one source channel out to a dynamic set of
// subscribers. The metrics aggregator uses two instances of it for the
// two notification tiers (sensor updates, stats updates).
package broadcast

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/openvelo/ride-engine/log"
)

type Server[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type server[T any] struct {
	name           string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	sendTimeout    time.Duration

	numRcv  int
	numSnd  int
	numSkip int

	logger *log.Logger
}

type Option[T any] func(*server[T])

// WithSendTimeout controls how long a slow subscriber may block before
// the message is skipped for it.
func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(s *server[T]) { s.sendTimeout = d }
}

// NewServer starts the fan-out goroutine for source. Close shuts it
// down and closes all subscriber channels.
func NewServer[T any](name string, source <-chan T, opts ...Option[T]) Server[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &server[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		sendTimeout:    50 * time.Millisecond,
		logger:         log.GetLogger("bcst").Named(name),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMetrics()
	go s.serve()
	return s
}

func (s *server[T]) Subscribe() <-chan T {
	ch := make(chan T)
	s.addListener <- ch
	return ch
}

func (s *server[T]) CancelSubscription(ch <-chan T) {
	s.removeListener <- ch
}

func (s *server[T]) Close() {
	s.logger.Debug("closing broadcast server",
		log.Int("rcv", s.numRcv), log.Int("snd", s.numSnd), log.Int("skip", s.numSkip))
	s.cancel()
}

func (s *server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("ride.broadcast.%s", s.name))
	register := func(metricName, desc string, value func() int64) {
		if _, err := meter.Int64ObservableGauge(
			metricName,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(value(), metric.WithAttributes(attribute.String("name", s.name)))
				return nil
			})); err != nil {
			s.logger.Error("failed to register metric",
				log.String("metric", metricName), log.ErrorField(err))
		}
	}
	register("ride.broadcast.rcv", "received messages", func() int64 { return int64(s.numRcv) })
	register("ride.broadcast.snd", "sent messages", func() int64 { return int64(s.numSnd) })
	register("ride.broadcast.skip", "skipped messages", func() int64 { return int64(s.numSkip) })
	register("ride.broadcast.listener", "subscribers", func() int64 { return int64(len(s.listeners)) })
}

func (s *server[T]) serve() {
	defer func() {
		for _, listener := range s.listeners {
			close(listener)
		}
		s.listeners = nil
	}()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ch := <-s.addListener:
			s.listeners = append(s.listeners, ch)
		case ch := <-s.removeListener:
			for i, listener := range s.listeners {
				if listener == ch {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					close(listener)
					break
				}
			}
		case msg, ok := <-s.source:
			if !ok {
				return
			}
			s.numRcv++
			for _, listener := range s.listeners {
				select {
				case listener <- msg:
					s.numSnd++
				case <-time.After(s.sendTimeout):
					// slow subscriber, don't stall the loop
					s.numSkip++
				}
			}
		}
	}
}
