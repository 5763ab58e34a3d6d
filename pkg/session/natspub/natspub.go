/*
	Copyright 2026 OpenVelo
*/

// Package natspub mirrors the session notification tiers onto NATS
// subjects so external displays and head units can follow a live
// recording.
package natspub

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/openvelo/ride-engine/log"
	"github.com/openvelo/ride-engine/pkg/model"
	"github.com/openvelo/ride-engine/pkg/utils/broadcast"
)

// Publisher forwards sensor and stats updates to NATS. One publisher
// serves one session.
type Publisher struct {
	conn       *nats.Conn
	sessionKey string
	logger     *log.Logger

	sensorCh <-chan model.SensorEvent
	statsCh  <-chan model.Snapshot
	sensors  broadcast.Server[model.SensorEvent]
	stats    broadcast.Server[model.Snapshot]
	quit     chan struct{}
}

type Option func(*Publisher)

func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// NewPublisher subscribes to both tiers and starts forwarding. Subject
// layout: ride.<sessionKey>.sensor and ride.<sessionKey>.stats.
func NewPublisher(
	conn *nats.Conn,
	sessionKey string,
	sensors broadcast.Server[model.SensorEvent],
	stats broadcast.Server[model.Snapshot],
	opts ...Option,
) *Publisher {
	ret := &Publisher{
		conn:       conn,
		sessionKey: sessionKey,
		logger:     log.GetLogger("natspub"),
		sensors:    sensors,
		stats:      stats,
		quit:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.sensorCh = sensors.Subscribe()
	ret.statsCh = stats.Subscribe()
	go ret.forward()
	return ret
}

// Close stops forwarding and cancels the tier subscriptions.
func (p *Publisher) Close() {
	close(p.quit)
}

func (p *Publisher) forward() {
	sensorSubj := fmt.Sprintf("ride.%s.sensor", p.sessionKey)
	statsSubj := fmt.Sprintf("ride.%s.stats", p.sessionKey)
	for {
		select {
		case <-p.quit:
			// the tiers outlive us, give the channels back
			p.sensors.CancelSubscription(p.sensorCh)
			p.stats.CancelSubscription(p.statsCh)
			return
		case ev, ok := <-p.sensorCh:
			if !ok {
				// session ended, tiers are gone
				return
			}
			p.publish(sensorSubj, sensorPayload{
				Channel:   ev.Channel.String(),
				Value:     ev.Value,
				Position:  ev.Position,
				Timestamp: ev.Timestamp.UnixMilli(),
			})
		case snap, ok := <-p.statsCh:
			if !ok {
				return
			}
			p.publish(statsSubj, snap)
		}
	}
}

func (p *Publisher) publish(subj string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshalling live update", log.ErrorField(err))
		return
	}
	if err := p.conn.Publish(subj, data); err != nil {
		p.logger.Debug("publishing live update",
			log.String("subject", subj), log.ErrorField(err))
	}
}

type sensorPayload struct {
	Channel   string          `json:"channel"`
	Value     float64         `json:"value"`
	Position  *model.GeoPoint `json:"position,omitempty"`
	Timestamp int64           `json:"ts"`
}
