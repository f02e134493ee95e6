package shark

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/joshp123/sharkd/internal/history"
	"github.com/joshp123/sharkd/internal/logger"
	"github.com/joshp123/sharkd/internal/publish"
)

const historyRetention = 90 * 24 * time.Hour

// StatusEvent is published to <prefix>/<dsn>/status after every poll.
type StatusEvent struct {
	DSN       string      `json:"dsn"`
	Name      string      `json:"name"`
	Connected bool        `json:"connected"`
	Status    RobotStatus `json:"status"`
	PolledAt  time.Time   `json:"polled_at"`
}

// commandMessage is the JSON form of an inbound command. A bare string
// payload is treated as Command.
type commandMessage struct {
	Command   string `json:"command"`
	PowerMode string `json:"power_mode"`
}

type poller struct {
	client    *Client
	fleet     *fleet
	publisher publish.Publisher
	topics    publish.Topics
	history   *history.DB
	interval  time.Duration
	now       func() time.Time

	mu         sync.Mutex
	subscribed map[string]bool
}

func newPoller(client *Client, f *fleet, publisher publish.Publisher, topics publish.Topics, hist *history.DB, interval time.Duration) *poller {
	if publisher == nil {
		publisher = publish.Nop{}
	}
	return &poller{
		client:     client,
		fleet:      f,
		publisher:  publisher,
		topics:     topics,
		history:    hist,
		interval:   interval,
		now:        time.Now,
		subscribed: make(map[string]bool),
	}
}

// Run polls until ctx is done.
func (p *poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *poller) pollOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := p.now()
	devices, err := p.client.Devices(ctx)
	if err != nil {
		p.fleet.setPoll(false, now)
		logger.Log.WithError(err).Warn("shark device poll failed")
		return
	}
	p.fleet.setDevices(devices)

	ok := true
	for _, dev := range devices {
		log := logger.WithDevice(dev.DSN)
		status, err := p.client.Status(ctx, dev.DSN)
		if err != nil {
			ok = false
			log.WithError(err).Warn("shark status poll failed")
			continue
		}
		p.fleet.setStatus(dev.DSN, status, now)

		event := StatusEvent{
			DSN:       dev.DSN,
			Name:      dev.ProductName,
			Connected: dev.Connected,
			Status:    status,
			PolledAt:  now,
		}
		if err := publish.PublishJSON(ctx, p.publisher, p.topics.Status(dev.DSN), event); err != nil {
			log.WithError(err).Warn("publish status failed")
		}
		p.subscribeCommands(dev.DSN)
	}
	p.fleet.setPoll(ok, now)

	if p.history != nil {
		if n, err := p.history.Prune(ctx, now.Add(-historyRetention)); err != nil {
			logger.Log.WithError(err).Warn("prune coverage history failed")
		} else if n > 0 {
			logger.Log.WithField("rows", n).Debug("pruned coverage history")
		}
	}
}

func (p *poller) subscribeCommands(dsn string) {
	p.mu.Lock()
	if p.subscribed[dsn] {
		p.mu.Unlock()
		return
	}
	p.subscribed[dsn] = true
	p.mu.Unlock()

	topic := p.topics.Command(dsn)
	err := p.publisher.Subscribe(topic, func(payload []byte) {
		p.handleCommand(dsn, payload)
	})
	if err != nil {
		p.mu.Lock()
		delete(p.subscribed, dsn)
		p.mu.Unlock()
		logger.WithDevice(dsn).WithError(err).Warn("command subscription failed")
	}
}

func (p *poller) handleCommand(dsn string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msg := parseCommandMessage(payload)
	log := logger.WithDevice(dsn).WithField("command", msg.Command)

	if msg.PowerMode != "" {
		if err := p.client.SetPowerMode(ctx, dsn, msg.PowerMode); err != nil {
			log.WithError(err).Warn("remote power mode failed")
			return
		}
		log.WithField("power_mode", msg.PowerMode).Info("power mode set from message")
	}
	if msg.Command == "" {
		return
	}
	if err := p.client.SendCommand(ctx, dsn, msg.Command); err != nil {
		log.WithError(err).Warn("remote command failed")
		return
	}
	log.Info("command sent from message")
}

func parseCommandMessage(payload []byte) commandMessage {
	trimmed := strings.TrimSpace(string(payload))
	var msg commandMessage
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &msg); err == nil {
			return msg
		}
	}
	return commandMessage{Command: strings.Trim(trimmed, `"`)}
}
