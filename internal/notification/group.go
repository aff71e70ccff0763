package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// Group is one notification group: a set of channels subscribed to source groups.
type Group struct {
	id           string
	name         string
	enabled      bool
	sourceGroups map[string]struct{}
	channels     []ports.Channel
	logger       *slog.Logger
	now          func() time.Time
}

// NewGroup builds a group from config with prebuilt channels.
func NewGroup(cfg config.NotificationGroupConfig, channels []ports.Channel, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	subs := make(map[string]struct{}, len(cfg.SourceGroups))
	for _, sg := range cfg.SourceGroups {
		subs[sg] = struct{}{}
	}
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}
	return &Group{
		id:           cfg.ID,
		name:         name,
		enabled:      cfg.Delivery.Enabled,
		sourceGroups: subs,
		channels:     channels,
		logger:       logger.With("notification_group", cfg.ID),
		now:          time.Now,
	}
}

// ID returns the group identifier.
func (g *Group) ID() string { return g.id }

// Name returns the display name.
func (g *Group) Name() string { return g.name }

// Enabled reports whether delivery is switched on.
func (g *Group) Enabled() bool { return g.enabled }

// Subscribes reports whether the group wants results of sourceGroup.
func (g *Group) Subscribes(sourceGroup string) bool {
	_, ok := g.sourceGroups[sourceGroup]
	return ok
}

// SendResults formats results into one digest and delivers it.
func (g *Group) SendResults(ctx context.Context, results []domain.DigestResult) error {
	if len(results) == 0 {
		g.logger.Warn("no results to send")
		return nil
	}
	return g.SendNotification(ctx, FormatDigest(results, g.now()))
}

// SendNotification delivers message to every configured channel concurrently.
// Channels without credentials are skipped; failures are joined.
func (g *Group) SendNotification(ctx context.Context, message string) error {
	if !g.enabled {
		g.logger.Warn("notifications disabled for group")
		return nil
	}

	configured := make([]ports.Channel, 0, len(g.channels))
	for _, ch := range g.channels {
		if ch.Configured() {
			configured = append(configured, ch)
		}
	}
	if len(configured) == 0 {
		g.logger.Warn("no notification channels configured")
		return nil
	}

	errs := make([]error, len(configured))
	var wg sync.WaitGroup
	for i, ch := range configured {
		wg.Go(func() {
			errs[i] = g.deliver(ctx, ch, message)
		})
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("group %s: %w", g.id, err)
	}
	g.logger.Info("notification sent", "channels", len(configured))
	return nil
}

func (g *Group) deliver(ctx context.Context, ch ports.Channel, message string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error("channel panicked", "channel", ch.Name(), "panic", p)
			err = fmt.Errorf("%s: panic: %v", ch.Name(), p)
		}
	}()

	parts := SplitMessage(message, ch.MaxMessageLength())
	for i, part := range parts {
		if err := ch.Send(ctx, part); err != nil {
			g.logger.Error("channel send failed", "channel", ch.Name(), "part", i+1, "parts", len(parts), "error", err)
			return fmt.Errorf("%s: %w", ch.Name(), err)
		}
	}
	g.logger.Debug("channel delivered", "channel", ch.Name(), "parts", len(parts))
	return nil
}
