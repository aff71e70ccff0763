package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// ErrUnknownGroup is returned when a notification group id is not configured.
var ErrUnknownGroup = errors.New("unknown notification group")

// DeliveryRecorder observes per-group delivery outcomes.
type DeliveryRecorder interface {
	NotificationDelivered(group string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) NotificationDelivered(string, bool) {}

// ChannelFactory builds the channels of one delivery block.
type ChannelFactory func(cfg config.DeliveryConfig) []ports.Channel

// Router owns the notification groups and matches results to them.
type Router struct {
	groups  []*Group
	byID    map[string]*Group
	policy  string
	logger  *slog.Logger
	metrics DeliveryRecorder
}

// Option customizes a Router.
type Option func(*Router)

// WithDeliveryRecorder reports delivery outcomes to r.
func WithDeliveryRecorder(r DeliveryRecorder) Option {
	return func(rt *Router) {
		if r != nil {
			rt.metrics = r
		}
	}
}

var _ ports.Notifier = (*Router)(nil)

// NewRouter wires groups with the unmatched policy (broadcast or drop).
func NewRouter(policy string, groups []*Group, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = config.UnmatchedBroadcast
	}
	r := &Router{
		byID:    make(map[string]*Group, len(groups)),
		policy:  policy,
		logger:  logger,
		metrics: nopRecorder{},
	}
	for _, g := range groups {
		r.groups = append(r.groups, g)
		r.byID[g.ID()] = g
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger.Info("notification groups ready", "groups", len(r.groups), "unmatched_policy", r.policy)
	return r
}

// BuildRouter constructs every group from config.
func BuildRouter(cfg config.NotificationConfig, channels ChannelFactory, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	groups := make([]*Group, 0, len(cfg.Groups))
	for _, gc := range cfg.Groups {
		groups = append(groups, NewGroup(gc, channels(gc.Delivery), logger))
	}
	return NewRouter(cfg.UnmatchedPolicy, groups, logger, opts...)
}

// Groups returns all groups in config order.
func (r *Router) Groups() []*Group {
	return append([]*Group(nil), r.groups...)
}

// Enabled reports whether at least one group delivers.
func (r *Router) Enabled() bool {
	for _, g := range r.groups {
		if g.Enabled() {
			return true
		}
	}
	return false
}

// SendResults broadcasts results to every enabled group.
func (r *Router) SendResults(ctx context.Context, results []domain.DigestResult) domain.Dispatch {
	if len(results) == 0 {
		r.logger.Warn("no results to send")
		return domain.Dispatch{}
	}
	return r.dispatch(ctx, r.enabledGroups(), func(*Group) []domain.DigestResult { return results }, len(results))
}

// SendResultsToGroup delivers results to one group by id.
func (r *Router) SendResultsToGroup(ctx context.Context, groupID string, results []domain.DigestResult) (domain.Dispatch, error) {
	g, ok := r.byID[groupID]
	if !ok {
		r.logger.Error("notification group not found", "notification_group", groupID)
		return domain.Dispatch{}, fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}
	if !g.Enabled() {
		r.logger.Warn("notification group disabled", "notification_group", groupID)
		return domain.Dispatch{Dropped: len(results)}, nil
	}
	return r.dispatch(ctx, []*Group{g}, func(*Group) []domain.DigestResult { return results }, len(results)), nil
}

// SendResultsToMatchingGroups delivers results produced under sourceGroup to
// every enabled group subscribed to it. Without subscribers nothing is sent.
func (r *Router) SendResultsToMatchingGroups(ctx context.Context, sourceGroup string, results []domain.DigestResult) domain.Dispatch {
	if len(results) == 0 {
		return domain.Dispatch{}
	}

	var matched []*Group
	for _, g := range r.enabledGroups() {
		if g.Subscribes(sourceGroup) {
			r.logger.Info("notification group matches source group", "notification_group", g.ID(), "group", sourceGroup)
			matched = append(matched, g)
			continue
		}
		r.logger.Debug("notification group does not match source group", "notification_group", g.ID(), "group", sourceGroup)
	}

	if len(matched) == 0 {
		r.logger.Warn("no notification group subscribes to source group, results dropped",
			"group", sourceGroup, "count", len(results))
		return domain.Dispatch{Dropped: len(results)}
	}
	return r.dispatch(ctx, matched, func(*Group) []domain.DigestResult { return results }, len(results))
}

// Route delivers a mixed batch: each enabled group gets the results of the
// source groups it subscribes to. Results nobody subscribes to are added to
// every group's digest under the broadcast policy and dropped otherwise.
func (r *Router) Route(ctx context.Context, results []domain.DigestResult) domain.Dispatch {
	if len(results) == 0 {
		return domain.Dispatch{}
	}

	enabled := r.enabledGroups()
	buckets := make(map[*Group][]domain.DigestResult, len(enabled))
	var unmatched []domain.DigestResult

	for _, res := range results {
		hit := false
		for _, g := range enabled {
			if g.Subscribes(res.SourceGroup) {
				buckets[g] = append(buckets[g], res)
				hit = true
			}
		}
		if !hit {
			unmatched = append(unmatched, res)
		}
	}

	dropped := 0
	if len(unmatched) > 0 {
		if r.policy == config.UnmatchedBroadcast && len(enabled) > 0 {
			r.logger.Info("broadcasting results without subscribers", "count", len(unmatched))
			for _, g := range enabled {
				buckets[g] = append(buckets[g], unmatched...)
			}
		} else {
			dropped = len(unmatched)
			r.logger.Warn("results without subscribers dropped", "count", dropped, "policy", r.policy)
		}
	}

	targets := make([]*Group, 0, len(buckets))
	for _, g := range enabled {
		if len(buckets[g]) > 0 {
			targets = append(targets, g)
		}
	}

	report := r.dispatch(ctx, targets, func(g *Group) []domain.DigestResult { return buckets[g] }, 0)
	report.Dropped += dropped
	return report
}

// dispatch sends each target its results concurrently. One group's failure is
// logged and does not affect the others. emptyDrop is reported as Dropped
// when there is no target at all.
func (r *Router) dispatch(ctx context.Context, targets []*Group, resultsFor func(*Group) []domain.DigestResult, emptyDrop int) domain.Dispatch {
	if len(targets) == 0 {
		r.logger.Warn("no enabled notification groups")
		return domain.Dispatch{Dropped: emptyDrop}
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, g := range targets {
		wg.Go(func() {
			defer func() {
				if p := recover(); p != nil {
					errs[i] = fmt.Errorf("group %s: panic: %v", g.ID(), p)
				}
			}()
			errs[i] = g.SendResults(ctx, resultsFor(g))
		})
	}
	wg.Wait()

	var report domain.Dispatch
	seen := map[string]struct{}{}
	for i, g := range targets {
		for _, res := range resultsFor(g) {
			if _, dup := seen[res.URL]; dup {
				continue
			}
			seen[res.URL] = struct{}{}
			report.Attempted = append(report.Attempted, res.URL)
		}

		if errs[i] != nil {
			r.logger.Error("notification group delivery failed", "notification_group", g.ID(), "error", errs[i])
			report.Failed = append(report.Failed, g.ID())
			r.metrics.NotificationDelivered(g.ID(), false)
			continue
		}
		report.Delivered = append(report.Delivered, g.ID())
		r.metrics.NotificationDelivered(g.ID(), true)
	}
	return report
}

func (r *Router) enabledGroups() []*Group {
	enabled := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		if g.Enabled() {
			enabled = append(enabled, g)
		}
	}
	return enabled
}
