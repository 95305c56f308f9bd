package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/girderhq/girder/pkg/observability"
)

// Propagator is the entry point lifecycle services signal through. It
// delivers to local sessions immediately and publishes to the
// broadcaster so other instances can do the same. Both legs are best
// effort; a publish failure is counted and logged, never returned.
type Propagator struct {
	hub         *Hub
	broadcaster Broadcaster
	instanceID  string
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewPropagator wires a propagator over the hub. broadcaster may be
// nil when the deployment is a single instance.
func NewPropagator(hub *Hub, broadcaster Broadcaster, logger *observability.Logger, metrics *observability.Metrics) *Propagator {
	return &Propagator{
		hub:         hub,
		broadcaster: broadcaster,
		instanceID:  uuid.NewString(),
		logger:      logger,
		metrics:     metrics,
	}
}

// PermissionsChanged signals the user's live sessions in the tenant.
func (p *Propagator) PermissionsChanged(ctx context.Context, tenantID, userID int64) {
	p.hub.DeliverLocal(tenantID, userID)
	if p.broadcaster == nil {
		return
	}
	ev := Event{Instance: p.instanceID, TenantID: tenantID, UserID: userID}
	if err := p.broadcaster.Publish(ctx, ev); err != nil {
		if p.logger != nil {
			p.logger.WithError(err).Warn("failed to publish propagation event")
		}
		return
	}
	if p.metrics != nil {
		p.metrics.PropagationEventsTotal.WithLabelValues("published").Inc()
	}
}

// Run consumes cross-instance events until ctx is cancelled, skipping
// this instance's own publications.
func (p *Propagator) Run(ctx context.Context) error {
	if p.broadcaster == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.broadcaster.Subscribe(ctx, func(ev Event) {
		if ev.Instance == p.instanceID {
			return
		}
		p.hub.DeliverLocal(ev.TenantID, ev.UserID)
	})
}
