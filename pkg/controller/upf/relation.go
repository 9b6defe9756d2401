package upf

import (
	"context"

	"github.com/charmed-5g/upf-operator/pkg/lifecycle"
)

// HandleUPFRelationJoined publishes the UPF endpoint to the consumer that
// just joined. Publishing before bessd runs would advertise a dead endpoint,
// so it is silently skipped; the bessd-ready handler publishes once the
// service is up.
func (r *UPFReconciler) HandleUPFRelationJoined(ctx context.Context) (lifecycle.Result, error) {
	if !r.bessdServiceRunning(ctx) {
		r.Logger.Info("UPF bessd service is not running; not publishing endpoint")
		return lifecycle.Completed, nil
	}
	r.publishUPFURL(ctx)
	return lifecycle.Completed, nil
}

// publishUPFURL writes the unit hostname into every established upf
// relation. Publishing is best-effort: failures are logged and swallowed so
// they never abort the calling handler.
func (r *UPFReconciler) publishUPFURL(ctx context.Context) {
	ids, err := r.Hook.RelationIDs(ctx, upfRelationName)
	if err != nil {
		r.Logger.V(1).Info("failed to list upf relations", "reason", err.Error())
		return
	}
	url := r.Env.Hostname()
	for _, id := range ids {
		if err := r.Hook.RelationSet(ctx, id, map[string]string{"url": url}); err != nil {
			r.Logger.V(1).Info("failed to publish UPF url", "relation", id, "reason", err.Error())
			continue
		}
		r.Logger.Info("Published UPF url", "relation", id, "url", url)
	}
}
