// ABOUTME: Diff between projected appointments and existing destination events
// ABOUTME: Produces the create/update/delete plan for one week
package reconcile

import (
	"sort"
	"strings"

	"github.com/harperreed/doctosync/models"
)

// Update targets an existing event with a new payload.
type Update struct {
	Key     string
	EventID string
	Payload models.EventPayload
}

// Deletion targets an existing event whose key no longer appears in the source.
type Deletion struct {
	Key     string
	EventID string
}

// Plan is the set of changes needed to bring one week of the destination in
// line with the source. The three sets are disjoint by key.
type Plan struct {
	Create []Projected
	Update []Update
	Delete []Deletion
}

// Empty reports whether applying the plan would make no calls.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Size returns the number of operations in the plan.
func (p Plan) Size() int {
	return len(p.Create) + len(p.Update) + len(p.Delete)
}

// Reconcile diffs projected events against existing events keyed by sync key.
// Only location and reminders are compared for retained keys.
func Reconcile(projected []Projected, existing map[string]models.DestinationEvent) Plan {
	var plan Plan

	toDelete := make(map[string]struct{}, len(existing))
	for key := range existing {
		toDelete[key] = struct{}{}
	}

	for _, proj := range projected {
		ev, ok := existing[proj.Key]
		if !ok {
			plan.Create = append(plan.Create, proj)
			continue
		}
		delete(toDelete, proj.Key)

		if needsUpdate(ev, proj.Payload) {
			plan.Update = append(plan.Update, Update{
				Key:     proj.Key,
				EventID: ev.ID,
				Payload: proj.Payload,
			})
		}
	}

	keys := make([]string, 0, len(toDelete))
	for key := range toDelete {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		plan.Delete = append(plan.Delete, Deletion{Key: key, EventID: existing[key].ID})
	}

	return plan
}

func needsUpdate(ev models.DestinationEvent, payload models.EventPayload) bool {
	if strings.TrimSpace(ev.Location) != payload.Location {
		return true
	}
	return !ev.Reminders.Equal(payload.Reminders)
}
