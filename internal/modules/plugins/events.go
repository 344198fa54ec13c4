package plugins

import (
	"context"
	"reflect"

	"github.com/aristath/oracle-portfolio/internal/events"
)

const eventModule = "plugins"

// ForwardEvents publishes a PLUGIN_ADDED, PLUGIN_UPDATED or PLUGIN_DELETED event
// after every successful registry mutation. Before-hooks publish nothing.
func ForwardEvents(reg *Registry, em *events.Manager) {
	reg.Hooks().Subscribe(func(_ context.Context, data HookData) error {
		switch d := data.(type) {
		case *AfterAddData:
			em.EmitTyped(eventModule, &events.PluginAddedData{
				Kind: string(d.Kind),
				ID:   d.Plugin.Common().ID,
				Name: d.Plugin.Common().Name,
			})
		case *AfterUpdateData:
			em.EmitTyped(eventModule, &events.PluginUpdatedData{
				Kind:    string(d.Kind),
				ID:      d.Plugin.Common().ID,
				Name:    d.Plugin.Common().Name,
				Changed: changedFields(d.Previous, d.Plugin),
			})
		case *AfterDeleteData:
			em.EmitTyped(eventModule, &events.PluginDeletedData{
				Kind: string(d.Kind),
				ID:   d.Plugin.Common().ID,
			})
		}
		return nil
	})
}

// changedFields lists the top-level fields whose JSON value differs, metadata excluded.
func changedFields(before, after Plugin) []string {
	a, errA := ToMap(before)
	b, errB := ToMap(after)
	if errA != nil || errB != nil {
		return nil
	}

	var changed []string
	for _, key := range sortedKeys(b) {
		if key == "metadata" {
			continue
		}
		if !reflect.DeepEqual(a[key], b[key]) {
			changed = append(changed, key)
		}
	}
	return changed
}
