package zwave

import (
	"slices"

	"zwave-go-home/internal/pending"
)

// subscribeReconciler clears pending writes when the device confirms them,
// and keeps confirmed wake-up intervals in the store.
// It returns a function that detaches it from the bus.
func (nw *Network) subscribeReconciler() func() {
	offs := []func(){
		nw.events.On(EventConfigurationParameterChanged, nw.reconcile),
		nw.events.On(EventAssociationChanged, nw.reconcile),
		nw.events.On(EventWakeUpIntervalChanged, nw.reconcile),
		nw.events.On(EventWakeUpIntervalChanged, nw.persistWakeUp),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (nw *Network) reconcile(e Event) {
	switch d := e.Data.(type) {
	case ConfigurationParameterChanged:
		if nw.pending.Remove(pending.KeyConfiguration, d.Node, int(d.Parameter), 0) {
			nw.logger.Debug("configuration confirmed", "node", d.Node, "parameter", d.Parameter, "value", d.Value)
		}

	case AssociationChanged:
		for _, entry := range nw.pending.Entries(pending.KeyAssociation, d.Node) {
			if entry.Parameter != int(d.Group) {
				continue
			}
			present := slices.Contains(d.Members, uint8(entry.Argument))
			added := entry.Value != 0
			if present == added {
				nw.pending.Remove(pending.KeyAssociation, d.Node, entry.Parameter, entry.Argument)
				nw.logger.Debug("association confirmed", "node", d.Node, "group", d.Group, "member", entry.Argument, "added", added)
			}
		}

	case WakeUpIntervalChanged:
		if nw.pending.Remove(pending.KeyWakeUp, d.Node, 0, 0) {
			nw.logger.Debug("wake-up interval confirmed", "node", d.Node, "interval", d.Interval)
		}
	}
}
