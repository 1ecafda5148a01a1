package core

import "fmt"

// Engine owns the device table and resolver for one loaded topology. It is
// the explicit instance collaborators receive; there is no ambient "current
// topology" anywhere in the package.
type Engine struct {
	Topology *Topology
	Table    *DeviceTable
	Resolver *ValidityResolver
}

// NewEngine builds the device table from the topology's declared devices
// and wires up the resolver. The first verdict set is computed eagerly so
// consumers always have something to display.
func NewEngine(topo *Topology) (*Engine, error) {
	table := NewDeviceTable()
	for _, def := range topo.Devices() {
		if err := table.AddDevice(def); err != nil {
			return nil, fmt.Errorf("register device: %w", err)
		}
	}

	e := &Engine{
		Topology: topo,
		Table:    table,
		Resolver: NewValidityResolver(topo, table),
	}
	e.Resolver.RecomputeAll()
	return e, nil
}
