package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/photonfoundry/beamroute/model"
)

var (
	// ErrConfig marks a malformed or inconsistent topology description.
	// Fatal at load; nothing is ever computed against a bad config.
	ErrConfig = errors.New("topology config error")
	// ErrTopology marks a structural violation (cycle, ambiguous route,
	// destination unreachable from every source). Also fatal at load.
	ErrTopology = errors.New("topology structure error")
)

// Node is a junction or switch point in the optical network.
type Node struct {
	ID string
}

// Edge is one optical path segment. Traversal requires the owning device
// to be in one of the listed states, connected, and not interlocked.
// An edge is gated by exactly one device; a physical segment guarded by
// several devices in series is modeled as consecutive edges through
// intermediate nodes, as the sample topology does for a bay's shutter
// and entry valve.
type Edge struct {
	ID   string
	From string
	To   string

	// DeviceID is the switching element that gates this segment.
	DeviceID string
	// TraversableStates are the settled device states under which the
	// segment is open, e.g. [open] for a valve or [inserted] for a
	// mirror picking a beam off the rail.
	TraversableStates []model.DeviceState
}

// traversable reports whether st satisfies this edge's predicate.
func (e *Edge) traversable(st model.DeviceState) bool {
	for _, s := range e.TraversableStates {
		if s == st {
			return true
		}
	}
	return false
}

// RouteKey identifies one (source, destination) pair.
type RouteKey struct {
	Source      string
	Destination string
}

func (k RouteKey) String() string {
	return k.Source + "->" + k.Destination
}

// Topology is the static graph of the transport network. It is built and
// validated once at load time and never mutated afterwards, so it is safe
// for concurrent readers without locking.
type Topology struct {
	nodes        map[string]*Node
	edges        map[string]*Edge
	sources      map[string]model.Endpoint
	destinations map[string]model.Endpoint
	devices      map[string]model.DeviceDefinition

	// adjacency: node ID -> incident edges, in insertion order.
	incident map[string][]*Edge

	// routes holds the unique edge sequence for every reachable pair.
	// Pairs in different trees of the forest are simply absent.
	routes map[RouteKey][]*Edge
}

// NewTopology assembles and validates a topology from its parts. Reference
// errors are reported as ErrConfig, structural violations as ErrTopology.
func NewTopology(
	devices []model.DeviceDefinition,
	nodes []Node,
	edges []Edge,
	sources []model.Endpoint,
	destinations []model.Endpoint,
) (*Topology, error) {
	t := &Topology{
		nodes:        make(map[string]*Node, len(nodes)),
		edges:        make(map[string]*Edge, len(edges)),
		sources:      make(map[string]model.Endpoint, len(sources)),
		destinations: make(map[string]model.Endpoint, len(destinations)),
		devices:      make(map[string]model.DeviceDefinition, len(devices)),
		incident:     make(map[string][]*Edge),
		routes:       make(map[RouteKey][]*Edge),
	}

	for _, def := range devices {
		if def.ID == "" || !def.Class.Valid() {
			return nil, fmt.Errorf("%w: device id=%q class=%q", ErrConfig, def.ID, def.Class)
		}
		if _, dup := t.devices[def.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate device %q", ErrConfig, def.ID)
		}
		t.devices[def.ID] = def
	}

	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node with empty id", ErrConfig)
		}
		if _, dup := t.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %q", ErrConfig, n.ID)
		}
		node := n
		t.nodes[n.ID] = &node
	}

	for _, e := range edges {
		if err := t.addEdge(e); err != nil {
			return nil, err
		}
	}

	for _, s := range sources {
		if _, ok := t.nodes[s.Node]; !ok {
			return nil, fmt.Errorf("%w: source %q bound to unknown node %q", ErrConfig, s.ID, s.Node)
		}
		if _, dup := t.sources[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate source %q", ErrConfig, s.ID)
		}
		t.sources[s.ID] = s
	}
	for _, d := range destinations {
		if _, ok := t.nodes[d.Node]; !ok {
			return nil, fmt.Errorf("%w: destination %q bound to unknown node %q", ErrConfig, d.ID, d.Node)
		}
		if _, dup := t.destinations[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate destination %q", ErrConfig, d.ID)
		}
		t.destinations[d.ID] = d
	}
	if len(t.sources) == 0 || len(t.destinations) == 0 {
		return nil, fmt.Errorf("%w: at least one source and one destination required", ErrConfig)
	}

	if err := t.buildRoutes(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Topology) addEdge(e Edge) error {
	if e.ID == "" {
		return fmt.Errorf("%w: edge with empty id", ErrConfig)
	}
	if _, dup := t.edges[e.ID]; dup {
		return fmt.Errorf("%w: duplicate edge %q", ErrConfig, e.ID)
	}
	if _, ok := t.nodes[e.From]; !ok {
		return fmt.Errorf("%w: edge %q references unknown node %q", ErrConfig, e.ID, e.From)
	}
	if _, ok := t.nodes[e.To]; !ok {
		return fmt.Errorf("%w: edge %q references unknown node %q", ErrConfig, e.ID, e.To)
	}
	if e.From == e.To {
		return fmt.Errorf("%w: edge %q is a self-loop on %q", ErrTopology, e.ID, e.From)
	}
	if _, ok := t.devices[e.DeviceID]; !ok {
		return fmt.Errorf("%w: edge %q references unknown device %q", ErrConfig, e.ID, e.DeviceID)
	}
	if len(e.TraversableStates) == 0 {
		return fmt.Errorf("%w: edge %q has no traversable states", ErrConfig, e.ID)
	}
	for _, st := range e.TraversableStates {
		if !settled(st) {
			return fmt.Errorf("%w: edge %q lists non-settled state %q", ErrConfig, e.ID, st)
		}
	}

	edge := e
	edge.TraversableStates = append([]model.DeviceState(nil), e.TraversableStates...)
	t.edges[e.ID] = &edge
	t.incident[e.From] = append(t.incident[e.From], &edge)
	t.incident[e.To] = append(t.incident[e.To], &edge)
	return nil
}

// buildRoutes walks the undirected graph from every source, rejecting
// cycles, and records the unique route to every node it reaches. In an
// acyclic graph any two nodes have at most one simple path, so route
// uniqueness follows from the cycle check; an ambiguous route would be a
// configuration error, never something resolved silently at query time.
func (t *Topology) buildRoutes() error {
	reachedDest := make(map[string]bool, len(t.destinations))

	// Destination nodes, for route recording.
	destsByNode := make(map[string][]model.Endpoint)
	for _, d := range t.destinations {
		destsByNode[d.Node] = append(destsByNode[d.Node], d)
	}

	for _, src := range t.sources {
		visited := map[string]bool{src.Node: true}
		if err := t.walk(src, src.Node, "", nil, visited, destsByNode, reachedDest); err != nil {
			return err
		}
	}

	for id := range t.destinations {
		if !reachedDest[id] {
			return fmt.Errorf("%w: destination %q unreachable from every source", ErrTopology, id)
		}
	}
	return nil
}

func (t *Topology) walk(
	src model.Endpoint,
	node string,
	viaEdge string,
	path []*Edge,
	visited map[string]bool,
	destsByNode map[string][]model.Endpoint,
	reachedDest map[string]bool,
) error {
	for _, d := range destsByNode[node] {
		key := RouteKey{Source: src.ID, Destination: d.ID}
		if _, dup := t.routes[key]; dup {
			return fmt.Errorf("%w: multiple routes between %q and %q", ErrTopology, src.ID, d.ID)
		}
		t.routes[key] = append([]*Edge(nil), path...)
		reachedDest[d.ID] = true
	}

	for _, e := range t.incident[node] {
		if e.ID == viaEdge {
			continue
		}
		next := e.To
		if next == node {
			next = e.From
		}
		if visited[next] {
			return fmt.Errorf("%w: cycle through node %q reachable from source %q", ErrTopology, next, src.ID)
		}
		visited[next] = true
		if err := t.walk(src, next, e.ID, append(path, e), visited, destsByNode, reachedDest); err != nil {
			return err
		}
	}
	return nil
}

// Route returns the ordered edge sequence from source to destination, or
// ok=false when the pair lies in different trees of the forest.
func (t *Topology) Route(source, destination string) ([]*Edge, bool) {
	r, ok := t.routes[RouteKey{Source: source, Destination: destination}]
	return r, ok
}

// Pairs returns every declared (source, destination) pair in sorted order,
// reachable or not. The resolver owes a verdict for each of them.
func (t *Topology) Pairs() []RouteKey {
	out := make([]RouteKey, 0, len(t.sources)*len(t.destinations))
	for s := range t.sources {
		for d := range t.destinations {
			out = append(out, RouteKey{Source: s, Destination: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Destination < out[j].Destination
	})
	return out
}

// PairsThrough returns the declared pairs whose route traverses any of the
// given devices. Used by incremental recomputation.
func (t *Topology) PairsThrough(deviceIDs map[string]struct{}) []RouteKey {
	var out []RouteKey
	for key, route := range t.routes {
		for _, e := range route {
			if _, hit := deviceIDs[e.DeviceID]; hit {
				out = append(out, key)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Destination < out[j].Destination
	})
	return out
}

// Devices returns the declared device definitions in sorted ID order.
func (t *Topology) Devices() []model.DeviceDefinition {
	out := make([]model.DeviceDefinition, 0, len(t.devices))
	for _, def := range t.devices {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Device returns one device definition.
func (t *Topology) Device(id string) (model.DeviceDefinition, bool) {
	def, ok := t.devices[id]
	return def, ok
}

// Sources returns the declared sources in sorted ID order.
func (t *Topology) Sources() []model.Endpoint { return sortedEndpoints(t.sources) }

// Destinations returns the declared destinations in sorted ID order.
func (t *Topology) Destinations() []model.Endpoint { return sortedEndpoints(t.destinations) }

// EdgeCount returns the number of edges.
func (t *Topology) EdgeCount() int { return len(t.edges) }

// NodeCount returns the number of nodes.
func (t *Topology) NodeCount() int { return len(t.nodes) }

func sortedEndpoints(m map[string]model.Endpoint) []model.Endpoint {
	out := make([]model.Endpoint, 0, len(m))
	for _, ep := range m {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
