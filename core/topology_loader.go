package core

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/photonfoundry/beamroute/model"
)

// TopologyFile is the declarative on-disk description of the network.
// YAML is the native format; JSON parses too since yaml.v3 accepts it.
type TopologyFile struct {
	Devices      []model.DeviceDefinition `yaml:"devices" validate:"required,min=1,dive"`
	Nodes        []nodeSpec               `yaml:"nodes" validate:"required,min=2,dive"`
	Edges        []edgeSpec               `yaml:"edges" validate:"required,min=1,dive"`
	Sources      []model.Endpoint         `yaml:"sources" validate:"required,min=1,dive"`
	Destinations []model.Endpoint         `yaml:"destinations" validate:"required,min=1,dive"`
}

type nodeSpec struct {
	ID string `yaml:"id" validate:"required"`
}

type edgeSpec struct {
	ID     string   `yaml:"id" validate:"required"`
	From   string   `yaml:"from" validate:"required"`
	To     string   `yaml:"to" validate:"required"`
	Device string   `yaml:"device" validate:"required"`
	// Traversable lists the settled states under which the segment is
	// open, e.g. [open] or [inserted].
	Traversable []string `yaml:"traversable" validate:"required,min=1"`
}

var validate = validator.New()

// LoadTopology reads, validates, and assembles a topology description
// from r. Schema problems surface as ErrConfig, structural problems as
// ErrTopology; both are fatal at load time, never discovered lazily.
func LoadTopology(r io.Reader) (*Topology, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file TopologyFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode failed: %v", ErrConfig, err)
	}
	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	nodes := make([]Node, 0, len(file.Nodes))
	for _, n := range file.Nodes {
		nodes = append(nodes, Node{ID: n.ID})
	}

	edges := make([]Edge, 0, len(file.Edges))
	for _, e := range file.Edges {
		states := make([]model.DeviceState, 0, len(e.Traversable))
		for _, s := range e.Traversable {
			states = append(states, model.DeviceState(strings.ToLower(strings.TrimSpace(s))))
		}
		edges = append(edges, Edge{
			ID:                e.ID,
			From:              e.From,
			To:                e.To,
			DeviceID:          e.Device,
			TraversableStates: states,
		})
	}

	return NewTopology(file.Devices, nodes, edges, file.Sources, file.Destinations)
}

// LoadTopologyFile opens and loads a topology description from path.
func LoadTopologyFile(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrConfig, path, err)
	}
	defer f.Close()
	return LoadTopology(f)
}
