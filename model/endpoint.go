package model

// Endpoint binds a named source or destination to exactly one topology
// node. Sources are laser bays (ls1..ls8 in the reference installation);
// destinations are hutch ports (ld1..ld14).
type Endpoint struct {
	ID   string `yaml:"id" json:"id" validate:"required"`
	Node string `yaml:"node" json:"node" validate:"required"`
	// Name is the operator-facing label, e.g. "TMO IP1".
	Name string `yaml:"name" json:"name"`
}
