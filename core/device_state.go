package core

import "github.com/photonfoundry/beamroute/model"

// Raw state codes follow the controls convention for each device class.
// The tables are deliberately tolerant in one direction only: any code
// outside the class's set maps to StateInvalid rather than being dropped,
// because the hardware is the source of truth and an unrecognized reading
// must never look like a routed path.

var shutterStates = map[int]model.DeviceState{
	0: model.StateClosed,
	1: model.StateOpen,
	2: model.StateMoving,
}

var gateValveStates = map[int]model.DeviceState{
	0: model.StateClosed,
	1: model.StateOpen,
	2: model.StateMoving,
	3: model.StateFault,
}

var mirrorStates = map[int]model.DeviceState{
	0: model.StateRetracted,
	1: model.StateInserted,
	2: model.StateMoving,
}

// NormalizeRawState maps a class-specific raw code to its semantic state.
// Transitions are unconstrained: any raw value may arrive at any time and
// the model reports it as-is rather than rejecting "illegal" moves.
func NormalizeRawState(class model.DeviceClass, raw int) model.DeviceState {
	var table map[int]model.DeviceState
	switch class {
	case model.ClassShutter:
		table = shutterStates
	case model.ClassGateValve:
		table = gateValveStates
	case model.ClassMirror:
		table = mirrorStates
	default:
		return model.StateInvalid
	}
	if st, ok := table[raw]; ok {
		return st
	}
	return model.StateInvalid
}

// settled reports whether st is a well-formed resting state, i.e. one that
// a predicate may accept. Moving, fault, invalid and unknown are not
// settled; they can never satisfy an edge predicate.
func settled(st model.DeviceState) bool {
	switch st {
	case model.StateOpen, model.StateClosed, model.StateInserted, model.StateRetracted:
		return true
	}
	return false
}
