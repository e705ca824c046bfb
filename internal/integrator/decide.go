// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package integrator

type action int

const (
	// actionNone leaves the status as it is.
	actionNone action = iota
	actionReady
	actionFulfil
)

func (a action) String() string {
	switch a {
	case actionNone:
		return "none"
	case actionReady:
		return "ready"
	case actionFulfil:
		return "fulfil"
	}
	return "unknown"
}

// facts are the inputs to decide.
type facts struct {
	credsResolved  bool
	configResolved bool
	seriesUpgrade  bool
	joined         bool
	pending        bool
	configChanged  bool
}

// decide picks what a pass does once resolution has run. Unresolved
// inputs have already been reported as blocked, as has a series upgrade.
func decide(f facts) action {
	switch {
	case !f.credsResolved || !f.configResolved:
		return actionNone
	case f.seriesUpgrade:
		return actionNone
	case f.joined && (f.pending || f.configChanged):
		return actionFulfil
	case !f.pending:
		return actionReady
	}
	return actionNone
}
