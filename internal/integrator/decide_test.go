// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package integrator

import (
	"github.com/juju/testing"
	gc "gopkg.in/check.v1"
)

type decideSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&decideSuite{})

func (s *decideSuite) TestDecide(c *gc.C) {
	resolved := facts{credsResolved: true, configResolved: true}
	with := func(mod func(*facts)) facts {
		f := resolved
		mod(&f)
		return f
	}
	for i, test := range []struct {
		about    string
		facts    facts
		expected action
	}{{
		about:    "nothing resolved",
		facts:    facts{joined: true, pending: true, configChanged: true},
		expected: actionNone,
	}, {
		about:    "credentials unresolved",
		facts:    with(func(f *facts) { f.credsResolved = false }),
		expected: actionNone,
	}, {
		about:    "config unresolved",
		facts:    with(func(f *facts) { f.configResolved = false }),
		expected: actionNone,
	}, {
		about:    "series upgrade",
		facts:    with(func(f *facts) { f.seriesUpgrade = true; f.joined = true; f.pending = true }),
		expected: actionNone,
	}, {
		about:    "idle",
		facts:    resolved,
		expected: actionReady,
	}, {
		about:    "config changed without clients",
		facts:    with(func(f *facts) { f.configChanged = true }),
		expected: actionReady,
	}, {
		about:    "joined without requests",
		facts:    with(func(f *facts) { f.joined = true }),
		expected: actionReady,
	}, {
		about:    "pending requests",
		facts:    with(func(f *facts) { f.joined = true; f.pending = true }),
		expected: actionFulfil,
	}, {
		about:    "config changed with clients",
		facts:    with(func(f *facts) { f.joined = true; f.configChanged = true }),
		expected: actionFulfil,
	}} {
		c.Logf("test %d: %s", i, test.about)
		c.Check(decide(test.facts), gc.Equals, test.expected)
	}
}
