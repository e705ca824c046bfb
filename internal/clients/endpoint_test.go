// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package clients

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/juju/vsphere-integrator/internal/vsphere"
)

type endpointSuite struct {
	testing.IsolationSuite

	tools *MockRelationTools
}

var _ = gc.Suite(&endpointSuite{})

func (s *endpointSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.tools = NewMockRelationTools(ctrl)
	s.tools.EXPECT().UnitName().Return("vsphere-integrator/0").AnyTimes()
	return ctrl
}

// expectRelations sets up two relations: clients:4 whose units have
// already been served, and clients:7 whose units have not.
func (s *endpointSuite) expectRelations() {
	s.tools.EXPECT().RelationIds(gomock.Any(), "clients").Return([]string{"clients:4", "clients:7"}, nil)
	s.tools.EXPECT().RelationList(gomock.Any(), "clients:4").Return([]string{"kubernetes-control-plane/0"}, nil)
	s.tools.EXPECT().RelationList(gomock.Any(), "clients:7").Return([]string{"worker/0", "worker/1"}, nil)
	s.tools.EXPECT().RelationGet(gomock.Any(), "clients:4", "vsphere-integrator/0").Return(map[string]string{
		"vsphere_ip": `"10.0.0.1"`,
	}, nil)
	s.tools.EXPECT().RelationGet(gomock.Any(), "clients:7", "vsphere-integrator/0").Return(map[string]string{}, nil)
}

func (s *endpointSuite) TestAllRequests(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRelations()

	requests, err := NewEndpoint(s.tools).AllRequests(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(requests, jc.DeepEquals, []Request{
		{RelationID: "clients:4", UnitName: "kubernetes-control-plane/0", HasCredentials: true},
		{RelationID: "clients:7", UnitName: "worker/0"},
		{RelationID: "clients:7", UnitName: "worker/1"},
	})
}

func (s *endpointSuite) TestNewRequests(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRelations()

	requests, err := NewEndpoint(s.tools).NewRequests(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(requests, jc.DeepEquals, []Request{
		{RelationID: "clients:7", UnitName: "worker/0"},
		{RelationID: "clients:7", UnitName: "worker/1"},
	})
}

func (s *endpointSuite) TestRequestsSkipEmptyRelations(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.tools.EXPECT().RelationIds(gomock.Any(), "clients").Return([]string{"clients:2"}, nil)
	s.tools.EXPECT().RelationList(gomock.Any(), "clients:2").Return([]string{}, nil)

	requests, err := NewEndpoint(s.tools).AllRequests(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(requests, gc.HasLen, 0)
}

func (s *endpointSuite) TestInvalidUnitNamesIgnored(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.tools.EXPECT().RelationIds(gomock.Any(), "clients").Return([]string{"clients:2"}, nil)
	s.tools.EXPECT().RelationList(gomock.Any(), "clients:2").Return([]string{"worker", "worker/3"}, nil)
	s.tools.EXPECT().RelationGet(gomock.Any(), "clients:2", "vsphere-integrator/0").Return(nil, nil)

	requests, err := NewEndpoint(s.tools).AllRequests(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(requests, jc.DeepEquals, []Request{
		{RelationID: "clients:2", UnitName: "worker/3"},
	})
}

func (s *endpointSuite) TestJoined(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.tools.EXPECT().RelationIds(gomock.Any(), "clients").Return([]string{"clients:2", "clients:3"}, nil)
	s.tools.EXPECT().RelationList(gomock.Any(), "clients:2").Return(nil, nil)
	s.tools.EXPECT().RelationList(gomock.Any(), "clients:3").Return([]string{"worker/0"}, nil)

	joined, err := NewEndpoint(s.tools).Joined(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(joined, jc.IsTrue)
}

func (s *endpointSuite) TestNotJoined(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.tools.EXPECT().RelationIds(gomock.Any(), "clients").Return(nil, nil)

	joined, err := NewEndpoint(s.tools).Joined(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(joined, jc.IsFalse)
}

func (s *endpointSuite) TestListError(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.tools.EXPECT().RelationIds(gomock.Any(), "clients").Return([]string{"clients:2"}, nil)
	s.tools.EXPECT().RelationList(gomock.Any(), "clients:2").Return(nil, errors.Timeoutf("relation-list after 30s"))

	_, err := NewEndpoint(s.tools).AllRequests(context.Background())
	c.Assert(err, jc.ErrorIs, errors.Timeout)
	c.Assert(err, gc.ErrorMatches, "listing units on clients:2: relation-list after 30s timeout")
}

func (s *endpointSuite) TestMarkCompletedFlushesOncePerRelation(c *gc.C) {
	defer s.setupMocks(c).Finish()

	creds := vsphere.Credentials{Endpoint: "10.0.0.1", User: "a", Password: `p"w`, Datacenter: "dc1"}
	dc := vsphere.DeploymentConfig{Datastore: "ds1", Folder: "k8s"}
	expected := map[string]string{
		"vsphere_ip":   `"10.0.0.1"`,
		"user":         `"a"`,
		"password":     `"p\"w"`,
		"datacenter":   `"dc1"`,
		"datastore":    `"ds1"`,
		"folder":       `"k8s"`,
		"respool_path": `""`,
	}
	gomock.InOrder(
		s.tools.EXPECT().RelationSet(gomock.Any(), "clients:4", expected).Return(nil),
		s.tools.EXPECT().RelationSet(gomock.Any(), "clients:7", expected).Return(nil),
	)

	ep := NewEndpoint(s.tools)
	for _, req := range []Request{
		{RelationID: "clients:7", UnitName: "worker/0"},
		{RelationID: "clients:7", UnitName: "worker/1"},
		{RelationID: "clients:4", UnitName: "kubernetes-control-plane/0"},
	} {
		c.Assert(ep.SetCredentials(req, creds), jc.ErrorIsNil)
		c.Assert(ep.SetConfig(req, dc), jc.ErrorIsNil)
	}
	err := ep.MarkCompleted(context.Background())
	c.Assert(err, jc.ErrorIsNil)

	// Nothing is left to flush.
	err = ep.MarkCompleted(context.Background())
	c.Assert(err, jc.ErrorIsNil)
}

func (s *endpointSuite) TestMarkCompletedNothingQueued(c *gc.C) {
	defer s.setupMocks(c).Finish()

	err := NewEndpoint(s.tools).MarkCompleted(context.Background())
	c.Assert(err, jc.ErrorIsNil)
}

func (s *endpointSuite) TestMarkCompletedError(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.tools.EXPECT().RelationSet(gomock.Any(), "clients:4", gomock.Any()).Return(errors.New("boom"))

	ep := NewEndpoint(s.tools)
	err := ep.SetConfig(Request{RelationID: "clients:4", UnitName: "worker/0"}, vsphere.DeploymentConfig{})
	c.Assert(err, jc.ErrorIsNil)
	err = ep.MarkCompleted(context.Background())
	c.Assert(err, gc.ErrorMatches, "publishing settings on clients:4: boom")
}

func (s *endpointSuite) TestSetWithoutRelation(c *gc.C) {
	defer s.setupMocks(c).Finish()

	err := NewEndpoint(s.tools).SetCredentials(Request{UnitName: "worker/0"}, vsphere.Credentials{})
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *endpointSuite) TestRequestsInUnitNumberOrder(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.tools.EXPECT().RelationIds(gomock.Any(), "clients").Return([]string{"clients:2"}, nil)
	s.tools.EXPECT().RelationList(gomock.Any(), "clients:2").Return([]string{"worker/10", "worker/2"}, nil)
	s.tools.EXPECT().RelationGet(gomock.Any(), "clients:2", "vsphere-integrator/0").Return(nil, nil)

	requests, err := NewEndpoint(s.tools).AllRequests(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(requests, jc.DeepEquals, []Request{
		{RelationID: "clients:2", UnitName: "worker/2"},
		{RelationID: "clients:2", UnitName: "worker/10"},
	})
}
