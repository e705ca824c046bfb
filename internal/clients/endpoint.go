// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package clients implements the provides side of the vsphere-integration
// relation. Each remote unit on the "clients" endpoint is a request for
// credentials; a request is fulfilled once the local unit has published
// vsphere_ip on that relation.
package clients

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/names/v5"
	"github.com/juju/naturalsort"

	"github.com/juju/vsphere-integrator/internal/vsphere"
)

//go:generate go run go.uber.org/mock/mockgen -package clients -destination tools_mock_test.go github.com/juju/vsphere-integrator/internal/clients RelationTools

var logger = loggo.GetLogger("juju.vsphere.clients")

// EndpointName is the name of the relation endpoint served.
const EndpointName = "clients"

// Published relation keys.
const (
	VsphereIPKey   = "vsphere_ip"
	UserKey        = "user"
	PasswordKey    = "password"
	DatacenterKey  = "datacenter"
	DatastoreKey   = "datastore"
	FolderKey      = "folder"
	RespoolPathKey = "respool_path"
)

// RelationTools are the hook tools used to read and write relation data.
type RelationTools interface {
	UnitName() string
	RelationIds(ctx context.Context, endpoint string) ([]string, error)
	RelationList(ctx context.Context, relationID string) ([]string, error)
	RelationGet(ctx context.Context, relationID, unit string) (map[string]string, error)
	RelationSet(ctx context.Context, relationID string, settings map[string]string) error
}

// Request is a remote unit asking for credentials.
type Request struct {
	RelationID string
	UnitName   string

	// HasCredentials is true once credentials have been published on the
	// request's relation.
	HasCredentials bool
}

// Endpoint is the "clients" endpoint. Settings written to requests are
// buffered until MarkCompleted.
type Endpoint struct {
	tools RelationTools

	pending map[string]map[string]string
}

// NewEndpoint returns an Endpoint that talks to the relation through tools.
func NewEndpoint(tools RelationTools) *Endpoint {
	return &Endpoint{
		tools:   tools,
		pending: make(map[string]map[string]string),
	}
}

// Joined reports whether any remote unit has joined the endpoint.
func (e *Endpoint) Joined(ctx context.Context) (bool, error) {
	ids, err := e.tools.RelationIds(ctx, EndpointName)
	if err != nil {
		return false, errors.Trace(err)
	}
	for _, id := range ids {
		units, err := e.remoteUnits(ctx, id)
		if err != nil {
			return false, errors.Trace(err)
		}
		if len(units) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// AllRequests returns a request for every remote unit, ordered by relation
// and then by unit number.
func (e *Endpoint) AllRequests(ctx context.Context) ([]Request, error) {
	ids, err := e.tools.RelationIds(ctx, EndpointName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var requests []Request
	for _, id := range ids {
		units, err := e.remoteUnits(ctx, id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(units) == 0 {
			continue
		}
		published, err := e.tools.RelationGet(ctx, id, e.tools.UnitName())
		if err != nil {
			return nil, errors.Annotatef(err, "reading published settings on %s", id)
		}
		_, hasCreds := published[VsphereIPKey]
		for _, unit := range units {
			requests = append(requests, Request{
				RelationID:     id,
				UnitName:       unit,
				HasCredentials: hasCreds,
			})
		}
	}
	return requests, nil
}

// NewRequests returns the requests that do not yet have credentials.
func (e *Endpoint) NewRequests(ctx context.Context) ([]Request, error) {
	all, err := e.AllRequests(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var requests []Request
	for _, req := range all {
		if !req.HasCredentials {
			requests = append(requests, req)
		}
	}
	return requests, nil
}

// SetCredentials queues creds for publishing to the request.
func (e *Endpoint) SetCredentials(req Request, creds vsphere.Credentials) error {
	return errors.Trace(e.publish(req, map[string]string{
		VsphereIPKey:  creds.Endpoint,
		UserKey:       creds.User,
		PasswordKey:   creds.Password,
		DatacenterKey: creds.Datacenter,
	}))
}

// SetConfig queues the deployment config for publishing to the request.
func (e *Endpoint) SetConfig(req Request, dc vsphere.DeploymentConfig) error {
	return errors.Trace(e.publish(req, map[string]string{
		DatastoreKey:   dc.Datastore,
		FolderKey:      dc.Folder,
		RespoolPathKey: dc.ResourcePoolPath,
	}))
}

// MarkCompleted publishes the queued settings, with one relation-set per
// relation.
func (e *Endpoint) MarkCompleted(ctx context.Context) error {
	ids := make([]string, 0, len(e.pending))
	for id := range e.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := e.tools.RelationSet(ctx, id, e.pending[id]); err != nil {
			return errors.Annotatef(err, "publishing settings on %s", id)
		}
		delete(e.pending, id)
	}
	return nil
}

func (e *Endpoint) publish(req Request, values map[string]string) error {
	if req.RelationID == "" {
		return errors.NotValidf("request for %q without relation", req.UnitName)
	}
	settings, ok := e.pending[req.RelationID]
	if !ok {
		settings = make(map[string]string)
		e.pending[req.RelationID] = settings
	}
	for k, v := range values {
		encoded, err := json.Marshal(v)
		if err != nil {
			return errors.Trace(err)
		}
		settings[k] = string(encoded)
	}
	return nil
}

// remoteUnits lists the units on a relation in natural order, skipping
// names that are not unit names.
func (e *Endpoint) remoteUnits(ctx context.Context, relationID string) ([]string, error) {
	units, err := e.tools.RelationList(ctx, relationID)
	if err != nil {
		return nil, errors.Annotatef(err, "listing units on %s", relationID)
	}
	valid := units[:0]
	for _, unit := range units {
		if !names.IsValidUnit(unit) {
			logger.Warningf("ignoring invalid unit name %q on %s", unit, relationID)
			continue
		}
		valid = append(valid, unit)
	}
	return naturalsort.Sort(valid), nil
}
