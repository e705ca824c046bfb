// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package integrator drives the charm: on every hook it makes sure that
// credentials and deployment config are resolved, then hands them to the
// client units that are waiting for them.
package integrator

import (
	"context"

	"github.com/juju/errors"

	"github.com/juju/vsphere-integrator/core/status"
	"github.com/juju/vsphere-integrator/internal/charmconfig"
	"github.com/juju/vsphere-integrator/internal/clients"
	"github.com/juju/vsphere-integrator/internal/vsphere"
)

//go:generate go run go.uber.org/mock/mockgen -package integrator -destination reconciler_mock_test.go github.com/juju/vsphere-integrator/internal/integrator ConfigSource,Resolver,Clients,Store
//go:generate go run go.uber.org/mock/mockgen -package integrator -destination status_mock_test.go github.com/juju/vsphere-integrator/core/status StatusSetter

// Unit data keys.
const (
	StateKey   = "charm.vsphere.state"
	DigestsKey = "charm.vsphere.config-digests"
)

// ConfigSource returns the raw charm options.
type ConfigSource interface {
	ConfigGet(ctx context.Context) (map[string]interface{}, error)
}

// Resolver resolves credentials and deployment config.
type Resolver interface {
	ResolveCredentials(ctx context.Context, cfg charmconfig.Config) (bool, error)
	ResolveConfig(ctx context.Context, cfg charmconfig.Config) (vsphere.DeploymentConfig, bool, error)
	LoadCredentials(ctx context.Context) (vsphere.Credentials, error)
}

// Clients is the transport carrying client requests.
type Clients interface {
	Joined(ctx context.Context) (bool, error)
	AllRequests(ctx context.Context) ([]clients.Request, error)
	NewRequests(ctx context.Context) ([]clients.Request, error)
	SetCredentials(req clients.Request, creds vsphere.Credentials) error
	SetConfig(req clients.Request, dc vsphere.DeploymentConfig) error
	MarkCompleted(ctx context.Context) error
}

// Store is durable unit data.
type Store interface {
	Get(ctx context.Context, key string, out interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
}

// Logger represents the methods used by the reconciler to log information.
type Logger interface {
	Infof(string, ...interface{})
	Debugf(string, ...interface{})
}

// Config holds the dependencies of a Reconciler.
type Config struct {
	ConfigSource ConfigSource
	Resolver     Resolver
	Clients      Clients
	Store        Store
	Status       status.StatusSetter
	Logger       Logger
}

// Validate returns an error if the config cannot drive a Reconciler.
func (c Config) Validate() error {
	if c.ConfigSource == nil {
		return errors.NotValidf("nil ConfigSource")
	}
	if c.Resolver == nil {
		return errors.NotValidf("nil Resolver")
	}
	if c.Clients == nil {
		return errors.NotValidf("nil Clients")
	}
	if c.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if c.Status == nil {
		return errors.NotValidf("nil Status")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// State is the resolution state carried from one hook to the next.
type State struct {
	CredentialsResolved bool `json:"credentials-resolved"`
	ConfigResolved      bool `json:"config-resolved"`
	SeriesUpgrade       bool `json:"series-upgrade"`
}

// Reconciler runs reconciliation passes. It is used for a single hook and
// is not safe for concurrent use.
type Reconciler struct {
	cfg Config

	state State
}

// NewReconciler returns a Reconciler for the given config.
func NewReconciler(cfg Config) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Reconciler{cfg: cfg}, nil
}

// State returns the state as of the end of the last operation.
func (r *Reconciler) State() State {
	return r.state
}

// Reconcile runs one pass for the named hook. It returns an error only
// for unexpected failures; configuration problems are reported through
// the workload status.
func (r *Reconciler) Reconcile(ctx context.Context, hook string) error {
	r.cfg.Logger.Debugf("reconciling in %q hook", hook)
	if err := r.loadState(ctx); err != nil {
		return errors.Trace(err)
	}
	prev, err := r.loadDigests(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	attrs, err := r.cfg.ConfigSource.ConfigGet(ctx)
	if err != nil {
		return errors.Annotate(err, "reading charm config")
	}
	cfg, err := charmconfig.Parse(attrs)
	if err != nil {
		return errors.Trace(err)
	}

	changed := cfg.ChangedKeys(prev)
	if !changed.Intersection(charmconfig.CredentialKeys).IsEmpty() {
		r.state.CredentialsResolved = false
	}
	if !changed.Intersection(charmconfig.PlacementKeys).IsEmpty() {
		r.state.ConfigResolved = false
	}
	if !changed.IsEmpty() {
		r.cfg.Logger.Debugf("config changed: %v", changed.SortedValues())
	}

	if !r.state.CredentialsResolved {
		if r.state.CredentialsResolved, err = r.cfg.Resolver.ResolveCredentials(ctx, cfg); err != nil {
			return errors.Trace(err)
		}
	}
	if !r.state.ConfigResolved {
		if _, r.state.ConfigResolved, err = r.cfg.Resolver.ResolveConfig(ctx, cfg); err != nil {
			return errors.Trace(err)
		}
	}

	f := facts{
		credsResolved:  r.state.CredentialsResolved,
		configResolved: r.state.ConfigResolved,
		seriesUpgrade:  r.state.SeriesUpgrade,
		configChanged:  !changed.IsEmpty(),
	}
	var pending []clients.Request
	if f.credsResolved && f.configResolved && !f.seriesUpgrade {
		if f.joined, err = r.cfg.Clients.Joined(ctx); err != nil {
			return errors.Trace(err)
		}
		if pending, err = r.cfg.Clients.NewRequests(ctx); err != nil {
			return errors.Trace(err)
		}
		f.pending = len(pending) > 0
	}

	switch decide(f) {
	case actionReady:
		if err := r.cfg.Status.SetStatus(ctx, status.Activef(status.MessageReady)); err != nil {
			return errors.Trace(err)
		}
	case actionFulfil:
		requests := pending
		if f.configChanged {
			if requests, err = r.cfg.Clients.AllRequests(ctx); err != nil {
				return errors.Trace(err)
			}
		}
		if err := r.fulfil(ctx, cfg, requests); err != nil {
			return errors.Trace(err)
		}
	}

	if err := r.cfg.Store.Set(ctx, DigestsKey, cfg.Digests()); err != nil {
		return errors.Annotate(err, "saving config digests")
	}
	return errors.Trace(r.saveState(ctx))
}

// fulfil hands the resolved credentials and config to every request and
// marks the batch completed.
func (r *Reconciler) fulfil(ctx context.Context, cfg charmconfig.Config, requests []clients.Request) error {
	for _, req := range requests {
		if err := r.cfg.Status.SetStatus(ctx, status.Maintenancef(status.MessageGrantingRequestFmt, req.UnitName)); err != nil {
			return errors.Trace(err)
		}
		creds, err := r.cfg.Resolver.LoadCredentials(ctx)
		if err != nil {
			return errors.Annotate(err, "loading credentials")
		}
		dc, ok, err := r.cfg.Resolver.ResolveConfig(ctx, cfg)
		if err != nil {
			return errors.Trace(err)
		} else if !ok {
			return errors.Errorf("deployment config for %s not resolved", req.UnitName)
		}
		if err := r.cfg.Clients.SetCredentials(req, creds); err != nil {
			return errors.Trace(err)
		}
		if err := r.cfg.Clients.SetConfig(req, dc); err != nil {
			return errors.Trace(err)
		}
		r.cfg.Logger.Infof("Finished request for %s", req.UnitName)
	}
	if err := r.cfg.Clients.MarkCompleted(ctx); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.cfg.Status.SetStatus(ctx, status.Activef(status.MessageReady)))
}

// PreSeriesUpgrade holds off serving requests until PostSeriesUpgrade.
func (r *Reconciler) PreSeriesUpgrade(ctx context.Context) error {
	if err := r.loadState(ctx); err != nil {
		return errors.Trace(err)
	}
	r.state.SeriesUpgrade = true
	if err := r.saveState(ctx); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.cfg.Status.SetStatus(ctx, status.Blockedf(status.MessageSeriesUpgrade)))
}

// PostSeriesUpgrade resumes serving requests.
func (r *Reconciler) PostSeriesUpgrade(ctx context.Context) error {
	if err := r.loadState(ctx); err != nil {
		return errors.Trace(err)
	}
	r.state.SeriesUpgrade = false
	if err := r.saveState(ctx); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.Reconcile(ctx, "post-series-upgrade"))
}

// Stop runs when the unit is stopping. There is nothing to clean up:
// published relation data goes away with the relation.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.cfg.Logger.Debugf("stopping")
	return nil
}

func (r *Reconciler) loadState(ctx context.Context) error {
	var st State
	err := r.cfg.Store.Get(ctx, StateKey, &st)
	if err != nil && !errors.Is(err, errors.NotFound) {
		return errors.Annotate(err, "loading state")
	}
	r.state = st
	return nil
}

func (r *Reconciler) saveState(ctx context.Context) error {
	return errors.Annotate(r.cfg.Store.Set(ctx, StateKey, r.state), "saving state")
}

// loadDigests returns the config digests recorded by the last pass, or nil
// if there has not been one.
func (r *Reconciler) loadDigests(ctx context.Context) (map[string]string, error) {
	var digests map[string]string
	err := r.cfg.Store.Get(ctx, DigestsKey, &digests)
	if errors.Is(err, errors.NotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Annotate(err, "loading config digests")
	}
	return digests, nil
}
