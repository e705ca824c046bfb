// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package vsphere resolves the vSphere credentials and deployment config
// that the integrator hands to its clients.
//
// Credentials come from the first of these sources to yield data:
//   - the base64-encoded JSON "credentials" option;
//   - the vsphere_ip, user, password and datacenter options, all set;
//   - the model's cloud credential, through credential-get.
//
// The resolved record is kept in the unit's data store so that it can be
// served to clients in later hooks.
package vsphere

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/juju/errors"

	"github.com/juju/vsphere-integrator/core/status"
	"github.com/juju/vsphere-integrator/internal/charmconfig"
)

//go:generate go run go.uber.org/mock/mockgen -package vsphere -destination resolver_mock_test.go github.com/juju/vsphere-integrator/internal/vsphere Fetcher,Store
//go:generate go run go.uber.org/mock/mockgen -package vsphere -destination status_mock_test.go github.com/juju/vsphere-integrator/core/status StatusSetter

// CredentialsKey is the unit data key of the canonical credential record.
const CredentialsKey = "charm.vsphere.full-creds"

// Fetcher fetches credentials from a trusted source. Errors satisfying
// errors.NotSupported mean the source is not available here; errors
// satisfying errors.Unauthorized mean access has not been granted.
type Fetcher interface {
	FetchCredentials(ctx context.Context) (RawCredentials, error)
}

// Store is durable unit data.
type Store interface {
	Get(ctx context.Context, key string, out interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
}

// Logger represents the methods used by the resolver to log information.
type Logger interface {
	Infof(string, ...interface{})
	Debugf(string, ...interface{})
}

// ResolverConfig holds the dependencies of a Resolver.
type ResolverConfig struct {
	Fetcher Fetcher
	Store   Store
	Status  status.StatusSetter
	Logger  Logger
}

// Validate returns an error if the config cannot drive a Resolver.
func (c ResolverConfig) Validate() error {
	if c.Fetcher == nil {
		return errors.NotValidf("nil Fetcher")
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

// Resolver decides which credentials and deployment config to use.
type Resolver struct {
	cfg ResolverConfig
}

// NewResolver returns a Resolver for the given config.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Resolver{cfg: cfg}, nil
}

// ResolveCredentials resolves and stores the credentials described by
// cfg. It returns false, having set a blocked status, if no usable
// credentials are available. Only unexpected failures are returned as
// errors.
func (r *Resolver) ResolveCredentials(ctx context.Context, cfg charmconfig.Config) (bool, error) {
	if cfg.Credentials != "" {
		creds, err := decodeInlineCredentials(cfg.Credentials)
		if err != nil {
			// The error may quote parts of the secret.
			r.cfg.Logger.Debugf("rejected %q config", charmconfig.CredentialsKey)
			return false, r.blocked(ctx, status.MessageInvalidCredentials)
		}
		r.cfg.Logger.Infof("Using %q config values for credentials", charmconfig.CredentialsKey)
		return r.save(ctx, creds)
	}

	flat := FlatCredentials{
		VsphereIP:  cfg.VsphereIP,
		User:       cfg.User,
		Password:   cfg.Password,
		Datacenter: cfg.Datacenter,
	}
	if creds, err := (RawCredentials{Shape: ShapeFlat, Flat: &flat}).Canonical(); err == nil {
		r.cfg.Logger.Infof("Using individual config values for credentials")
		return r.save(ctx, creds)
	}

	msg := status.MessageMissingCredentials
	raw, err := r.cfg.Fetcher.FetchCredentials(ctx)
	switch {
	case errors.Is(err, errors.NotSupported):
		r.cfg.Logger.Debugf("trusted credentials not available: %v", err)
	case errors.Is(err, errors.Unauthorized):
		msg = status.MessageMissingTrust
	case err != nil:
		return false, errors.Annotate(err, "fetching trusted credentials")
	default:
		creds, err := raw.Canonical()
		if err != nil {
			return false, errors.Annotate(err, "trusted credentials")
		}
		r.cfg.Logger.Infof("Using credential-get for credentials")
		return r.save(ctx, creds)
	}
	return false, r.blocked(ctx, msg)
}

// ResolveConfig returns the deployment config described by cfg. It
// returns false, having set a blocked status, if datastore or folder is
// missing.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg charmconfig.Config) (DeploymentConfig, bool, error) {
	dc := DeploymentConfig{
		Datastore:        cfg.Datastore,
		Folder:           cfg.Folder,
		ResourcePoolPath: cfg.RespoolPath,
	}
	if dc.Datastore == "" {
		return DeploymentConfig{}, false, r.blocked(ctx, status.MessageMissingRequiredConf, charmconfig.DatastoreKey)
	}
	if dc.Folder == "" {
		return DeploymentConfig{}, false, r.blocked(ctx, status.MessageMissingRequiredConf, charmconfig.FolderKey)
	}
	return dc, true, nil
}

// LoadCredentials returns the stored credential record. The error
// satisfies errors.NotFound if credentials have never been resolved.
func (r *Resolver) LoadCredentials(ctx context.Context) (Credentials, error) {
	var creds Credentials
	if err := r.cfg.Store.Get(ctx, CredentialsKey, &creds); err != nil {
		return Credentials{}, errors.Trace(err)
	}
	return creds, nil
}

func (r *Resolver) save(ctx context.Context, creds Credentials) (bool, error) {
	if err := r.cfg.Store.Set(ctx, CredentialsKey, creds); err != nil {
		return false, errors.Annotate(err, "saving credentials")
	}
	return true, nil
}

func (r *Resolver) blocked(ctx context.Context, format string, args ...interface{}) error {
	return errors.Trace(r.cfg.Status.SetStatus(ctx, status.Blockedf(format, args...)))
}

// decodeInlineCredentials decodes the value of the credentials option:
// base64 of UTF-8 JSON, in either credential shape.
func decodeInlineCredentials(value string) (Credentials, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return Credentials{}, errors.NotValidf("base64 credentials")
	}
	if !utf8.Valid(data) {
		return Credentials{}, errors.NotValidf("utf-8 credentials")
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Credentials{}, errors.NotValidf("json credentials")
	}
	raw, err := ParseRawCredentials(doc)
	if err != nil {
		return Credentials{}, errors.Trace(err)
	}
	creds, err := raw.Canonical()
	return creds, errors.Trace(err)
}
