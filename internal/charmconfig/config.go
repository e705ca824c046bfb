// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package charmconfig holds the typed configuration of the vsphere-integrator
// charm and the means of telling which options changed between two hooks.
package charmconfig

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/schema"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/juju/environschema.v1"
)

const (
	CredentialsKey = "credentials"
	VsphereIPKey   = "vsphere_ip"
	UserKey        = "user"
	PasswordKey    = "password"
	DatacenterKey  = "datacenter"
	DatastoreKey   = "datastore"
	FolderKey      = "folder"
	RespoolPathKey = "respool_path"
)

// CredentialKeys are the options that feed credential resolution.
var CredentialKeys = set.NewStrings(
	CredentialsKey, VsphereIPKey, UserKey, PasswordKey, DatacenterKey,
)

// PlacementKeys are the options that feed the deployment config.
var PlacementKeys = set.NewStrings(
	DatastoreKey, FolderKey, RespoolPathKey,
)

var configSchema = environschema.Fields{
	CredentialsKey: {
		Description: "Base64-encoded JSON credentials, in the form produced by credential-get.",
		Type:        environschema.Tstring,
		Secret:      true,
	},
	VsphereIPKey: {
		Description: "IP address or host name of the vCenter server.",
		Type:        environschema.Tstring,
	},
	UserKey: {
		Description: "Username used to authenticate against vCenter.",
		Type:        environschema.Tstring,
	},
	PasswordKey: {
		Description: "Password used to authenticate against vCenter.",
		Type:        environschema.Tstring,
		Secret:      true,
	},
	DatacenterKey: {
		Description: "Datacenter in which the cluster is deployed.",
		Type:        environschema.Tstring,
	},
	DatastoreKey: {
		Description: "Datastore used for persistent volumes.",
		Type:        environschema.Tstring,
	},
	FolderKey: {
		Description: "Folder in which the cluster machines live.",
		Type:        environschema.Tstring,
	},
	RespoolPathKey: {
		Description: "Path to the resource pool used by the cluster.",
		Type:        environschema.Tstring,
	},
}

var configDefaults = schema.Defaults{
	CredentialsKey: "",
	VsphereIPKey:   "",
	UserKey:        "",
	PasswordKey:    "",
	DatacenterKey:  "",
	DatastoreKey:   "",
	FolderKey:      "",
	RespoolPathKey: "",
}

// Config is the charm configuration relevant to vSphere integration.
type Config struct {
	Credentials string `mapstructure:"credentials"`
	VsphereIP   string `mapstructure:"vsphere_ip"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Datacenter  string `mapstructure:"datacenter"`
	Datastore   string `mapstructure:"datastore"`
	Folder      string `mapstructure:"folder"`
	RespoolPath string `mapstructure:"respool_path"`
}

// Schema returns the schema of the charm options understood by Parse.
func Schema() environschema.Fields {
	return configSchema
}

// Defaults returns the value each option takes when it is unset.
func Defaults() schema.Defaults {
	defaults := make(schema.Defaults, len(configDefaults))
	for k, v := range configDefaults {
		defaults[k] = v
	}
	return defaults
}

// Parse validates the raw option values returned by config-get and
// returns them as a Config. Options not known to the schema are ignored;
// unset options take their defaults.
func Parse(attrs map[string]interface{}) (Config, error) {
	fields, _, err := configSchema.ValidationSchema()
	if err != nil {
		return Config{}, errors.Trace(err)
	}
	present := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if v != nil {
			present[k] = v
		}
	}
	coerced, err := schema.FieldMap(fields, configDefaults).Coerce(present, nil)
	if err != nil {
		return Config{}, errors.Annotate(err, "invalid charm config")
	}
	var cfg Config
	if err := mapstructure.Decode(coerced, &cfg); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

// Attrs returns the option values keyed by option name.
func (c Config) Attrs() map[string]string {
	return map[string]string{
		CredentialsKey: c.Credentials,
		VsphereIPKey:   c.VsphereIP,
		UserKey:        c.User,
		PasswordKey:    c.Password,
		DatacenterKey:  c.Datacenter,
		DatastoreKey:   c.Datastore,
		FolderKey:      c.Folder,
		RespoolPathKey: c.RespoolPath,
	}
}

// Digests returns a SHA-256 digest of every option value, so that a
// config snapshot can be persisted without a plaintext copy of secrets.
func (c Config) Digests() map[string]string {
	attrs := c.Attrs()
	digests := make(map[string]string, len(attrs))
	for k, v := range attrs {
		sum := sha256.Sum256([]byte(v))
		digests[k] = hex.EncodeToString(sum[:])
	}
	return digests
}

// ChangedKeys returns the options whose value differs from the snapshot
// described by prev. A nil snapshot means there was no previous hook, so
// every option counts as changed.
func (c Config) ChangedKeys(prev map[string]string) set.Strings {
	changed := set.NewStrings()
	for k, digest := range c.Digests() {
		if old, ok := prev[k]; !ok || old != digest {
			changed.Add(k)
		}
	}
	return changed
}
