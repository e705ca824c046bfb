// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package vsphere

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/mitchellh/mapstructure"
)

// Credentials is the canonical credential record handed to clients. The
// JSON names are the relation keys that consumers read.
type Credentials struct {
	Endpoint   string `json:"vsphere_ip"`
	User       string `json:"user"`
	Password   string `json:"password"`
	Datacenter string `json:"datacenter"`
}

// Validate returns an error satisfying errors.NotValid if any field is
// empty.
func (c Credentials) Validate() error {
	switch {
	case c.Endpoint == "":
		return errors.NotValidf("credentials without endpoint")
	case c.User == "":
		return errors.NotValidf("credentials without user")
	case c.Password == "":
		return errors.NotValidf("credentials without password")
	case c.Datacenter == "":
		return errors.NotValidf("credentials without datacenter")
	}
	return nil
}

// String hides the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s/%s", c.User, c.Endpoint, c.Datacenter)
}

// GoString hides the password from %#v.
func (c Credentials) GoString() string {
	return fmt.Sprintf("vsphere.Credentials{Endpoint:%q, User:%q, Password:<hidden>, Datacenter:%q}",
		c.Endpoint, c.User, c.Datacenter)
}

// DeploymentConfig says where the cluster's vSphere resources live.
type DeploymentConfig struct {
	Datastore        string `json:"datastore"`
	Folder           string `json:"folder"`
	ResourcePoolPath string `json:"respool_path"`
}

// Shape identifies the layout of a raw credential payload.
type Shape int

const (
	// ShapeCloudSpec is the nested layout produced by credential-get:
	// endpoint, region and credential.attributes.
	ShapeCloudSpec Shape = iota + 1

	// ShapeFlat is the layout of the discrete charm options.
	ShapeFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeCloudSpec:
		return "cloud-spec"
	case ShapeFlat:
		return "flat"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// CloudSpec is the nested credential layout.
type CloudSpec struct {
	Endpoint   string `mapstructure:"endpoint"`
	Region     string `mapstructure:"region"`
	Credential struct {
		Attributes struct {
			User     string `mapstructure:"user"`
			Password string `mapstructure:"password"`
		} `mapstructure:"attributes"`
	} `mapstructure:"credential"`
}

// FlatCredentials is the flat credential layout.
type FlatCredentials struct {
	VsphereIP  string `mapstructure:"vsphere_ip"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Datacenter string `mapstructure:"datacenter"`
}

// RawCredentials is a credential payload whose layout has been decided.
// Exactly one of CloudSpec and Flat is set, as indicated by Shape.
type RawCredentials struct {
	Shape     Shape
	CloudSpec *CloudSpec
	Flat      *FlatCredentials
}

// ParseRawCredentials decides the layout of a decoded JSON or YAML
// document and decodes it. Documents with an "endpoint" key are cloud
// specs; anything else is taken to be flat.
func ParseRawCredentials(doc map[string]interface{}) (RawCredentials, error) {
	if doc == nil {
		return RawCredentials{}, errors.NotValidf("empty credentials")
	}
	if _, ok := doc["endpoint"]; ok {
		var spec CloudSpec
		if err := decodeStrict(doc, &spec); err != nil {
			return RawCredentials{}, errors.Annotate(err, "decoding cloud spec credentials")
		}
		return RawCredentials{Shape: ShapeCloudSpec, CloudSpec: &spec}, nil
	}
	var flat FlatCredentials
	if err := decodeStrict(doc, &flat); err != nil {
		return RawCredentials{}, errors.Annotate(err, "decoding credentials")
	}
	return RawCredentials{Shape: ShapeFlat, Flat: &flat}, nil
}

// decodeStrict decodes doc into out without weak typing, so that a
// number where a string is expected is an error. Unknown keys are
// allowed: cloud specs carry more than is used here.
func decodeStrict(doc map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: false,
	})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(decoder.Decode(doc))
}

// Canonical maps the payload onto the canonical record. The cloud spec
// region names the datacenter.
func (r RawCredentials) Canonical() (Credentials, error) {
	var creds Credentials
	switch r.Shape {
	case ShapeCloudSpec:
		creds = Credentials{
			Endpoint:   r.CloudSpec.Endpoint,
			User:       r.CloudSpec.Credential.Attributes.User,
			Password:   r.CloudSpec.Credential.Attributes.Password,
			Datacenter: r.CloudSpec.Region,
		}
	case ShapeFlat:
		creds = Credentials{
			Endpoint:   r.Flat.VsphereIP,
			User:       r.Flat.User,
			Password:   r.Flat.Password,
			Datacenter: r.Flat.Datacenter,
		}
	default:
		return Credentials{}, errors.NotValidf("credential shape %v", r.Shape)
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, errors.Trace(err)
	}
	return creds, nil
}
