// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package vsphere

import (
	"context"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// CredentialGetter runs the credential-get hook tool.
type CredentialGetter interface {
	CredentialGet(ctx context.Context) ([]byte, error)
}

// TrustFetcher fetches the model's cloud credential through credential-get,
// which only succeeds once the application has been trusted.
type TrustFetcher struct {
	getter CredentialGetter
}

// NewTrustFetcher returns a Fetcher backed by getter.
func NewTrustFetcher(getter CredentialGetter) *TrustFetcher {
	return &TrustFetcher{getter: getter}
}

// FetchCredentials is part of the Fetcher interface. Errors satisfying
// errors.NotSupported and errors.Unauthorized from the getter are passed
// on unchanged.
func (f *TrustFetcher) FetchCredentials(ctx context.Context) (RawCredentials, error) {
	out, err := f.getter.CredentialGet(ctx)
	if err != nil {
		return RawCredentials{}, errors.Trace(err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(out, &doc); err != nil {
		return RawCredentials{}, errors.Annotate(err, "parsing credential-get output")
	}
	raw, err := ParseRawCredentials(doc)
	return raw, errors.Trace(err)
}
