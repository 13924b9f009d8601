package rp

import (
	"context"
	"net/http"
	"sync/atomic"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"

	"github.com/zitadel/oidc-rp/pkg/client"
	"github.com/zitadel/oidc-rp/pkg/oidc"
)

// provider caches the discovery document and the key set of the OP.
// Both are immutable snapshots, a refresh replaces them.
type provider struct {
	issuer       string
	discoveryURL string
	httpClient   *http.Client

	metadata atomic.Pointer[oidc.DiscoveryConfiguration]
	keySet   *remoteKeySet
	group    singleflight.Group
}

func (p *provider) ProviderMetadata(ctx context.Context) (*oidc.DiscoveryConfiguration, error) {
	if metadata := p.metadata.Load(); metadata != nil {
		return metadata, nil
	}
	return p.RefreshProviderMetadata(ctx)
}

// RefreshProviderMetadata runs discovery again. Concurrent callers
// share the result of one request.
func (p *provider) RefreshProviderMetadata(ctx context.Context) (*oidc.DiscoveryConfiguration, error) {
	ctx, span := client.Tracer.Start(ctx, "RefreshProviderMetadata")
	defer span.End()

	// the request outlives a caller that gives up, the others still wait for it
	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan("metadata", func() (any, error) {
		metadata, err := client.Discover(shared, p.issuer, p.httpClient, p.discoveryURL)
		if err != nil {
			return nil, err
		}
		p.metadata.Store(metadata)
		return metadata, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oidc.DiscoveryConfiguration), nil
	}
}

func (p *provider) ProviderKeys(ctx context.Context) (*jose.JSONWebKeySet, error) {
	keys, err := p.keySet.keys(ctx)
	if err != nil {
		return nil, err
	}
	return &jose.JSONWebKeySet{Keys: keys}, nil
}

// RefreshProviderKeys fetches the key set from the jwks_uri of the OP.
// Verifications already running finish with the keys they started with.
func (p *provider) RefreshProviderKeys(ctx context.Context) (*jose.JSONWebKeySet, error) {
	keys, err := p.keySet.keysFromRemote(ctx)
	if err != nil {
		return nil, err
	}
	return &jose.JSONWebKeySet{Keys: keys}, nil
}
