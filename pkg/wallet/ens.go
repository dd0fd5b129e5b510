package wallet

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ens "github.com/wealdtech/go-ens/v3"
)

// Resolver turns a human-readable name into an address.
type Resolver interface {
	Resolve(ctx context.Context, name string) (common.Address, error)
}

// ENSResolver resolves names through the ENS registry on the connected chain.
type ENSResolver struct {
	backend bind.ContractBackend
}

// NewENSResolver creates a resolver over a contract backend (an ethclient).
func NewENSResolver(backend bind.ContractBackend) *ENSResolver {
	return &ENSResolver{backend: backend}
}

// Resolve implements Resolver. go-ens has no context support, so ctx is only
// checked before the lookup starts.
func (r *ENSResolver) Resolve(ctx context.Context, name string) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	addr, err := ens.Resolve(r.backend, name)
	if err != nil {
		return common.Address{}, fmt.Errorf("ens resolve %s: %w", name, err)
	}
	return addr, nil
}

// StaticResolver resolves from a fixed table. Handy for tests and local
// devnets without an ENS registry.
type StaticResolver map[string]common.Address

// Resolve implements Resolver.
func (r StaticResolver) Resolve(_ context.Context, name string) (common.Address, error) {
	addr, ok := r[name]
	if !ok {
		return common.Address{}, fmt.Errorf("no address for %s", name)
	}
	return addr, nil
}

var (
	_ Resolver = (*ENSResolver)(nil)
	_ Resolver = StaticResolver(nil)
)
