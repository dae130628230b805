// Package relocation defines how provider-hosted artifacts are copied into
// storage the service controls.
package relocation

import "context"

// Relocator copies the artifact behind remoteRef into durable storage and
// returns the durable reference. keyHint is the object key to use, without
// extension; implementations may append one.
type Relocator interface {
	Relocate(ctx context.Context, remoteRef, keyHint string) (string, error)
}

// Func adapts a plain function to Relocator.
type Func func(ctx context.Context, remoteRef, keyHint string) (string, error)

// Relocate calls f.
func (f Func) Relocate(ctx context.Context, remoteRef, keyHint string) (string, error) {
	return f(ctx, remoteRef, keyHint)
}

// Passthrough keeps the provider's reference as the durable one. It is used
// when no storage backend is configured.
var Passthrough Relocator = Func(func(_ context.Context, remoteRef, _ string) (string, error) {
	return remoteRef, nil
})
