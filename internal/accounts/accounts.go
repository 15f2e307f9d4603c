package accounts

import "context"

// Resolver exchanges an opaque locally-issued credential for the profile
// name it was issued to. A miss is not an error: every backend failure mode
// (unknown token, transport error, malformed response) reads the same as
// "not found", so the handshake cannot leak which one happened.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (string, bool)
}
