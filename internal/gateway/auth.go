package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stackgate/stackgate/internal/cfn"
	"github.com/stackgate/stackgate/internal/keystore"
	"github.com/stackgate/stackgate/internal/sigv4"
)

// authenticate establishes the request subject. In sigv4 mode the access key
// id named in the Authorization header selects the credential, and the
// signature must verify against its secret; any failure is an AccessDenied
// fault that names no internals.
func (g *Gateway) authenticate(ctx context.Context, r *http.Request, body []byte) (Subject, *cfn.Fault) {
	if g.authDisabled {
		return g.devSubject, nil
	}

	auth, err := sigv4.ParseAuthorization(r.Header.Get("Authorization"))
	if err != nil {
		if errors.Is(err, sigv4.ErrMissingAuth) {
			return Subject{}, cfn.AccessDenied("Request is missing an Authorization header")
		}
		return Subject{}, cfn.AccessDenied("Authorization header is malformed")
	}

	cred, err := g.keys.Lookup(auth.AccessKeyID)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return Subject{}, cfn.AccessDenied("Unknown access key id")
		}
		g.log.Error().Err(err).Msg("keystore lookup failed")
		return Subject{}, cfn.InternalFailure("The request processing has failed due to an internal error")
	}

	if err := g.verifier.Verify(ctx, r, body, cred.SecretAccessKey, time.Now()); err != nil {
		g.log.Debug().Err(err).Str("access_key_id", auth.AccessKeyID).Msg("signature rejected")
		switch {
		case errors.Is(err, sigv4.ErrClockSkew):
			return Subject{}, cfn.AccessDenied("Request timestamp is outside the accepted window")
		case errors.Is(err, sigv4.ErrSignatureMismatch):
			return Subject{}, cfn.AccessDenied("The request signature we calculated does not match the signature you provided")
		default:
			return Subject{}, cfn.AccessDenied("Request signature could not be verified")
		}
	}

	return Subject{
		Tenant:      cred.Tenant,
		Principal:   cred.Principal,
		AccessKeyID: cred.AccessKeyID,
	}, nil
}
