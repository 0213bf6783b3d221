package interfaces

import (
	"net/http"

	"bankchat/pkg/types"
)

// IdentityProvider verifies the credential attached to an HTTP or upgrade request
type IdentityProvider interface {
	Authenticate(r *http.Request) (*types.Identity, error)
}
