package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mdobak/go-xerrors"
	"github.com/tunetogether/backend/internal/services"
	"github.com/tunetogether/backend/internal/store"
)

// CredentialValidator verifies a bearer credential and returns its claims.
type CredentialValidator interface {
	ValidateToken(token string) (*services.Claims, error)
}

// UserFinder loads the stored user record behind a verified credential.
type UserFinder interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
}

// IdentityResolver turns a connect-time credential into a full Identity.
// Resolution happens once per connection, before the socket upgrade.
type IdentityResolver struct {
	auth  CredentialValidator
	users UserFinder
}

func NewIdentityResolver(auth CredentialValidator, users UserFinder) *IdentityResolver {
	return &IdentityResolver{auth: auth, users: users}
}

// Resolve validates the credential and looks up the user it names.
func (r *IdentityResolver) Resolve(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrUnauthenticated
	}
	claims, err := r.auth.ValidateToken(credential)
	if err != nil {
		return Identity{}, xerrors.New(ErrInvalidCredential, err)
	}
	user, err := r.users.GetUserByEmail(ctx, claims.Email())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, xerrors.New(ErrCollaboratorUnavailable, err)
	}
	return Identity{ID: user.ID, Username: user.Username, Email: user.Email}, nil
}

// CredentialFromRequest extracts the connect credential: the token query
// parameter wins, then the access_token cookie. Any "Bearer " prefix is
// stripped from either source. An empty return means no credential was
// presented.
func CredentialFromRequest(req *http.Request) string {
	if token := req.URL.Query().Get("token"); token != "" {
		return strings.TrimPrefix(token, "Bearer ")
	}
	cookie, err := req.Cookie("access_token")
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(cookie.Value, "Bearer ")
}
