package realtime

import (
	"context"

	"github.com/mdobak/go-xerrors"
	"github.com/tunetogether/backend/internal/store"
)

// Action is the operation a user wants to perform against a session room.
type Action int

const (
	ActionSubscribe Action = iota
	ActionMutatePlayback
	ActionSendChat
)

// FriendChecker answers whether two users share a friend edge.
type FriendChecker interface {
	AreFriends(ctx context.Context, userID, otherID string) (bool, error)
}

// Authorizer applies the session privacy model. Hosts and members are always
// admitted; everyone else is decided by the session's privacy type against
// the social graph at the moment of the check.
type Authorizer struct {
	friends FriendChecker
}

func NewAuthorizer(friends FriendChecker) *Authorizer {
	return &Authorizer{friends: friends}
}

// Authorize returns nil when the user may perform action on the session.
// Playback mutation is reserved to the host regardless of privacy.
func (a *Authorizer) Authorize(ctx context.Context, userID string, sess *store.Session, action Action) error {
	if action == ActionMutatePlayback {
		if userID != sess.HostID {
			return ErrNotHost
		}
		return nil
	}
	if userID == sess.HostID || sess.HasMember(userID) {
		return nil
	}
	switch sess.PrivacyType {
	case store.PrivacyPublic:
		return nil
	case store.PrivacyFriends:
		ok, err := a.friends.AreFriends(ctx, userID, sess.HostID)
		if err != nil {
			return xerrors.New(ErrCollaboratorUnavailable, err)
		}
		if !ok {
			return ErrAccessDenied
		}
		return nil
	default:
		return ErrAccessDenied
	}
}
