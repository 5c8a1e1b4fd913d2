// Package access holds the authorization guards the facade runs before
// dispatching into services.
//
// Guards distinguish two failure kinds: no caller at all is an
// authentication failure, an authenticated caller without the capability is
// access denied.
package access

import (
	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

// Authenticated requires a caller.
func Authenticated(u *types.User) error {
	if u == nil {
		return errs.Authentication("authentication required")
	}
	return nil
}

// Admin requires the built-in admin account.
func Admin(u *types.User) error {
	if err := Authenticated(u); err != nil {
		return err
	}
	if u.Username != types.AdminUsername {
		return errs.AccessDenied("admin access required")
	}
	return nil
}

// SpaceMember requires membership in the space. Admin is deliberately not a
// member; use SpaceReader where admin oversight applies.
func SpaceMember(u *types.User, space *types.Space) error {
	if err := Authenticated(u); err != nil {
		return err
	}
	if !space.IsMember(u.Username) {
		return errs.AccessDenied("user %q is not a member of space %q", u.Username, space.Slug)
	}
	return nil
}

// SpaceReader requires admin or space membership.
func SpaceReader(u *types.User, space *types.Space) error {
	if err := Authenticated(u); err != nil {
		return err
	}
	if u.Username == types.AdminUsername || space.IsMember(u.Username) {
		return nil
	}
	return errs.AccessDenied("user %q cannot read space %q", u.Username, space.Slug)
}

// CommentAuthor requires the caller to have written the comment.
func CommentAuthor(u *types.User, comment *types.Comment) error {
	if err := Authenticated(u); err != nil {
		return err
	}
	if comment.Author != u.Username {
		return errs.AccessDenied("only the comment author can modify it")
	}
	return nil
}

// PendingAttachmentOwner requires the caller to have uploaded the pending
// attachment.
func PendingAttachmentOwner(u *types.User, att *types.PendingAttachment) error {
	if err := Authenticated(u); err != nil {
		return err
	}
	if att.Author != u.Username {
		return errs.AccessDenied("only the uploader can use this pending attachment")
	}
	return nil
}

// SelfOrAdmin requires the caller to act on their own account or be admin.
func SelfOrAdmin(u *types.User, username string) error {
	if err := Authenticated(u); err != nil {
		return err
	}
	if u.Username != username && u.Username != types.AdminUsername {
		return errs.AccessDenied("cannot act on behalf of user %q", username)
	}
	return nil
}
