package access

import (
	"errors"
	"testing"

	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/types"
)

var (
	admin = &types.User{Username: types.AdminUsername}
	alice = &types.User{Username: "alice"}
	bob   = &types.User{Username: "bob"}
	space = &types.Space{Slug: "tasks", Members: []string{"alice"}}
)

func wantOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("got %v, want nil", err)
	}
}

func wantDenied(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, errs.ErrAccessDenied) {
		t.Errorf("got %v, want ErrAccessDenied", err)
	}
}

func wantUnauthenticated(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, errs.ErrAuthentication) {
		t.Errorf("got %v, want ErrAuthentication", err)
	}
}

func TestAuthenticated(t *testing.T) {
	wantOK(t, Authenticated(alice))
	wantUnauthenticated(t, Authenticated(nil))
}

func TestAdmin(t *testing.T) {
	wantOK(t, Admin(admin))
	wantDenied(t, Admin(alice))
	wantUnauthenticated(t, Admin(nil))
}

func TestSpaceMember(t *testing.T) {
	wantOK(t, SpaceMember(alice, space))
	wantDenied(t, SpaceMember(bob, space))
	// Admin oversight does not imply membership.
	wantDenied(t, SpaceMember(admin, space))
	wantUnauthenticated(t, SpaceMember(nil, space))
}

func TestSpaceReader(t *testing.T) {
	wantOK(t, SpaceReader(alice, space))
	wantOK(t, SpaceReader(admin, space))
	wantDenied(t, SpaceReader(bob, space))
	wantUnauthenticated(t, SpaceReader(nil, space))
}

func TestCommentAuthor(t *testing.T) {
	comment := &types.Comment{SpaceSlug: "tasks", NoteNumber: 1, Number: 1, Author: "alice"}
	wantOK(t, CommentAuthor(alice, comment))
	wantDenied(t, CommentAuthor(bob, comment))
	wantDenied(t, CommentAuthor(admin, comment))
	wantUnauthenticated(t, CommentAuthor(nil, comment))
}

func TestPendingAttachmentOwner(t *testing.T) {
	att := &types.PendingAttachment{Number: 1, Author: "alice"}
	wantOK(t, PendingAttachmentOwner(alice, att))
	wantDenied(t, PendingAttachmentOwner(bob, att))
	wantUnauthenticated(t, PendingAttachmentOwner(nil, att))
}

func TestSelfOrAdmin(t *testing.T) {
	wantOK(t, SelfOrAdmin(alice, "alice"))
	wantOK(t, SelfOrAdmin(admin, "alice"))
	wantDenied(t, SelfOrAdmin(bob, "alice"))
	wantUnauthenticated(t, SelfOrAdmin(nil, "alice"))
}
