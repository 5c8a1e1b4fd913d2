package app

import (
	"context"

	"github.com/spacenote/spacenote/internal/access"
	"github.com/spacenote/spacenote/internal/errs"
	"github.com/spacenote/spacenote/internal/export"
	"github.com/spacenote/spacenote/internal/image"
	"github.com/spacenote/spacenote/internal/types"
)

// Sessions.

// Login verifies credentials and returns a session token.
func (a *App) Login(ctx context.Context, username, password string) (string, error) {
	return a.sessions.Login(ctx, username, password)
}

// Logout invalidates a session token.
func (a *App) Logout(ctx context.Context, token string) error {
	return a.sessions.Logout(ctx, token)
}

// Me resolves the calling user.
func (a *App) Me(ctx context.Context, token string) (*types.User, error) {
	return a.sessions.AuthenticatedUser(ctx, token)
}

// Users.

// CreateUser registers a new account. Admin only.
func (a *App) CreateUser(ctx context.Context, token, username, password string) (*types.User, error) {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := access.Admin(caller); err != nil {
		return nil, err
	}
	return a.users.Create(ctx, username, password)
}

// DeleteUser removes an account. Admin only; accounts with authored content
// cannot be deleted.
func (a *App) DeleteUser(ctx context.Context, token, username string) error {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return err
	}
	if err := access.Admin(caller); err != nil {
		return err
	}
	return a.users.Delete(ctx, username)
}

// ListUsers returns all accounts. Admin only.
func (a *App) ListUsers(ctx context.Context, token string) ([]*types.User, error) {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := access.Admin(caller); err != nil {
		return nil, err
	}
	return a.users.List(), nil
}

// ChangePassword lets a user rotate their own password.
func (a *App) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return err
	}
	return a.users.ChangePassword(ctx, caller.Username, oldPassword, newPassword)
}

// ResetPassword sets a user's password without the old one. Admin only.
func (a *App) ResetPassword(ctx context.Context, token, username, password string) error {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return err
	}
	if err := access.Admin(caller); err != nil {
		return err
	}
	return a.users.SetPassword(ctx, username, password)
}

// Spaces. Configuration is admin territory; reading requires membership or
// admin oversight.

// CreateSpace creates an empty space. Admin only.
func (a *App) CreateSpace(ctx context.Context, token, slug, title string, members []string) (*types.Space, error) {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := access.Admin(caller); err != nil {
		return nil, err
	}
	return a.spaces.Create(ctx, slug, title, members)
}

// GetSpace returns one space.
func (a *App) GetSpace(ctx context.Context, token, slug string) (*types.Space, error) {
	_, sp, err := a.reader(ctx, token, slug)
	return sp, err
}

// ListSpaces returns the spaces visible to the caller: all of them for
// admin, memberships otherwise.
func (a *App) ListSpaces(ctx context.Context, token string) ([]*types.Space, error) {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if caller.Username == types.AdminUsername {
		return a.spaces.List(), nil
	}
	return a.spaces.ListForMember(caller.Username), nil
}

// UpdateSpaceTitle renames a space. Admin only.
func (a *App) UpdateSpaceTitle(ctx context.Context, token, slug, title string) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.UpdateTitle(ctx, slug, title)
}

// UpdateSpaceDescription replaces the description. Admin only.
func (a *App) UpdateSpaceDescription(ctx context.Context, token, slug, description string) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.UpdateDescription(ctx, slug, description)
}

// UpdateSpaceMembers replaces the member list. Admin only.
func (a *App) UpdateSpaceMembers(ctx context.Context, token, slug string, members []string) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.UpdateMembers(ctx, slug, members)
}

// UpdateHiddenFieldsOnCreate replaces the create-form hidden list. Admin only.
func (a *App) UpdateHiddenFieldsOnCreate(ctx context.Context, token, slug string, names []string) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.UpdateHiddenFieldsOnCreate(ctx, slug, names)
}

// UpdateEditableFieldsOnComment replaces the comment-editable list. Admin only.
func (a *App) UpdateEditableFieldsOnComment(ctx context.Context, token, slug string, names []string) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.UpdateEditableFieldsOnComment(ctx, slug, names)
}

// AddField appends a field definition. Admin only.
func (a *App) AddField(ctx context.Context, token, slug string, def types.FieldDef) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.AddField(ctx, slug, def)
}

// RemoveField drops a field definition. Admin only.
func (a *App) RemoveField(ctx context.Context, token, slug, name string) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.RemoveField(ctx, slug, name)
}

// AddFilter adds a saved filter. Admin only.
func (a *App) AddFilter(ctx context.Context, token, slug string, f types.FilterDef) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.AddFilter(ctx, slug, f)
}

// UpdateFilter replaces a saved filter. Admin only.
func (a *App) UpdateFilter(ctx context.Context, token, slug string, f types.FilterDef) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.UpdateFilter(ctx, slug, f)
}

// RemoveFilter drops a saved filter. Admin only.
func (a *App) RemoveFilter(ctx context.Context, token, slug, name string) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.RemoveFilter(ctx, slug, name)
}

// SetTemplate stores a presentation or messenger template. Admin only.
func (a *App) SetTemplate(ctx context.Context, token, slug, key, source string) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.SetTemplate(ctx, slug, key, source)
}

// SetTelegram updates the messenger channel bindings. Admin only.
func (a *App) SetTelegram(ctx context.Context, token, slug string, settings *types.TelegramSettings) (*types.Space, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.spaces.SetTelegram(ctx, slug, settings)
}

// DeleteSpace removes a space and all of its data, blobs included. Admin
// only.
func (a *App) DeleteSpace(ctx context.Context, token, slug string) error {
	if err := a.admin(ctx, token); err != nil {
		return err
	}
	if _, err := a.spaces.Get(slug); err != nil {
		return err
	}
	// Blobs and renditions go first; the row cascade follows.
	if err := a.attachments.DeleteSpace(ctx, slug); err != nil {
		return err
	}
	if err := a.images.DeleteSpace(slug); err != nil {
		return err
	}
	return a.spaces.Delete(ctx, slug)
}

// Notes.

// CreateNote adds a note. Members only; fields hidden on create cannot be
// supplied explicitly.
func (a *App) CreateNote(ctx context.Context, token, slug string, raw map[string]string) (*types.Note, error) {
	caller, sp, err := a.member(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	for _, hidden := range sp.HiddenFieldsOnCreate {
		if _, ok := raw[hidden]; ok {
			return nil, errs.Validation("field %q is hidden on create", hidden)
		}
	}
	return a.notes.Create(ctx, sp, caller.Username, raw)
}

// GetNote returns one note with its computed title.
func (a *App) GetNote(ctx context.Context, token, slug string, number int64) (*types.Note, error) {
	_, sp, err := a.reader(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	return a.notes.Get(ctx, sp, number)
}

// ListNotes returns one page of notes through a saved filter plus optional
// adhoc conditions.
func (a *App) ListNotes(ctx context.Context, token, slug, filterName, adhoc string, limit, offset int) (*types.Page[*types.Note], error) {
	caller, sp, err := a.reader(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	return a.notes.List(ctx, sp, caller.Username, filterName, adhoc, limit, offset)
}

// UpdateNoteFields applies a partial field update. Members only.
func (a *App) UpdateNoteFields(ctx context.Context, token, slug string, number int64, raw map[string]string) (*types.Note, error) {
	caller, sp, err := a.member(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	updated, _, err := a.notes.UpdateFields(ctx, sp, number, raw, caller.Username)
	return updated, err
}

// DeleteNote removes a note and everything hanging off it. Members only.
func (a *App) DeleteNote(ctx context.Context, token, slug string, number int64) error {
	_, sp, err := a.member(ctx, token, slug)
	if err != nil {
		return err
	}
	return a.notes.Delete(ctx, sp, number)
}

// Comments.

// CreateComment adds a comment, optionally replying to a parent and editing
// comment-editable fields inline. Members only.
func (a *App) CreateComment(ctx context.Context, token, slug string, noteNumber int64, content string, parentNumber *int64, rawFields map[string]string) (*types.Comment, error) {
	caller, sp, err := a.member(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	return a.comments.Create(ctx, sp, noteNumber, caller.Username, content, parentNumber, rawFields)
}

// ListComments returns one page of a note's comments, oldest first.
func (a *App) ListComments(ctx context.Context, token, slug string, noteNumber int64, limit, offset int) (*types.Page[*types.Comment], error) {
	_, sp, err := a.reader(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	return a.comments.List(ctx, sp.Slug, noteNumber, limit, offset)
}

// UpdateComment edits a comment's content. Author only.
func (a *App) UpdateComment(ctx context.Context, token, slug string, noteNumber, number int64, content string) (*types.Comment, error) {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return nil, err
	}
	c, err := a.comments.Get(ctx, slug, noteNumber, number)
	if err != nil {
		return nil, err
	}
	if err := access.CommentAuthor(caller, c); err != nil {
		return nil, err
	}
	return a.comments.Update(ctx, slug, noteNumber, number, content)
}

// DeleteComment removes a comment. Author only.
func (a *App) DeleteComment(ctx context.Context, token, slug string, noteNumber, number int64) error {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return err
	}
	c, err := a.comments.Get(ctx, slug, noteNumber, number)
	if err != nil {
		return err
	}
	if err := access.CommentAuthor(caller, c); err != nil {
		return err
	}
	return a.comments.Delete(ctx, slug, noteNumber, number)
}

// Attachments.

// UploadPending stores a file for later binding to a note. Any authenticated
// user may upload within the size cap.
func (a *App) UploadPending(ctx context.Context, token, filename string, content []byte, mimeType string) (*types.PendingAttachment, error) {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if max := a.cfg.MaxUploadSize; max > 0 && int64(len(content)) > max {
		return nil, errs.Validation("upload exceeds the %d byte limit", max)
	}
	return a.attachments.CreatePending(ctx, caller.Username, filename, content, mimeType)
}

// GetPendingAttachment returns a pending upload's metadata. Uploader only.
func (a *App) GetPendingAttachment(ctx context.Context, token string, number int64) (*types.PendingAttachment, error) {
	_, pending, err := a.pendingOwner(ctx, token, number)
	return pending, err
}

// ReadPendingAttachment returns a pending upload's bytes. Uploader only.
func (a *App) ReadPendingAttachment(ctx context.Context, token string, number int64) ([]byte, error) {
	if _, _, err := a.pendingOwner(ctx, token, number); err != nil {
		return nil, err
	}
	return a.attachments.ReadPending(ctx, number)
}

// ConvertPendingImage converts a pending image upload to WebP on demand.
// Uploader only.
func (a *App) ConvertPendingImage(ctx context.Context, token string, number int64, options string) ([]byte, error) {
	if _, _, err := a.pendingOwner(ctx, token, number); err != nil {
		return nil, err
	}
	opts, err := image.ParseOptions(options)
	if err != nil {
		return nil, err
	}
	return a.images.ConvertPending(ctx, number, opts)
}

// UploadAttachment binds a file directly to a space or note. Members only.
func (a *App) UploadAttachment(ctx context.Context, token, slug string, noteNumber *int64, filename string, content []byte, mimeType string) (*types.Attachment, error) {
	caller, sp, err := a.member(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	if max := a.cfg.MaxUploadSize; max > 0 && int64(len(content)) > max {
		return nil, errs.Validation("upload exceeds the %d byte limit", max)
	}
	return a.attachments.Create(ctx, sp.Slug, noteNumber, caller.Username, filename, content, mimeType)
}

// ListAttachments returns a space's or note's attachments.
func (a *App) ListAttachments(ctx context.Context, token, slug string, noteNumber *int64) ([]*types.Attachment, error) {
	_, sp, err := a.reader(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	return a.attachments.List(ctx, sp.Slug, noteNumber)
}

// ReadAttachment returns an attachment's bytes.
func (a *App) ReadAttachment(ctx context.Context, token, slug string, noteNumber *int64, number int64) ([]byte, error) {
	_, sp, err := a.reader(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	return a.attachments.Read(ctx, sp.Slug, noteNumber, number)
}

// Rendition returns the derived WebP for a note's image attachment. Fails
// with the image-processing kind while the background job has not produced
// it yet.
func (a *App) Rendition(ctx context.Context, token, slug string, noteNumber, attachmentNumber int64) ([]byte, error) {
	_, sp, err := a.reader(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	return a.images.Rendition(sp.Slug, noteNumber, attachmentNumber)
}

// ConvertAttachmentImage converts a bound image attachment to WebP on demand.
func (a *App) ConvertAttachmentImage(ctx context.Context, token, slug string, noteNumber *int64, number int64, options string) ([]byte, error) {
	_, sp, err := a.reader(ctx, token, slug)
	if err != nil {
		return nil, err
	}
	opts, err := image.ParseOptions(options)
	if err != nil {
		return nil, err
	}
	return a.images.ConvertAttachment(ctx, sp.Slug, noteNumber, number, opts)
}

// Export / import.

// ExportSpace snapshots a space. Admin only.
func (a *App) ExportSpace(ctx context.Context, token, slug string, includeData bool) (*export.Record, error) {
	if err := a.admin(ctx, token); err != nil {
		return nil, err
	}
	return a.export.Export(ctx, slug, includeData)
}

// ImportSpace replays an exported record into a free slug. Admin only.
func (a *App) ImportSpace(ctx context.Context, token string, rec *export.Record) error {
	if err := a.admin(ctx, token); err != nil {
		return err
	}
	return a.export.Import(ctx, rec)
}

// Guard helpers. Each resolves the caller and applies exactly one check.

func (a *App) admin(ctx context.Context, token string) error {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return err
	}
	return access.Admin(caller)
}

func (a *App) member(ctx context.Context, token, slug string) (*types.User, *types.Space, error) {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	sp, err := a.spaces.Get(slug)
	if err != nil {
		return nil, nil, err
	}
	if err := access.SpaceMember(caller, sp); err != nil {
		return nil, nil, err
	}
	return caller, sp, nil
}

func (a *App) reader(ctx context.Context, token, slug string) (*types.User, *types.Space, error) {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	sp, err := a.spaces.Get(slug)
	if err != nil {
		return nil, nil, err
	}
	if err := access.SpaceReader(caller, sp); err != nil {
		return nil, nil, err
	}
	return caller, sp, nil
}

func (a *App) pendingOwner(ctx context.Context, token string, number int64) (*types.User, *types.PendingAttachment, error) {
	caller, err := a.sessions.AuthenticatedUser(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	pending, err := a.attachments.GetPending(ctx, number)
	if err != nil {
		return nil, nil, err
	}
	if err := access.PendingAttachmentOwner(caller, pending); err != nil {
		return nil, nil, err
	}
	return caller, pending, nil
}
