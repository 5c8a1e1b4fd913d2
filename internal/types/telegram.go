package types

import "time"

// TelegramTaskType names the kinds of deferred messenger work.
type TelegramTaskType string

const (
	TaskActivityNoteCreated    TelegramTaskType = "activity_note_created"
	TaskActivityNoteUpdated    TelegramTaskType = "activity_note_updated"
	TaskActivityCommentCreated TelegramTaskType = "activity_comment_created"
	TaskMirrorCreate           TelegramTaskType = "mirror_create"
	TaskMirrorUpdate           TelegramTaskType = "mirror_update"
)

// TelegramTaskStatus is the lifecycle state of a queued task.
type TelegramTaskStatus string

const (
	TaskPending   TelegramTaskStatus = "pending"
	TaskCompleted TelegramTaskStatus = "completed"
	TaskFailed    TelegramTaskStatus = "failed"
)

// TelegramTask is one durable unit of messenger work. Tasks are processed
// globally oldest-first; a task permanently fails after exhausting retries.
type TelegramTask struct {
	Number      int64              `json:"number"`
	TaskType    TelegramTaskType   `json:"task_type"`
	ChannelID   string             `json:"channel_id"`
	SpaceSlug   string             `json:"space_slug"`
	NoteNumber  int64              `json:"note_number"`
	Payload     map[string]any     `json:"payload,omitempty"`
	Status      TelegramTaskStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	AttemptedAt *time.Time         `json:"attempted_at,omitempty"`
	Retries     int                `json:"retries"`
	Error       string             `json:"error,omitempty"`
}

// MessageFormat distinguishes plain text mirrors from photo mirrors.
type MessageFormat string

const (
	MessageText  MessageFormat = "text"
	MessagePhoto MessageFormat = "photo"
)

// TelegramMirror links a note to its mirror message in a channel. At most one
// mirror exists per (space, note).
type TelegramMirror struct {
	SpaceSlug     string        `json:"space_slug"`
	NoteNumber    int64         `json:"note_number"`
	ChannelID     string        `json:"channel_id"`
	MessageID     int64         `json:"message_id"`
	MessageFormat MessageFormat `json:"message_format"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     *time.Time    `json:"updated_at,omitempty"`
}
