package sqlite

// schemaSQL is the complete database schema. Every statement is idempotent;
// New runs the whole block on every open.
//
// Counters use note_number 0 as the "no note" scope because UNIQUE treats
// NULLs as distinct. Attachments keep a real NULL for space-scoped rows and
// enforce uniqueness through an expression index instead.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
    username      TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    auth_token TEXT PRIMARY KEY,
    username   TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_username ON sessions(username);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

CREATE TABLE IF NOT EXISTS spaces (
    slug TEXT PRIMARY KEY,
    doc  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS counters (
    kind        TEXT NOT NULL,
    space_slug  TEXT NOT NULL,
    note_number INTEGER NOT NULL DEFAULT 0,
    seq         INTEGER NOT NULL,
    PRIMARY KEY (kind, space_slug, note_number)
);

CREATE TABLE IF NOT EXISTS notes (
    space_slug   TEXT NOT NULL,
    number       INTEGER NOT NULL,
    author       TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    edited_at    TEXT,
    commented_at TEXT,
    activity_at  TEXT NOT NULL,
    fields       TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (space_slug, number)
);
CREATE INDEX IF NOT EXISTS idx_notes_activity ON notes(space_slug, activity_at DESC);
CREATE INDEX IF NOT EXISTS idx_notes_created ON notes(space_slug, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notes_author ON notes(author);

CREATE TABLE IF NOT EXISTS comments (
    space_slug    TEXT NOT NULL,
    note_number   INTEGER NOT NULL,
    number        INTEGER NOT NULL,
    author        TEXT NOT NULL,
    content       TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    edited_at     TEXT,
    parent_number INTEGER,
    PRIMARY KEY (space_slug, note_number, number)
);
CREATE INDEX IF NOT EXISTS idx_comments_author ON comments(author);

CREATE TABLE IF NOT EXISTS pending_attachments (
    space_slug TEXT NOT NULL,
    number     INTEGER NOT NULL,
    author     TEXT NOT NULL,
    filename   TEXT NOT NULL,
    size       INTEGER NOT NULL,
    mime_type  TEXT NOT NULL,
    meta       TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    PRIMARY KEY (space_slug, number)
);

CREATE TABLE IF NOT EXISTS attachments (
    space_slug  TEXT NOT NULL,
    note_number INTEGER,
    number      INTEGER NOT NULL,
    author      TEXT NOT NULL,
    filename    TEXT NOT NULL,
    size        INTEGER NOT NULL,
    mime_type   TEXT NOT NULL,
    meta        TEXT NOT NULL DEFAULT '{}',
    created_at  TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_attachments_scope
    ON attachments(space_slug, IFNULL(note_number, 0), number);

CREATE TABLE IF NOT EXISTS telegram_tasks (
    number       INTEGER PRIMARY KEY,
    task_type    TEXT NOT NULL,
    channel_id   TEXT NOT NULL,
    space_slug   TEXT NOT NULL,
    note_number  INTEGER NOT NULL,
    payload      TEXT NOT NULL DEFAULT '{}',
    status       TEXT NOT NULL DEFAULT 'pending',
    created_at   TEXT NOT NULL,
    attempted_at TEXT,
    retries      INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_telegram_tasks_pending ON telegram_tasks(status, number);
CREATE INDEX IF NOT EXISTS idx_telegram_tasks_note ON telegram_tasks(space_slug, note_number);

CREATE TABLE IF NOT EXISTS telegram_mirrors (
    space_slug     TEXT NOT NULL,
    note_number    INTEGER NOT NULL,
    channel_id     TEXT NOT NULL,
    message_id     INTEGER NOT NULL,
    message_format TEXT NOT NULL,
    created_at     TEXT NOT NULL,
    updated_at     TEXT,
    PRIMARY KEY (space_slug, note_number)
);
`
