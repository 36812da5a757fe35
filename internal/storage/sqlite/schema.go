package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS albums (
    id           TEXT PRIMARY KEY,
    user_id      INTEGER NOT NULL,
    access_token TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'active',
    created_at   TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    expires_at   TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_albums_user_status ON albums (user_id, status);
CREATE INDEX IF NOT EXISTS idx_albums_expires ON albums (status, expires_at);

CREATE TABLE IF NOT EXISTS media_groups (
    id         TEXT PRIMARY KEY,
    album_id   TEXT NOT NULL REFERENCES albums (id) ON DELETE CASCADE,
    sequence   INTEGER NOT NULL,
    caption    TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    UNIQUE (album_id, sequence)
);

CREATE TABLE IF NOT EXISTS media_items (
    id         TEXT PRIMARY KEY,
    group_id   TEXT NOT NULL REFERENCES media_groups (id) ON DELETE CASCADE,
    reference  TEXT NOT NULL,
    kind       TEXT NOT NULL,
    caption    TEXT NOT NULL DEFAULT '',
    position   INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (group_id, position)
);

CREATE TABLE IF NOT EXISTS pending_media (
    id          TEXT PRIMARY KEY,
    album_id    TEXT NOT NULL REFERENCES albums (id) ON DELETE CASCADE,
    user_id     INTEGER NOT NULL,
    reference   TEXT NOT NULL,
    kind        TEXT NOT NULL,
    caption     TEXT NOT NULL DEFAULT '',
    burst_key   TEXT NOT NULL DEFAULT '',
    enqueued_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_album ON pending_media (album_id, enqueued_at);

CREATE TABLE IF NOT EXISTS user_authorizations (
    id            TEXT PRIMARY KEY,
    user_id       INTEGER NOT NULL UNIQUE,
    plan          TEXT NOT NULL,
    granted_at    TIMESTAMP NOT NULL,
    expires_at    TIMESTAMP NOT NULL,
    reminder_sent INTEGER NOT NULL DEFAULT 0
);
`
