package postgres

// schema creates the chat tables. The clients and lawyers tables belong to the
// account service and are only read here.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id               TEXT PRIMARY KEY,
	client_id        TEXT NOT NULL,
	lawyer_id        TEXT NOT NULL,
	client_name      TEXT NOT NULL DEFAULT '',
	lawyer_name      TEXT NOT NULL DEFAULT '',
	last_message     TEXT,
	last_message_at  TIMESTAMPTZ,
	unread_by_client INTEGER NOT NULL DEFAULT 0 CHECK (unread_by_client >= 0),
	unread_by_lawyer INTEGER NOT NULL DEFAULT 0 CHECK (unread_by_lawyer >= 0),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT conversations_pair_key UNIQUE (client_id, lawyer_id)
);

CREATE INDEX IF NOT EXISTS conversations_lawyer_idx ON conversations (lawyer_id, last_message_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT NOT NULL UNIQUE,
	conversation_id TEXT NOT NULL REFERENCES conversations (id),
	sender_id       TEXT NOT NULL,
	sender_role     TEXT NOT NULL,
	sender_name     TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL,
	timestamp       TIMESTAMPTZ NOT NULL,
	read            BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, timestamp, seq);
`
