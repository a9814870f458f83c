package store

import (
	"time"
)

// Outbox message kinds.
const (
	OutboxEvent  = "event"
	OutboxMirror = "mirror"
)

type OutboxMessage struct {
	ID        int64
	Topic     string
	Payload   []byte
	MsgType   string
	NodeID    string
	Retries   int
	LastError string
	CreatedAt time.Time
	SentAt    *time.Time
}

func (db *DB) EnqueueOutbox(topic string, payload []byte, msgType, nodeID string) error {
	_, err := db.Exec(db.Q(`INSERT INTO outbox (topic, payload, msg_type, node_id, created_at) VALUES (?, ?, ?, ?, ?)`),
		topic, payload, msgType, nodeID, db.timeArg(time.Now()))
	return err
}

// ListPendingOutbox returns unsent messages that have failed fewer than maxRetries times.
func (db *DB) ListPendingOutbox(limit, maxRetries int) ([]*OutboxMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, topic, payload, msg_type, node_id, retries, last_error, created_at FROM outbox WHERE sent_at IS NULL AND retries < ? ORDER BY id LIMIT ?`), maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.MsgType, &m.NodeID, &m.Retries, &m.LastError, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at=? WHERE id=?`), db.timeArg(time.Now()), id)
	return err
}

// FailOutbox counts a failed delivery attempt and keeps the last error.
func (db *DB) FailOutbox(id int64, reason string) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET retries=retries+1, last_error=? WHERE id=?`), reason, id)
	return err
}

// CountOutbox reports unsent messages still eligible for delivery and those
// that have exhausted their retries.
func (db *DB) CountOutbox(maxRetries int) (pending, dead int, err error) {
	err = db.QueryRow(db.Q(`SELECT
		COALESCE(SUM(CASE WHEN retries < ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN retries >= ? THEN 1 ELSE 0 END), 0)
		FROM outbox WHERE sent_at IS NULL`), maxRetries, maxRetries).Scan(&pending, &dead)
	return pending, dead, err
}
