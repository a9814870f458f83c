package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS bookings (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL DEFAULT 'pending',
    collection_name      TEXT NOT NULL DEFAULT '',
    collection_address   TEXT NOT NULL DEFAULT '',
    collection_street    TEXT NOT NULL DEFAULT '',
    collection_city      TEXT NOT NULL DEFAULT '',
    collection_town      TEXT NOT NULL DEFAULT '',
    collection_county    TEXT NOT NULL DEFAULT '',
    collection_building  TEXT NOT NULL DEFAULT '',
    collection_postcode  TEXT NOT NULL DEFAULT '',
    delivery_name        TEXT NOT NULL DEFAULT '',
    delivery_address     TEXT NOT NULL DEFAULT '',
    delivery_street      TEXT NOT NULL DEFAULT '',
    delivery_city        TEXT NOT NULL DEFAULT '',
    delivery_town        TEXT NOT NULL DEFAULT '',
    delivery_county      TEXT NOT NULL DEFAULT '',
    delivery_building    TEXT NOT NULL DEFAULT '',
    delivery_postcode    TEXT NOT NULL DEFAULT '',
    collection_at        TEXT NOT NULL,
    urgent               INTEGER NOT NULL DEFAULT 0,
    vehicle_type         TEXT NOT NULL DEFAULT 'van',
    base_price           REAL NOT NULL DEFAULT 0,
    vat                  REAL NOT NULL DEFAULT 0,
    total_price          REAL NOT NULL DEFAULT 0,
    contact_email        TEXT NOT NULL DEFAULT '',
    contact_phone        TEXT NOT NULL DEFAULT '',
    additional_info      TEXT NOT NULL DEFAULT '',
    outsourced_to        TEXT NOT NULL DEFAULT '',
    outsourced_email     TEXT NOT NULL DEFAULT '',
    outsourced_phone     TEXT NOT NULL DEFAULT '',
    outsourced_notes     TEXT NOT NULL DEFAULT '',
    outsourced_at        TEXT,
    decline_reason       TEXT NOT NULL DEFAULT '',
    declined_at          TEXT,
    modifiable_until     TEXT NOT NULL,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL,
    version              INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id);
CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);
CREATE INDEX IF NOT EXISTS idx_bookings_updated ON bookings(updated_at);

CREATE TABLE IF NOT EXISTS booking_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    booking_id  TEXT NOT NULL,
    old_status  TEXT NOT NULL DEFAULT '',
    new_status  TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_booking_history_booking ON booking_history(booking_id);

CREATE TABLE IF NOT EXISTS users (
    id                  TEXT PRIMARY KEY,
    email               TEXT NOT NULL UNIQUE,
    name                TEXT NOT NULL DEFAULT '',
    company             TEXT NOT NULL DEFAULT '',
    phone               TEXT NOT NULL DEFAULT '',
    password_hash       TEXT NOT NULL,
    role                TEXT NOT NULL DEFAULT 'customer',
    perm_view_customers  INTEGER NOT NULL DEFAULT 0,
    perm_manage_bookings INTEGER NOT NULL DEFAULT 0,
    perm_view_pricing    INTEGER NOT NULL DEFAULT 0,
    perm_manage_pricing  INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

CREATE TABLE IF NOT EXISTS settings (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    payload     BLOB NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    node_id     TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    last_error  TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    sent_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
`
