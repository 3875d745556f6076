package store

// schema contains the SQL statements to create the SQLBridge database schema.
const schema = `
-- Tables parsed from the entities dump
CREATE TABLE IF NOT EXISTS db_tables (
    name   TEXT PRIMARY KEY,
    script TEXT NOT NULL
);

-- Columns of each table, in declaration order
CREATE TABLE IF NOT EXISTS columns (
    table_name TEXT NOT NULL,
    position   INTEGER NOT NULL,
    name       TEXT NOT NULL,
    type       TEXT NOT NULL,
    length     REAL,
    comment    TEXT,
    PRIMARY KEY (table_name, name),
    FOREIGN KEY (table_name) REFERENCES db_tables(name)
);

CREATE INDEX IF NOT EXISTS idx_columns_type ON columns(type);

-- Index and trigger blocks attached to a table
CREATE TABLE IF NOT EXISTS table_blocks (
    table_name TEXT NOT NULL,
    block_type TEXT NOT NULL,
    position   INTEGER NOT NULL,
    body       TEXT NOT NULL,
    PRIMARY KEY (table_name, block_type, position),
    FOREIGN KEY (table_name) REFERENCES db_tables(name)
);

-- Views are kept as opaque text
CREATE TABLE IF NOT EXISTS views (
    name TEXT PRIMARY KEY,
    body TEXT NOT NULL
);

-- Package source files
CREATE TABLE IF NOT EXISTS packages (
    name TEXT PRIMARY KEY,
    path TEXT
);

-- Procedures and functions
CREATE TABLE IF NOT EXISTS routines (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    package  TEXT NOT NULL,
    name     TEXT NOT NULL,
    kind     TEXT NOT NULL,
    position INTEGER NOT NULL,
    body     TEXT NOT NULL,
    FOREIGN KEY (package) REFERENCES packages(name)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_routines_unique ON routines(package, name);
CREATE INDEX IF NOT EXISTS idx_routines_name ON routines(name);

-- Calls made by routines: raw expressions and resolved internal/external targets
CREATE TABLE IF NOT EXISTS call_edges (
    routine_id     INTEGER NOT NULL,
    call_kind      TEXT NOT NULL,
    position       INTEGER NOT NULL,
    target         TEXT NOT NULL,
    target_package TEXT,
    target_name    TEXT,
    PRIMARY KEY (routine_id, call_kind, position),
    FOREIGN KEY (routine_id) REFERENCES routines(id)
);

CREATE INDEX IF NOT EXISTS idx_call_edges_target ON call_edges(target_package, target_name);
CREATE INDEX IF NOT EXISTS idx_call_edges_kind ON call_edges(call_kind);

-- Tables touched by routines, per statement kind
CREATE TABLE IF NOT EXISTS table_refs (
    routine_id INTEGER NOT NULL,
    table_name TEXT NOT NULL,
    statement  TEXT NOT NULL,
    PRIMARY KEY (routine_id, table_name, statement),
    FOREIGN KEY (routine_id) REFERENCES routines(id)
);

CREATE INDEX IF NOT EXISTS idx_table_refs_table ON table_refs(table_name);

-- Blocks that could not be parsed
CREATE TABLE IF NOT EXISTS block_errors (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    block_type TEXT,
    name       TEXT,
    message    TEXT NOT NULL
);

-- Metadata table for index info
CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT
);
`
