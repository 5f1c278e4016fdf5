package repository

// Schema definitions for the Sentinel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    sender_account TEXT NOT NULL,
    receiver_account TEXT NOT NULL,
    type TEXT NOT NULL,
    channel TEXT NOT NULL,
    device_id TEXT NOT NULL DEFAULT '',
    ip_address TEXT NOT NULL DEFAULT '',
    geo TEXT,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(sender_account);
CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions(receiver_account);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
`

// schemaAssessments keys assessments by transaction id. The primary key is
// what makes SaveAssessment insert-if-absent: a second writer for the same
// transaction conflicts and is reported as a duplicate, never overwrites.
const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    transaction_id TEXT PRIMARY KEY,
    score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    decision TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    model_version TEXT NOT NULL DEFAULT '',
    factors TEXT,
    sub_scores TEXT,
    fired_rules TEXT,
    flags TEXT,
    degraded INTEGER NOT NULL DEFAULT 0,
    unscored INTEGER NOT NULL DEFAULT 0,
    excluded_models TEXT,
    missing_lookups TEXT,
    fallback_reason TEXT NOT NULL DEFAULT '',
    forced_by TEXT NOT NULL DEFAULT '',
    processing_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_risk ON assessments(risk_level);
CREATE INDEX IF NOT EXISTS idx_assessments_decision ON assessments(decision);
CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments(created_at);
`

// schemaAlerts enforces at-most-one alert per transaction with a unique
// index, mirroring the assessment dedupe.
const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL UNIQUE,
    risk_level TEXT NOT NULL,
    message TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'PENDING',
    created_at TIMESTAMP NOT NULL,
    reviewed_by TEXT NOT NULL DEFAULT '',
    resolved_at TIMESTAMP,
    notes TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
`

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    forces INTEGER NOT NULL DEFAULT 0,
    forced_decision TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_enabled ON rules(enabled);
`

// schemaProfiles stores behavioral aggregates as one JSON document per
// account. Profiles are read whole by the feature extractor and written
// whole by the profile updater, so there is nothing to query by column.
const schemaProfiles = `
CREATE TABLE IF NOT EXISTS account_profiles (
    account_id TEXT PRIMARY KEY,
    profile TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAssessments,
		schemaAlerts,
		schemaRules,
		schemaProfiles,
	}
}
