// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/securepay-ai/sentinel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate is returned by the insert-if-absent writes (assessments,
	// alerts) when a row for the transaction already exists. Callers treat it
	// as "read back what the winner wrote", not as a failure.
	ErrDuplicate = errors.New("record already exists")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeSecs > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSecs) * time.Second)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores the immutable ingress record. Re-saving the same
// transaction id is a no-op so replays and resubmissions are harmless.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.TransactionRequest) error {
	if tx.TransactionID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	var geo any
	if tx.Geo != nil {
		blob, _ := json.Marshal(tx.Geo)
		geo = string(blob)
	}

	query := `
		INSERT INTO transactions (
			id, amount, currency, sender_account, receiver_account,
			type, channel, device_id, ip_address, geo, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.TransactionID, tx.Amount, tx.Currency,
		tx.SenderAccount, tx.ReceiverAccount,
		string(tx.Type), string(tx.Channel),
		tx.DeviceID, tx.IPAddress,
		geo, string(metadata), tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.TransactionRequest, error) {
	query := `
		SELECT id, amount, currency, sender_account, receiver_account,
			   type, channel, device_id, ip_address, geo, metadata, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.TransactionRequest
	var geo sql.NullString
	var metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.TransactionID, &tx.Amount, &tx.Currency,
		&tx.SenderAccount, &tx.ReceiverAccount,
		&tx.Type, &tx.Channel,
		&tx.DeviceID, &tx.IPAddress,
		&geo, &metadata, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if geo.Valid && geo.String != "" {
		var g domain.Geo
		if json.Unmarshal([]byte(geo.String), &g) == nil {
			tx.Geo = &g
		}
	}
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &tx.Metadata)
	}

	return &tx, nil
}

const assessmentColumns = `a.transaction_id, a.score, a.risk_level, a.decision, a.reason,
	   a.confidence, a.model_version, a.factors, a.sub_scores, a.fired_rules,
	   a.flags, a.degraded, a.unscored, a.excluded_models, a.missing_lookups,
	   a.fallback_reason, a.forced_by, a.processing_ms, a.created_at`

// SaveAssessment stores an assessment, insert-if-absent on transaction id.
// Returns ErrDuplicate when an assessment for the transaction already exists;
// the existing row is never modified.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.FraudAssessment) error {
	if a.TransactionID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	factors, _ := json.Marshal(a.Factors)
	subScores, _ := json.Marshal(a.SubScores)
	firedRules, _ := json.Marshal(a.FiredRules)
	flags, _ := json.Marshal(a.Flags)
	excluded, _ := json.Marshal(a.ExcludedModels)
	missing, _ := json.Marshal(a.MissingLookups)

	degraded := 0
	if a.Degraded {
		degraded = 1
	}
	unscored := 0
	if a.Unscored {
		unscored = 1
	}

	query := `
		INSERT INTO assessments (
			transaction_id, score, risk_level, decision, reason,
			confidence, model_version, factors, sub_scores, fired_rules,
			flags, degraded, unscored, excluded_models, missing_lookups,
			fallback_reason, forced_by, processing_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		a.TransactionID, a.Score, string(a.RiskLevel), string(a.Decision), a.Reason,
		a.Confidence, a.ModelVersion, string(factors), string(subScores), string(firedRules),
		string(flags), degraded, unscored, string(excluded), string(missing),
		a.FallbackReason, a.ForcedBy, a.ProcessingMs, a.CreatedAt,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetAssessment retrieves an assessment by transaction ID.
func (r *SQLRepository) GetAssessment(ctx context.Context, txID string) (*domain.FraudAssessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments a WHERE a.transaction_id = ?`

	a, err := scanAssessment(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAssessments returns a filtered, paginated page of assessments plus the
// total match count. Amount and search filters reach into the transactions
// table, which the pipeline always writes before the assessment.
func (r *SQLRepository) ListAssessments(ctx context.Context, f domain.AssessmentFilter) ([]*domain.FraudAssessment, int, error) {
	var conds []string
	var args []any

	if f.RiskLevel != "" {
		conds = append(conds, "a.risk_level = ?")
		args = append(args, string(f.RiskLevel))
	}
	if f.Decision != "" {
		conds = append(conds, "a.decision = ?")
		args = append(args, string(f.Decision))
	}
	if f.MinAmount != nil {
		conds = append(conds, "t.amount >= ?")
		args = append(args, *f.MinAmount)
	}
	if f.MaxAmount != nil {
		conds = append(conds, "t.amount <= ?")
		args = append(args, *f.MaxAmount)
	}
	if f.StartDate != nil {
		conds = append(conds, "a.created_at >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		conds = append(conds, "a.created_at < ?")
		args = append(args, *f.EndDate)
	}
	if f.Search != "" {
		conds = append(conds, "(a.transaction_id LIKE ? OR t.sender_account LIKE ? OR t.receiver_account LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	from := ` FROM assessments a LEFT JOIN transactions t ON t.id = a.transaction_id`
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*)` + from + where
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(f.Page, f.PageSize)
	query := `SELECT ` + assessmentColumns + from + where +
		` ORDER BY a.created_at DESC LIMIT ? OFFSET ?`
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var assessments []*domain.FraudAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		assessments = append(assessments, a)
	}

	return assessments, total, rows.Err()
}

const alertColumns = `id, transaction_id, risk_level, message, status,
	   created_at, reviewed_by, resolved_at, notes`

// SaveAlert stores an alert, deduplicated on transaction id. Returns
// ErrDuplicate when the transaction already has an alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.ID == "" || alert.TransactionID == "" {
		return fmt.Errorf("%w: alert id and transaction id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (
			id, transaction_id, risk_level, message, status,
			created_at, reviewed_by, resolved_at, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.TransactionID, string(alert.RiskLevel), alert.Message, string(alert.Status),
		alert.CreatedAt, alert.ReviewedBy, alert.ResolvedAt, alert.Notes,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetAlert retrieves an alert by its own ID.
func (r *SQLRepository) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// GetAlertByTransaction retrieves the alert raised for a transaction.
func (r *SQLRepository) GetAlertByTransaction(ctx context.Context, txID string) (*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE transaction_id = ?`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// ListAlerts returns a filtered, paginated page of alerts plus the total.
func (r *SQLRepository) ListAlerts(ctx context.Context, f domain.AlertFilter) ([]*domain.Alert, int, error) {
	var conds []string
	var args []any

	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.RiskLevel != "" {
		conds = append(conds, "risk_level = ?")
		args = append(args, string(f.RiskLevel))
	}
	if f.StartDate != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, *f.EndDate)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM alerts` + where
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(f.Page, f.PageSize)
	query := `SELECT ` + alertColumns + ` FROM alerts` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, total, rows.Err()
}

// UpdateAlert persists a review-workflow state change.
func (r *SQLRepository) UpdateAlert(ctx context.Context, alert *domain.Alert) error {
	query := `
		UPDATE alerts
		SET status = ?, reviewed_by = ?, resolved_at = ?, notes = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(alert.Status), alert.ReviewedBy, alert.ResolvedAt, alert.Notes, alert.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRule stores a rule definition, upserting on rule id.
func (r *SQLRepository) SaveRule(ctx context.Context, rule *domain.Rule) error {
	if err := rule.ValidateConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	forces := 0
	if rule.Forces {
		forces = 1
	}
	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO rules (
			id, name, description, expression, forces, forced_decision, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			forces = excluded.forces,
			forced_decision = excluded.forced_decision,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		forces, string(rule.ForcedDecision), enabled,
		createdAt, now,
	)
	return err
}

// GetRule retrieves a rule by ID, enabled or not.
func (r *SQLRepository) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	query := `
		SELECT id, name, description, expression, forces, forced_decision, enabled, created_at, updated_at
		FROM rules
		WHERE id = ?
	`

	var rule domain.Rule
	var forces, enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
		&forces, &rule.ForcedDecision, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Forces = forces == 1
	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListRules retrieves rule definitions, optionally only enabled ones.
func (r *SQLRepository) ListRules(ctx context.Context, enabledOnly bool) ([]*domain.Rule, error) {
	query := `
		SELECT id, name, description, expression, forces, forced_decision, enabled, created_at, updated_at
		FROM rules
	`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		var rule domain.Rule
		var forces, enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
			&forces, &rule.ForcedDecision, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Forces = forces == 1
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteRule removes a rule definition.
func (r *SQLRepository) DeleteRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM rules WHERE id = ?`), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAccountProfile retrieves the behavioral profile for an account.
// Returns ErrNotFound for an account with no history; the feature extractor
// maps that to cold-start defaults.
func (r *SQLRepository) GetAccountProfile(ctx context.Context, accountID string) (*domain.AccountProfile, error) {
	query := `SELECT profile FROM account_profiles WHERE account_id = ?`

	var blob string
	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var p domain.AccountProfile
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile for %s: %w", accountID, err)
	}

	return &p, nil
}

// SaveAccountProfile upserts the behavioral profile for an account.
func (r *SQLRepository) SaveAccountProfile(ctx context.Context, p *domain.AccountProfile) error {
	if p.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	blob, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	query := `
		INSERT INTO account_profiles (account_id, profile, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			profile = excluded.profile,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), p.AccountID, string(blob), time.Now().UTC())
	return err
}

// GetDashboardStats aggregates assessments and alerts over the period window.
func (r *SQLRepository) GetDashboardStats(ctx context.Context, period domain.Period) (*domain.DashboardStats, error) {
	now := time.Now().UTC()
	from, to := period.Window(now)

	stats := &domain.DashboardStats{Period: period, GeneratedAt: now}

	query := `
		SELECT COUNT(*),
			   COALESCE(AVG(score), 0),
			   COALESCE(SUM(CASE WHEN decision = 'REJECT' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN decision = 'REVIEW' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN decision = 'APPROVE' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(degraded), 0)
		FROM assessments
		WHERE created_at >= ? AND created_at < ?
	`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), from, to).Scan(
		&stats.TotalTransactions, &stats.AvgScore, &stats.FraudDetected,
		&stats.ReviewCount, &stats.ApproveCount, &stats.DegradedCount,
	); err != nil {
		return nil, err
	}

	query = `
		SELECT COALESCE(SUM(t.amount), 0)
		FROM assessments a
		JOIN transactions t ON t.id = a.transaction_id
		WHERE a.decision = 'REJECT' AND a.created_at >= ? AND a.created_at < ?
	`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), from, to).Scan(&stats.FraudPrevented); err != nil {
		return nil, err
	}

	query = `
		SELECT COALESCE(SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN status = 'ACKNOWLEDGED' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN status = 'RESOLVED' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN status = 'DISMISSED' THEN 1 ELSE 0 END), 0)
		FROM alerts
		WHERE created_at >= ? AND created_at < ?
	`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), from, to).Scan(
		&stats.AlertsPending, &stats.AlertsAcknowledged,
		&stats.AlertsResolved, &stats.AlertsDismissed,
	); err != nil {
		return nil, err
	}

	return stats, nil
}

// GetRiskDistribution counts assessments per risk level over the period.
// Every level appears in the result, zero or not.
func (r *SQLRepository) GetRiskDistribution(ctx context.Context, period domain.Period) (*domain.RiskDistribution, error) {
	now := time.Now().UTC()
	from, to := period.Window(now)

	dist := &domain.RiskDistribution{
		Period:      period,
		Counts:      make(map[domain.RiskLevel]int64, len(domain.RiskLevels)),
		Percentages: make(map[domain.RiskLevel]float64, len(domain.RiskLevels)),
		GeneratedAt: now,
	}
	for _, level := range domain.RiskLevels {
		dist.Counts[level] = 0
		dist.Percentages[level] = 0
	}

	query := `
		SELECT risk_level, COUNT(*)
		FROM assessments
		WHERE created_at >= ? AND created_at < ?
		GROUP BY risk_level
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		dist.Counts[domain.RiskLevel(level)] = count
		dist.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if dist.Total > 0 {
		for level, count := range dist.Counts {
			dist.Percentages[level] = float64(count) / float64(dist.Total) * 100
		}
	}

	return dist, nil
}

// GetTrends returns the daily assessment series for the last N days, today
// included. Days with no traffic appear as zero points.
func (r *SQLRepository) GetTrends(ctx context.Context, days int) (*domain.TrendData, error) {
	if days <= 0 {
		days = 7
	}

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

	dateExpr := `strftime('%Y-%m-%d', created_at)`
	if r.driver == "postgres" {
		dateExpr = `to_char(created_at, 'YYYY-MM-DD')`
	}

	query := `
		SELECT ` + dateExpr + ` AS day,
			   COUNT(*),
			   COALESCE(SUM(CASE WHEN decision = 'REJECT' THEN 1 ELSE 0 END), 0),
			   COALESCE(AVG(score), 0)
		FROM assessments
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDate := make(map[string]domain.TrendPoint, days)
	for rows.Next() {
		var p domain.TrendPoint
		if err := rows.Scan(&p.Date, &p.Transactions, &p.Frauds, &p.AvgScore); err != nil {
			return nil, err
		}
		byDate[p.Date] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trend := &domain.TrendData{Days: days, GeneratedAt: now}
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		if p, ok := byDate[date]; ok {
			trend.Points = append(trend.Points, p)
		} else {
			trend.Points = append(trend.Points, domain.TrendPoint{Date: date})
		}
	}

	return trend, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*domain.FraudAssessment, error) {
	var a domain.FraudAssessment
	var factors, subScores, firedRules, flags, excluded, missing sql.NullString
	var degraded, unscored int

	err := row.Scan(
		&a.TransactionID, &a.Score, &a.RiskLevel, &a.Decision, &a.Reason,
		&a.Confidence, &a.ModelVersion, &factors, &subScores, &firedRules,
		&flags, &degraded, &unscored, &excluded, &missing,
		&a.FallbackReason, &a.ForcedBy, &a.ProcessingMs, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Degraded = degraded == 1
	a.Unscored = unscored == 1
	json.Unmarshal([]byte(factors.String), &a.Factors)
	json.Unmarshal([]byte(subScores.String), &a.SubScores)
	json.Unmarshal([]byte(firedRules.String), &a.FiredRules)
	json.Unmarshal([]byte(flags.String), &a.Flags)
	json.Unmarshal([]byte(excluded.String), &a.ExcludedModels)
	json.Unmarshal([]byte(missing.String), &a.MissingLookups)

	return &a, nil
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var alert domain.Alert
	var resolvedAt sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.TransactionID, &alert.RiskLevel, &alert.Message, &alert.Status,
		&alert.CreatedAt, &alert.ReviewedBy, &resolvedAt, &alert.Notes,
	)
	if err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		alert.ResolvedAt = &t
	}

	return &alert, nil
}

// normalizePage clamps pagination to sane bounds: page >= 1, size in [1,100],
// defaulting to 20.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
