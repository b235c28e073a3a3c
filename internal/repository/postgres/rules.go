package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/iklanku/adpilot/internal/domain"
	"github.com/iklanku/adpilot/internal/pkg/metrics"
)

// RulesRepo loads automation rules and records per-rule health.
type RulesRepo struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

// NewRulesRepo creates a Postgres-backed rules repository.
func NewRulesRepo(db *sql.DB, m *metrics.Metrics) *RulesRepo {
	return &RulesRepo{db: db, metrics: m}
}

const ruleColumns = `
	id, user_id, name, COALESCE(category,''), conditions, actions,
	COALESCE(campaign_assignments,'{}'), status, error_count, success_rate,
	created_at, updated_at`

// ListActive returns all rules in active status with their condition, action
// and assignment blobs parsed. A rule whose blobs fail to parse is logged and
// skipped; one malformed rule must not take down the whole tick.
func (r *RulesRepo) ListActive(ctx context.Context) ([]domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+ruleColumns+`
		FROM automation_rules
		WHERE status = 'active'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			log.Printf("[rules] skipping unparseable rule: %v", err)
			if r.metrics != nil {
				r.metrics.RuleParseErrorsTotal.Inc()
			}
			continue
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// Get returns one rule by ID, parse errors included, so the detail endpoint
// can report a broken rule rather than hide it.
func (r *RulesRepo) Get(ctx context.Context, ruleID string) (*domain.Rule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT`+ruleColumns+`
		FROM automation_rules
		WHERE id = $1
	`, ruleID)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (domain.Rule, error) {
	var rule domain.Rule
	var conditions, actions, assignments []byte

	err := row.Scan(
		&rule.ID, &rule.UserID, &rule.Name, &rule.Category,
		&conditions, &actions, &assignments,
		&rule.Status, &rule.ErrorCount, &rule.SuccessRate,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return rule, err
	}
	if err != nil {
		return rule, fmt.Errorf("scan rule: %w", err)
	}

	if rule.Conditions, err = domain.ParseConditions(conditions); err != nil {
		return rule, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	if rule.Actions, err = domain.ParseActions(actions); err != nil {
		return rule, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	if rule.Assignments, err = domain.ParseAssignments(assignments); err != nil {
		return rule, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	return rule, nil
}

// RecordOutcome folds one tick's attempt counts into the rule's health
// columns. Success rate is a running blend weighted 4:1 toward history so a
// single bad tick does not tank a long-healthy rule.
func (r *RulesRepo) RecordOutcome(ctx context.Context, ruleID string, attempts, failures int) error {
	if attempts == 0 {
		return nil
	}
	tickRate := float64(attempts-failures) / float64(attempts) * 100

	_, err := r.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET error_count = error_count + $2,
		    success_rate = ROUND((success_rate * 0.8 + $3 * 0.2)::numeric, 2),
		    updated_at = NOW()
		WHERE id = $1
	`, ruleID, failures, tickRate)
	if err != nil {
		return fmt.Errorf("record outcome for rule %s: %w", ruleID, err)
	}
	return nil
}
