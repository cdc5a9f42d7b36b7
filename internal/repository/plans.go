// Package repository provides persistence of plans, steps, resources and
// completion records on top of database/sql. The same queries run against
// PostgreSQL and SQLite; placeholders are rewritten by the configured dialect.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/learnpath/internal/db"
	"github.com/atinyakov/learnpath/internal/models"
)

const planColumns = `SELECT id, owner_id, title, description, visibility, share_token, share_expiry, created_at, is_template, category FROM plans`

const stepColumns = `SELECT s.id, s.plan_id, s.title, s.description, s.step_order
  FROM steps s JOIN plans p ON p.id = s.plan_id`

const resourceColumns = `SELECT r.id, r.step_id, r.title, r.url, r.kind
  FROM resources r JOIN steps s ON s.id = r.step_id JOIN plans p ON p.id = s.plan_id`

// PlanRepository stores plans together with their steps and resources.
type PlanRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
	// Dialect selects the placeholder format.
	Dialect db.Dialect
}

// NewPlanRepository creates a PlanRepository over the given connection.
func NewPlanRepository(conn *sql.DB, dialect db.Dialect) *PlanRepository {
	return &PlanRepository{DB: conn, Dialect: dialect}
}

// GetPlansByOwner returns the owner's non-template plans, newest first, with
// their steps and resources.
func (r *PlanRepository) GetPlansByOwner(ctx context.Context, ownerID string) ([]models.Plan, error) {
	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(planColumns+`
        WHERE owner_id = ? AND is_template = FALSE ORDER BY created_at DESC, id`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("GetPlansByOwner: %w", err)
	}
	plans, err := scanPlans(rows)
	if err != nil {
		return nil, fmt.Errorf("GetPlansByOwner: %w", err)
	}
	if len(plans) == 0 {
		return plans, nil
	}

	if err := r.attachChildren(ctx, plans, "p.owner_id = ? AND p.is_template = FALSE", ownerID); err != nil {
		return nil, fmt.Errorf("GetPlansByOwner: %w", err)
	}
	return plans, nil
}

// GetPlanByID returns a single plan. Unknown ids yield models.ErrNotFound.
func (r *PlanRepository) GetPlanByID(ctx context.Context, id string) (*models.Plan, error) {
	row := r.DB.QueryRowContext(ctx, r.Dialect.Rebind(planColumns+` WHERE id = ?`), id)
	return r.loadOne(ctx, row)
}

// GetPlanByShareToken returns the public plan or template carrying token.
// Expiry is not checked here.
func (r *PlanRepository) GetPlanByShareToken(ctx context.Context, token string) (*models.Plan, error) {
	row := r.DB.QueryRowContext(ctx, r.Dialect.Rebind(planColumns+`
        WHERE share_token = ? AND (visibility = 'public' OR is_template = TRUE)`), token)
	return r.loadOne(ctx, row)
}

// CountOwnerPlans counts the owner's non-template plans.
func (r *PlanRepository) CountOwnerPlans(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, r.Dialect.Rebind(`
        SELECT COUNT(*) FROM plans WHERE owner_id = ? AND is_template = FALSE`), ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountOwnerPlans: %w", err)
	}
	return n, nil
}

// CreatePlan writes the plan row, then its steps, then their resources in one
// transaction.
func (r *PlanRepository) CreatePlan(ctx context.Context, p *models.Plan) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.insertPlan(ctx, tx, p); err != nil {
		return err
	}
	if err := r.insertChildren(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdatePlan rewrites the plan row and replaces its whole step list.
func (r *PlanRepository) UpdatePlan(ctx context.Context, p *models.Plan) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.Dialect.Rebind(`
        UPDATE plans SET title = ?, description = ?, visibility = ?, share_token = ?, share_expiry = ?, category = ?
        WHERE id = ?`),
		p.Title, p.Description, string(p.Visibility), nullString(p.ShareToken), nullUnix(p.ShareExpiry), p.Category, p.ID)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(`
        DELETE FROM resources WHERE step_id IN (SELECT id FROM steps WHERE plan_id = ?)`), p.ID); err != nil {
		return fmt.Errorf("delete resources: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM steps WHERE plan_id = ?`), p.ID); err != nil {
		return fmt.Errorf("delete steps: %w", err)
	}
	if err := r.insertChildren(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeletePlan removes the plan and everything hanging off it: completion
// records of its steps, resources, steps and finally the plan row.
func (r *PlanRepository) DeletePlan(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cascade := []struct {
		what  string
		query string
	}{
		{"completions", `DELETE FROM completions WHERE step_id IN (SELECT id FROM steps WHERE plan_id = ?)`},
		{"resources", `DELETE FROM resources WHERE step_id IN (SELECT id FROM steps WHERE plan_id = ?)`},
		{"steps", `DELETE FROM steps WHERE plan_id = ?`},
	}
	for _, c := range cascade {
		if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(c.query), id); err != nil {
			return fmt.Errorf("delete %s: %w", c.what, err)
		}
	}

	res, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM plans WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SeedTemplates inserts the templates that are not stored yet and reports how
// many were added.
func (r *PlanRepository) SeedTemplates(ctx context.Context, templates []models.Plan) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for i := range templates {
		t := &templates[i]
		var exists int
		err := tx.QueryRowContext(ctx, r.Dialect.Rebind(`SELECT COUNT(*) FROM plans WHERE id = ?`), t.ID).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("check template %s: %w", t.ID, err)
		}
		if exists > 0 {
			continue
		}
		if err := r.insertPlan(ctx, tx, t); err != nil {
			return 0, err
		}
		if err := r.insertChildren(ctx, tx, t); err != nil {
			return 0, err
		}
		added++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return added, nil
}

// GetCompletions returns every completion record of the owner.
func (r *PlanRepository) GetCompletions(ctx context.Context, ownerID string) ([]models.CompletionRecord, error) {
	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(`
        SELECT id, owner_id, step_id, completed FROM completions WHERE owner_id = ?`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("GetCompletions: %w", err)
	}
	defer rows.Close()

	records := []models.CompletionRecord{}
	for rows.Next() {
		var rec models.CompletionRecord
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.StepID, &rec.Completed); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpsertCompletion stores the record, updating the existing one for the same
// (owner, step) pair.
func (r *PlanRepository) UpsertCompletion(ctx context.Context, rec models.CompletionRecord) error {
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(`
        INSERT INTO completions (id, owner_id, step_id, completed)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (owner_id, step_id) DO UPDATE SET completed = excluded.completed`),
		rec.ID, rec.OwnerID, rec.StepID, rec.Completed)
	if err != nil {
		return fmt.Errorf("upsert completion: %w", err)
	}
	return nil
}

// GetOwnerTier returns the tier recorded for the owner, or "" when none is.
func (r *PlanRepository) GetOwnerTier(ctx context.Context, ownerID string) (models.Tier, error) {
	var tier string
	err := r.DB.QueryRowContext(ctx, r.Dialect.Rebind(`SELECT tier FROM owner_tiers WHERE owner_id = ?`), ownerID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("GetOwnerTier: %w", err)
	}
	return models.Tier(tier), nil
}

// SetOwnerTier records the owner's tier.
func (r *PlanRepository) SetOwnerTier(ctx context.Context, ownerID string, tier models.Tier) error {
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(`
        INSERT INTO owner_tiers (owner_id, tier) VALUES (?, ?)
        ON CONFLICT (owner_id) DO UPDATE SET tier = excluded.tier`),
		ownerID, string(tier))
	if err != nil {
		return fmt.Errorf("set owner tier: %w", err)
	}
	return nil
}

func (r *PlanRepository) loadOne(ctx context.Context, row *sql.Row) (*models.Plan, error) {
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan plan: %w", err)
	}

	plans := []models.Plan{p}
	if err := r.attachChildren(ctx, plans, "p.id = ?", p.ID); err != nil {
		return nil, err
	}
	return &plans[0], nil
}

// attachChildren loads the steps and resources of the plans selected by where
// and hangs them onto the matching entries of plans.
func (r *PlanRepository) attachChildren(ctx context.Context, plans []models.Plan, where string, arg any) error {
	byPlan := make(map[string]*models.Plan, len(plans))
	for i := range plans {
		plans[i].Steps = []models.Step{}
		byPlan[plans[i].ID] = &plans[i]
	}

	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(stepColumns+` WHERE `+where+` ORDER BY s.plan_id, s.step_order`), arg)
	if err != nil {
		return fmt.Errorf("query steps: %w", err)
	}
	for rows.Next() {
		var s models.Step
		if err := rows.Scan(&s.ID, &s.PlanID, &s.Title, &s.Description, &s.Order); err != nil {
			rows.Close()
			return fmt.Errorf("scan step: %w", err)
		}
		s.Resources = []models.Resource{}
		if p, ok := byPlan[s.PlanID]; ok {
			p.Steps = append(p.Steps, s)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("query steps: %w", err)
	}

	type stepRef struct{ plan, index int }
	steps := make(map[string]stepRef)
	for pi := range plans {
		for si := range plans[pi].Steps {
			steps[plans[pi].Steps[si].ID] = stepRef{pi, si}
		}
	}

	rows, err = r.DB.QueryContext(ctx, r.Dialect.Rebind(resourceColumns+` WHERE `+where+` ORDER BY r.step_id, r.position`), arg)
	if err != nil {
		return fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var res models.Resource
		var kind string
		if err := rows.Scan(&res.ID, &res.StepID, &res.Title, &res.URL, &kind); err != nil {
			return fmt.Errorf("scan resource: %w", err)
		}
		res.Kind = models.ResourceKind(kind)
		if ref, ok := steps[res.StepID]; ok {
			s := &plans[ref.plan].Steps[ref.index]
			s.Resources = append(s.Resources, res)
		}
	}
	return rows.Err()
}

func (r *PlanRepository) insertPlan(ctx context.Context, tx *sql.Tx, p *models.Plan) error {
	_, err := tx.ExecContext(ctx, r.Dialect.Rebind(`
        INSERT INTO plans (id, owner_id, title, description, visibility, share_token, share_expiry, created_at, is_template, category)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.OwnerID, p.Title, p.Description, string(p.Visibility),
		nullString(p.ShareToken), nullUnix(p.ShareExpiry), p.CreatedAt.Unix(), p.IsTemplate, p.Category)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (r *PlanRepository) insertChildren(ctx context.Context, tx *sql.Tx, p *models.Plan) error {
	insertStep := r.Dialect.Rebind(`
        INSERT INTO steps (id, plan_id, title, description, step_order) VALUES (?, ?, ?, ?, ?)`)
	insertResource := r.Dialect.Rebind(`
        INSERT INTO resources (id, step_id, title, url, kind, position) VALUES (?, ?, ?, ?, ?, ?)`)

	for _, s := range p.Steps {
		if _, err := tx.ExecContext(ctx, insertStep, s.ID, p.ID, s.Title, s.Description, s.Order); err != nil {
			return fmt.Errorf("insert step: %w", err)
		}
	}
	for _, s := range p.Steps {
		for i, res := range s.Resources {
			if _, err := tx.ExecContext(ctx, insertResource, res.ID, s.ID, res.Title, res.URL, string(res.Kind), i); err != nil {
				return fmt.Errorf("insert resource: %w", err)
			}
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(sc rowScanner) (models.Plan, error) {
	var (
		p          models.Plan
		visibility string
		token      sql.NullString
		expiry     sql.NullInt64
		createdAt  int64
	)
	if err := sc.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &visibility,
		&token, &expiry, &createdAt, &p.IsTemplate, &p.Category); err != nil {
		return models.Plan{}, err
	}
	p.Visibility = models.Visibility(visibility)
	p.ShareToken = token.String
	if expiry.Valid {
		t := time.Unix(expiry.Int64, 0).UTC()
		p.ShareExpiry = &t
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return p, nil
}

func scanPlans(rows *sql.Rows) ([]models.Plan, error) {
	defer rows.Close()

	plans := []models.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
