package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vantage/internal/apperrors"
	"vantage/internal/database"
	"vantage/internal/models"
)

const complianceColumns = `id, item_id, check_type, status, details, issues, checked_by, checked_at`

// ComplianceRepository handles compliance check database operations
type ComplianceRepository struct {
	*database.Repository
}

// NewComplianceRepository creates a new compliance repository
func NewComplianceRepository(db *database.Database, logger *zap.Logger) *ComplianceRepository {
	return &ComplianceRepository{
		Repository: database.NewRepository(db, logger),
	}
}

// CreateTx inserts a compliance check inside tx
func (r *ComplianceRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, c *models.ComplianceCheck) error {
	query := `
		INSERT INTO compliance_checks (` + complianceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.ExecContext(ctx, query,
		c.ID, c.ItemID, c.CheckType, c.Status, c.Details, c.Issues, c.CheckedBy, c.CheckedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create compliance check")
	}
	return nil
}

// List returns compliance checks matching the optional item and status filters
func (r *ComplianceRepository) List(ctx context.Context, filter *models.ComplianceFilter) ([]models.ComplianceCheck, error) {
	w := &whereBuilder{}
	if filter != nil {
		if filter.ItemID != nil {
			w.add("item_id = $%d", *filter.ItemID)
		}
		if filter.Status != nil {
			w.add("status = $%d", string(*filter.Status))
		}
	}

	query := "SELECT " + complianceColumns + " FROM compliance_checks" + w.clause() + " ORDER BY checked_at DESC"

	checks := []models.ComplianceCheck{}
	if err := r.DB().SelectContext(ctx, &checks, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "failed to get compliance checks")
	}
	return checks, nil
}

// Update applies a partial update and returns the stored check
func (r *ComplianceRepository) Update(ctx context.Context, id string, req *models.UpdateComplianceRequest) (*models.ComplianceCheck, error) {
	s := &setBuilder{}
	if req.Status != nil {
		s.set("status", string(*req.Status))
	}
	if req.Details != nil {
		s.set("details", *req.Details)
	}
	if req.Issues != nil {
		s.set("issues", pq.StringArray(*req.Issues))
	}
	if req.CheckedBy != nil {
		s.set("checked_by", *req.CheckedBy)
	}
	s.raw("checked_at = NOW()")

	args := append(s.args, id)
	query := fmt.Sprintf("UPDATE compliance_checks SET %s WHERE id = $%d RETURNING %s",
		s.clause(), len(args), complianceColumns)

	var check models.ComplianceCheck
	if err := r.DB().GetContext(ctx, &check, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrComplianceNotFound
		}
		return nil, errors.Wrap(err, "failed to update compliance check")
	}
	return &check, nil
}
