package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

type DeploymentRepository struct {
	db *sql.DB
}

func NewDeploymentRepository(db *sql.DB) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

// Upsert stores the latest state of a deployment record.
func (r *DeploymentRepository) Upsert(ctx context.Context, d *models.DeploymentRecord) error {
	query := `
		INSERT INTO deployments
			(name, resource_group, node_index, provisioning_state, submitted_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			provisioning_state = EXCLUDED.provisioning_state,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at`

	_, err := r.db.ExecContext(ctx, query,
		d.Name, d.ResourceGroup, d.NodeIndex, string(d.State),
		d.SubmittedAt, d.UpdatedAt, d.CompletedAt,
	)
	return err
}

// RecordHalt stores the reason the agent stopped.
func (r *DeploymentRepository) RecordHalt(ctx context.Context, resourceGroup, phase, kind, message string, at time.Time) error {
	query := `
		INSERT INTO agent_halts (resource_group, phase, error_kind, message, halted_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, resourceGroup, phase, kind, message, at)
	return err
}

// GetByResourceGroup returns the newest deployments first.
func (r *DeploymentRepository) GetByResourceGroup(ctx context.Context, resourceGroup string, limit int) ([]models.DeploymentRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT name, resource_group, node_index, provisioning_state, submitted_at, updated_at, completed_at
		FROM deployments
		WHERE resource_group = $1
		ORDER BY submitted_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, resourceGroup, limit)
	if err != nil {
		return nil, err
	}
	return scanDeployments(rows)
}

func scanDeployments(rows *sql.Rows) ([]models.DeploymentRecord, error) {
	defer rows.Close()

	var deployments []models.DeploymentRecord
	for rows.Next() {
		var (
			d         models.DeploymentRecord
			state     string
			completed sql.NullTime
		)
		err := rows.Scan(
			&d.Name, &d.ResourceGroup, &d.NodeIndex, &state,
			&d.SubmittedAt, &d.UpdatedAt, &completed,
		)
		if err != nil {
			return nil, err
		}
		d.State = models.ProvisioningState(state)
		if completed.Valid {
			t := completed.Time
			d.CompletedAt = &t
		}
		deployments = append(deployments, d)
	}

	return deployments, rows.Err()
}
