package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/db"
)

// AssetRepository handles catalog reads for deliverable assets
type AssetRepository struct {
	db *db.DB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *db.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

const assetColumns = `
	customer, space, name, width, height, duration, roles, max_unauthorised,
	origin, media_type, not_for_delivery, delivery_channels, storage_location,
	open_thumbs, batch, string1, string2, string3, number1, number2, number3
`

// GetAsset retrieves a single catalog record. Returns (nil, nil) when the
// asset does not exist.
func (r *AssetRepository) GetAsset(ctx context.Context, id models.AssetID) (*models.AssetRecord, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM assets
		WHERE customer = $1 AND space = $2 AND name = $3
	`

	row := r.db.QueryRow(ctx, query, id.Customer, id.Space, id.Name)
	record, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", id, err)
	}
	return record, nil
}

// QueryAssets executes a parsed named query's filters and ordering against
// the catalog. The caller must have checked IsFaulty.
func (r *AssetRepository) QueryAssets(ctx context.Context, q *models.ParsedNamedQuery) ([]models.AssetRecord, error) {
	where := []string{"customer = $1", "not_for_delivery = false"}
	args := []any{q.Customer}

	addFilter := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if q.Space != nil {
		addFilter("space", *q.Space)
	}
	if q.SpaceName != nil {
		addFilter("space_name", *q.SpaceName)
	}
	if q.String1 != nil {
		addFilter("string1", *q.String1)
	}
	if q.String2 != nil {
		addFilter("string2", *q.String2)
	}
	if q.String3 != nil {
		addFilter("string3", *q.String3)
	}
	if q.Number1 != nil {
		addFilter("number1", *q.Number1)
	}
	if q.Number2 != nil {
		addFilter("number2", *q.Number2)
	}
	if q.Number3 != nil {
		addFilter("number3", *q.Number3)
	}
	if len(q.Batches) > 0 {
		args = append(args, q.Batches)
		where = append(where, fmt.Sprintf("batch = ANY($%d)", len(args)))
	}

	query := `SELECT ` + assetColumns + ` FROM assets WHERE ` + strings.Join(where, " AND ")
	if orderBy := buildOrderBy(q.Ordering); orderBy != "" {
		query += " ORDER BY " + orderBy
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var results []models.AssetRecord
	for rows.Next() {
		record, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		results = append(results, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading asset rows: %w", err)
	}
	return results, nil
}

func buildOrderBy(ordering []models.QueryOrder) string {
	clauses := make([]string, 0, len(ordering))
	for _, order := range ordering {
		column := orderColumn(order.Field)
		if column == "" {
			continue
		}
		if order.Direction == models.OrderDescending {
			column += " DESC"
		}
		clauses = append(clauses, column)
	}
	return strings.Join(clauses, ", ")
}

func orderColumn(mapping models.QueryMapping) string {
	switch mapping {
	case models.MappingString1:
		return "string1"
	case models.MappingString2:
		return "string2"
	case models.MappingString3:
		return "string3"
	case models.MappingNumber1:
		return "number1"
	case models.MappingNumber2:
		return "number2"
	case models.MappingNumber3:
		return "number3"
	default:
		return ""
	}
}

func scanAsset(row pgx.Row) (*models.AssetRecord, error) {
	var record models.AssetRecord
	var roles string
	var channels int

	err := row.Scan(
		&record.ID.Customer,
		&record.ID.Space,
		&record.ID.Name,
		&record.Width,
		&record.Height,
		&record.Duration,
		&roles,
		&record.MaxUnauthorised,
		&record.Origin,
		&record.MediaType,
		&record.NotForDelivery,
		&channels,
		&record.Location,
		&record.OpenThumbs,
		&record.Batch,
		&record.String1,
		&record.String2,
		&record.String3,
		&record.Number1,
		&record.Number2,
		&record.Number3,
	)
	if err != nil {
		return nil, err
	}

	record.DeliveryChannels = models.DeliveryChannel(channels)
	if roles != "" {
		record.Roles = strings.Split(roles, ",")
	}
	return &record, nil
}
