package infra_postgres_group

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/humanbelnik/feastfriends/core/internal/model"
	usecase_voting "github.com/humanbelnik/feastfriends/core/internal/usecase/voting"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Driver struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Driver {
	return &Driver{db: db}
}

type groupDTO struct {
	ID         uuid.UUID       `db:"id"`
	RoomID     uuid.UUID       `db:"room_id"`
	Members    pq.StringArray  `db:"members"`
	Cuisines   pq.StringArray  `db:"cuisines"`
	AvgBudget  float64         `db:"avg_budget"`
	AvgRadius  float64         `db:"avg_radius"`
	Lat        sql.NullFloat64 `db:"lat"`
	Lon        sql.NullFloat64 `db:"lon"`
	Mode       string          `db:"mode"`
	Status     string          `db:"status"`
	Deadline   time.Time       `db:"deadline"`
	Selected   []byte          `db:"selected"`
	ListBallot []byte          `db:"list_ballot"`
	Sequential []byte          `db:"sequential"`
	Version    int64           `db:"version"`
}

func toDTO(g *model.Group) (groupDTO, error) {
	dto := groupDTO{
		ID:        g.ID,
		RoomID:    g.RoomID,
		Members:   make(pq.StringArray, 0, len(g.Members)),
		Cuisines:  pq.StringArray(g.Cuisines),
		AvgBudget: g.AvgBudget,
		AvgRadius: g.AvgRadius,
		Mode:      g.Mode,
		Status:    g.Status,
		Deadline:  g.Deadline,
		Version:   g.Version,
	}
	for _, id := range g.Members {
		dto.Members = append(dto.Members, id.String())
	}
	if g.Location != nil {
		dto.Lat = sql.NullFloat64{Float64: g.Location.Lat, Valid: true}
		dto.Lon = sql.NullFloat64{Float64: g.Location.Lon, Valid: true}
	}

	var err error
	if g.Selected != nil {
		if dto.Selected, err = json.Marshal(g.Selected); err != nil {
			return groupDTO{}, err
		}
	}
	if g.List != nil {
		if dto.ListBallot, err = json.Marshal(g.List); err != nil {
			return groupDTO{}, err
		}
	}
	if g.Sequential != nil {
		if dto.Sequential, err = json.Marshal(g.Sequential); err != nil {
			return groupDTO{}, err
		}
	}
	return dto, nil
}

func (dto groupDTO) toModel() (*model.Group, error) {
	g := &model.Group{
		ID:        dto.ID,
		RoomID:    dto.RoomID,
		Members:   make([]uuid.UUID, 0, len(dto.Members)),
		Cuisines:  []string(dto.Cuisines),
		AvgBudget: dto.AvgBudget,
		AvgRadius: dto.AvgRadius,
		Mode:      dto.Mode,
		Status:    dto.Status,
		Deadline:  dto.Deadline,
		Version:   dto.Version,
	}
	for _, raw := range dto.Members {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		g.Members = append(g.Members, id)
	}
	if dto.Lat.Valid && dto.Lon.Valid {
		g.Location = &model.GeoPoint{Lat: dto.Lat.Float64, Lon: dto.Lon.Float64}
	}

	if len(dto.Selected) > 0 {
		if err := json.Unmarshal(dto.Selected, &g.Selected); err != nil {
			return nil, err
		}
	}
	if len(dto.ListBallot) > 0 {
		if err := json.Unmarshal(dto.ListBallot, &g.List); err != nil {
			return nil, err
		}
	}
	if len(dto.Sequential) > 0 {
		if err := json.Unmarshal(dto.Sequential, &g.Sequential); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (d *Driver) Create(ctx context.Context, g *model.Group) error {
	dto, err := toDTO(g)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO groups (id, room_id, members, cuisines, avg_budget, avg_radius, lat, lon, mode, status, deadline, selected, list_ballot, sequential, version)
		VALUES (:id, :room_id, :members, :cuisines, :avg_budget, :avg_radius, :lat, :lon, :mode, :status, :deadline, :selected, :list_ballot, :sequential, :version)
	`

	_, err = d.db.NamedExecContext(ctx, query, dto)
	return err
}

func (d *Driver) Load(ctx context.Context, id uuid.UUID) (*model.Group, error) {
	var dto groupDTO

	query := `
		SELECT id, room_id, members, cuisines, avg_budget, avg_radius, lat, lon, mode, status, deadline, selected, list_ballot, sequential, version
		FROM groups
		WHERE id = $1
	`

	err := d.db.GetContext(ctx, &dto, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, usecase_voting.ErrResourceNotFound
		}
		return nil, err
	}

	return dto.toModel()
}

// Update is the optimistic write: zero rows touched means another
// writer got there first.
func (d *Driver) Update(ctx context.Context, g *model.Group) error {
	dto, err := toDTO(g)
	if err != nil {
		return err
	}

	query := `
		UPDATE groups
		SET members = :members,
		    mode = :mode,
		    status = :status,
		    deadline = :deadline,
		    selected = :selected,
		    list_ballot = :list_ballot,
		    sequential = :sequential,
		    version = version + 1
		WHERE id = :id AND version = :version
	`

	result, err := d.db.NamedExecContext(ctx, query, dto)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return usecase_voting.ErrVersionConflict
	}

	g.Version++
	return nil
}

func (d *Driver) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM groups WHERE id = $1`

	result, err := d.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return usecase_voting.ErrResourceNotFound
	}

	return nil
}

// ExpiredGroupIDs lists groups still voting past their overall deadline.
func (d *Driver) ExpiredGroupIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID

	query := `
		SELECT id
		FROM groups
		WHERE status = $1 AND deadline <= $2
	`

	if err := d.db.SelectContext(ctx, &ids, query, model.GroupStatusVoting, now); err != nil {
		return nil, err
	}
	return ids, nil
}

// ExpiredRoundGroupIDs lists sequential groups whose current round has
// an active status and a passed expiry. The round lives inside the
// sequential JSONB document.
func (d *Driver) ExpiredRoundGroupIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID

	query := `
		SELECT id
		FROM groups
		WHERE status = $1
		  AND mode = $2
		  AND sequential->'round'->>'status' = $3
		  AND (sequential->'round'->>'expires_at')::timestamptz <= $4
	`

	err := d.db.SelectContext(ctx, &ids, query,
		model.GroupStatusVoting,
		model.ModeSequential,
		model.RoundStatusActive,
		now,
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
