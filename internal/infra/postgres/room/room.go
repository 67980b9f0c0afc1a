package infra_postgres_room

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/humanbelnik/feastfriends/core/internal/model"
	usecase_waitingroom "github.com/humanbelnik/feastfriends/core/internal/usecase/waitingroom"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Driver struct {
	db       *sqlx.DB
	capacity int
}

func New(db *sqlx.DB, capacity int) *Driver {
	return &Driver{db: db, capacity: capacity}
}

type roomDTO struct {
	ID              uuid.UUID       `db:"id"`
	Members         pq.StringArray  `db:"members"`
	Cuisines        pq.StringArray  `db:"cuisines"`
	AvgBudget       float64         `db:"avg_budget"`
	AvgRadius       float64         `db:"avg_radius"`
	Lat             sql.NullFloat64 `db:"lat"`
	Lon             sql.NullFloat64 `db:"lon"`
	LocationMembers int             `db:"location_members"`
	Deadline        time.Time       `db:"deadline"`
	Status          string          `db:"status"`
	Version         int64           `db:"version"`
}

func toDTO(room *model.Room) roomDTO {
	dto := roomDTO{
		ID:              room.ID,
		Members:         make(pq.StringArray, 0, len(room.Members)),
		Cuisines:        pq.StringArray(room.Cuisines),
		AvgBudget:       room.AvgBudget,
		AvgRadius:       room.AvgRadius,
		LocationMembers: room.LocationMembers,
		Deadline:        room.Deadline,
		Status:          room.Status,
		Version:         room.Version,
	}
	for _, id := range room.Members {
		dto.Members = append(dto.Members, id.String())
	}
	if room.Location != nil {
		dto.Lat = sql.NullFloat64{Float64: room.Location.Lat, Valid: true}
		dto.Lon = sql.NullFloat64{Float64: room.Location.Lon, Valid: true}
	}
	return dto
}

func (dto roomDTO) toModel() (*model.Room, error) {
	room := &model.Room{
		ID:              dto.ID,
		Members:         make([]uuid.UUID, 0, len(dto.Members)),
		Cuisines:        []string(dto.Cuisines),
		AvgBudget:       dto.AvgBudget,
		AvgRadius:       dto.AvgRadius,
		LocationMembers: dto.LocationMembers,
		Deadline:        dto.Deadline,
		Status:          dto.Status,
		Version:         dto.Version,
	}
	for _, raw := range dto.Members {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		room.Members = append(room.Members, id)
	}
	if dto.Lat.Valid && dto.Lon.Valid {
		room.Location = &model.GeoPoint{Lat: dto.Lat.Float64, Lon: dto.Lon.Float64}
	}
	return room, nil
}

func (d *Driver) Create(ctx context.Context, room *model.Room) error {
	query := `
		INSERT INTO rooms (id, members, cuisines, avg_budget, avg_radius, lat, lon, location_members, deadline, status, version)
		VALUES (:id, :members, :cuisines, :avg_budget, :avg_radius, :lat, :lon, :location_members, :deadline, :status, :version)
	`

	_, err := d.db.NamedExecContext(ctx, query, toDTO(room))
	return err
}

func (d *Driver) Load(ctx context.Context, id uuid.UUID) (*model.Room, error) {
	var dto roomDTO

	query := `
		SELECT id, members, cuisines, avg_budget, avg_radius, lat, lon, location_members, deadline, status, version
		FROM rooms
		WHERE id = $1
	`

	err := d.db.GetContext(ctx, &dto, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, usecase_waitingroom.ErrResourceNotFound
		}
		return nil, err
	}

	return dto.toModel()
}

// Update writes the document with the version read at load time. A
// stale version touches zero rows and surfaces as ErrVersionConflict;
// the stored version is bumped on success, mirrored into the model.
func (d *Driver) Update(ctx context.Context, room *model.Room) error {
	query := `
		UPDATE rooms
		SET members = :members,
		    cuisines = :cuisines,
		    avg_budget = :avg_budget,
		    avg_radius = :avg_radius,
		    lat = :lat,
		    lon = :lon,
		    location_members = :location_members,
		    deadline = :deadline,
		    status = :status,
		    version = version + 1
		WHERE id = :id AND version = :version
	`

	result, err := d.db.NamedExecContext(ctx, query, toDTO(room))
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return usecase_waitingroom.ErrVersionConflict
	}

	room.Version++
	return nil
}

func (d *Driver) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM rooms WHERE id = $1`

	result, err := d.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return usecase_waitingroom.ErrResourceNotFound
	}

	return nil
}

func (d *Driver) LoadWaiting(ctx context.Context) ([]*model.Room, error) {
	var dtos []roomDTO

	query := `
		SELECT id, members, cuisines, avg_budget, avg_radius, lat, lon, location_members, deadline, status, version
		FROM rooms
		WHERE status = $1 AND cardinality(members) < $2
		ORDER BY deadline
	`

	err := d.db.SelectContext(ctx, &dtos, query, model.RoomStatusWaiting, d.capacity)
	if err != nil {
		return nil, err
	}

	rooms := make([]*model.Room, 0, len(dtos))
	for _, dto := range dtos {
		room, err := dto.toModel()
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// ExpiredRoomIDs lists waiting rooms past their completion deadline.
func (d *Driver) ExpiredRoomIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID

	query := `
		SELECT id
		FROM rooms
		WHERE status = $1 AND deadline <= $2
	`

	if err := d.db.SelectContext(ctx, &ids, query, model.RoomStatusWaiting, now); err != nil {
		return nil, err
	}
	return ids, nil
}
