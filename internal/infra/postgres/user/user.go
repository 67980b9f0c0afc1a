package infra_postgres_user

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/humanbelnik/feastfriends/core/internal/model"
	usecase_waitingroom "github.com/humanbelnik/feastfriends/core/internal/usecase/waitingroom"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Driver struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Driver {
	return &Driver{db: db}
}

type userDTO struct {
	ID       uuid.UUID       `db:"id"`
	Cuisines pq.StringArray  `db:"cuisines"`
	Budget   sql.NullFloat64 `db:"budget"`
	RadiusKm sql.NullFloat64 `db:"radius_km"`
}

func (d *Driver) Load(ctx context.Context, id uuid.UUID) (model.User, error) {
	var dto userDTO

	query := `
		SELECT id, cuisines, budget, radius_km
		FROM users
		WHERE id = $1
	`

	err := d.db.GetContext(ctx, &dto, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.User{}, usecase_waitingroom.ErrResourceNotFound
		}
		return model.User{}, err
	}

	user := model.User{
		ID:       dto.ID,
		Cuisines: []string(dto.Cuisines),
	}
	if dto.Budget.Valid {
		budget := dto.Budget.Float64
		user.Budget = &budget
	}
	if dto.RadiusKm.Valid {
		radius := dto.RadiusKm.Float64
		user.RadiusKm = &radius
	}
	return user, nil
}

func (d *Driver) Save(ctx context.Context, user model.User) error {
	dto := userDTO{
		ID:       user.ID,
		Cuisines: pq.StringArray(user.Cuisines),
	}
	if user.Budget != nil {
		dto.Budget = sql.NullFloat64{Float64: *user.Budget, Valid: true}
	}
	if user.RadiusKm != nil {
		dto.RadiusKm = sql.NullFloat64{Float64: *user.RadiusKm, Valid: true}
	}

	query := `
		INSERT INTO users (id, cuisines, budget, radius_km, updated_at)
		VALUES (:id, :cuisines, :budget, :radius_km, now())
		ON CONFLICT (id)
		DO UPDATE SET cuisines = EXCLUDED.cuisines,
		              budget = EXCLUDED.budget,
		              radius_km = EXCLUDED.radius_km,
		              updated_at = now()
	`

	_, err := d.db.NamedExecContext(ctx, query, dto)
	return err
}
