package infra_postgres_restaurant

import (
	"context"
	"database/sql"

	"github.com/humanbelnik/feastfriends/core/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Driver serves restaurant candidates ranked against a group's
// aggregate preferences: cuisine overlap first, then budget closeness,
// then rating.
type Driver struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Driver {
	return &Driver{db: db}
}

type restaurantDTO struct {
	ID       string          `db:"id"`
	Name     string          `db:"name"`
	Cuisines pq.StringArray  `db:"cuisines"`
	AvgPrice float64         `db:"avg_price"`
	Rating   float64         `db:"rating"`
	Lat      sql.NullFloat64 `db:"lat"`
	Lon      sql.NullFloat64 `db:"lon"`
}

func (dto restaurantDTO) toModel() model.Restaurant {
	r := model.Restaurant{
		ID:       dto.ID,
		Name:     dto.Name,
		Cuisines: []string(dto.Cuisines),
		AvgPrice: dto.AvgPrice,
		Rating:   dto.Rating,
	}
	if dto.Lat.Valid && dto.Lon.Valid {
		r.Location = &model.GeoPoint{Lat: dto.Lat.Float64, Lon: dto.Lon.Float64}
	}
	return r
}

const rankedQuery = `
	SELECT id, name, cuisines, avg_price, rating, lat, lon
	FROM restaurants
	WHERE NOT (id = ANY($1))
	ORDER BY (cuisines && $2) DESC,
	         ABS(avg_price - $3) ASC,
	         rating DESC
	LIMIT $4
`

func (d *Driver) Candidates(ctx context.Context, g *model.Group, limit int) ([]model.Restaurant, error) {
	var dtos []restaurantDTO

	err := d.db.SelectContext(ctx, &dtos, rankedQuery,
		pq.StringArray{},
		pq.StringArray(g.Cuisines),
		g.AvgBudget,
		limit,
	)
	if err != nil {
		return nil, err
	}

	restaurants := make([]model.Restaurant, 0, len(dtos))
	for _, dto := range dtos {
		restaurants = append(restaurants, dto.toModel())
	}
	return restaurants, nil
}

func (d *Driver) NextRestaurant(ctx context.Context, g *model.Group, excludeIDs []string) (*model.Restaurant, error) {
	var dto restaurantDTO

	err := d.db.GetContext(ctx, &dto, rankedQuery,
		pq.StringArray(excludeIDs),
		pq.StringArray(g.Cuisines),
		g.AvgBudget,
		1,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	r := dto.toModel()
	return &r, nil
}

func (d *Driver) ByID(ctx context.Context, id string) (*model.Restaurant, error) {
	var dto restaurantDTO

	query := `
		SELECT id, name, cuisines, avg_price, rating, lat, lon
		FROM restaurants
		WHERE id = $1
	`

	err := d.db.GetContext(ctx, &dto, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	r := dto.toModel()
	return &r, nil
}
