package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/humanbelnik/feastfriends/core/internal/config"
	http_init "github.com/humanbelnik/feastfriends/core/internal/delivery/http/init"
	http_room "github.com/humanbelnik/feastfriends/core/internal/delivery/http/room"
	http_voting "github.com/humanbelnik/feastfriends/core/internal/delivery/http/voting"
	ws_group "github.com/humanbelnik/feastfriends/core/internal/delivery/ws/group"
	infra_postgres_group "github.com/humanbelnik/feastfriends/core/internal/infra/postgres/group"
	infra_pg_init "github.com/humanbelnik/feastfriends/core/internal/infra/postgres/init"
	infra_postgres_restaurant "github.com/humanbelnik/feastfriends/core/internal/infra/postgres/restaurant"
	infra_postgres_room "github.com/humanbelnik/feastfriends/core/internal/infra/postgres/room"
	infra_postgres_user "github.com/humanbelnik/feastfriends/core/internal/infra/postgres/user"
	infra_redis_init "github.com/humanbelnik/feastfriends/core/internal/infra/redis/init"
	infra_userstate_cache "github.com/humanbelnik/feastfriends/core/internal/infra/redis/userstate"
	"github.com/humanbelnik/feastfriends/core/internal/model"
	"github.com/humanbelnik/feastfriends/core/internal/service/idlock"
	usecase_sweeper "github.com/humanbelnik/feastfriends/core/internal/usecase/sweeper"
	usecase_voting "github.com/humanbelnik/feastfriends/core/internal/usecase/voting"
	usecase_waitingroom "github.com/humanbelnik/feastfriends/core/internal/usecase/waitingroom"
)

// scanner aggregates the expiry queries of both postgres drivers behind
// the sweeper's single port.
type scanner struct {
	groups *infra_postgres_group.Driver
	rooms  *infra_postgres_room.Driver
}

func (s scanner) ExpiredGroupIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return s.groups.ExpiredGroupIDs(ctx, now)
}

func (s scanner) ExpiredRoundGroupIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return s.groups.ExpiredRoundGroupIDs(ctx, now)
}

func (s scanner) ExpiredRoomIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return s.rooms.ExpiredRoomIDs(ctx, now)
}

func Go(cfg *config.Config) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	redisConn := infra_redis_init.MustEstablishConn(cfg.Redis)
	pgConn := infra_pg_init.MustEstablishConn(cfg.Postgres)
	infra_pg_init.MustMigrate(pgConn, cfg.Postgres.MigrationsPath)

	roomRepository := infra_postgres_room.New(pgConn, cfg.Engine.RoomCapacity)
	groupRepository := infra_postgres_group.New(pgConn)
	userRepository := infra_postgres_user.New(pgConn)
	restaurantProvider := infra_postgres_restaurant.New(pgConn)
	userStateCache := infra_userstate_cache.New(redisConn, "user_state")

	hub := ws_group.New(logger)
	locks := idlock.New()

	votingUC := usecase_voting.New(
		groupRepository,
		restaurantProvider,
		userStateCache,
		hub,
		locks,
		usecase_voting.Config{
			DefaultMode:  model.VotingMode(cfg.Engine.DefaultMode),
			PoolSize:     cfg.Engine.PoolSize,
			MaxRounds:    cfg.Engine.MaxRounds,
			RoundTimeout: cfg.Engine.RoundTimeout,
			GroupTTL:     cfg.Engine.GroupTTL,
		},
		usecase_voting.WithLogger(logger),
	)

	waitingRoomUC := usecase_waitingroom.New(
		roomRepository,
		userRepository,
		userStateCache,
		votingUC,
		hub,
		locks,
		usecase_waitingroom.Config{
			Capacity: cfg.Engine.RoomCapacity,
			RoomTTL:  cfg.Engine.RoomTTL,
		},
		usecase_waitingroom.WithLogger(logger),
	)

	sweeper := usecase_sweeper.New(
		scanner{groupRepository, roomRepository},
		votingUC,
		waitingRoomUC,
		usecase_sweeper.Config{
			GroupSweepInterval: cfg.Engine.GroupSweepInterval,
			RoundSweepInterval: cfg.Engine.RoundSweepInterval,
		},
		usecase_sweeper.WithLogger(logger),
	)
	go sweeper.Run(context.Background())

	controllerPool := http_init.NewControllerPool()
	controllerPool.Add(http_room.New(waitingRoomUC, http_room.WithLogger(logger)))
	controllerPool.Add(http_voting.New(votingUC, http_voting.WithLogger(logger)))
	controllerPool.Add(ws_group.NewController(hub, logger))

	controllerPool.Register()
	controllerPool.RunAll(cfg.HTTP.Port)
}
