package infra_userstate_cache

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/humanbelnik/feastfriends/core/internal/model"
)

// Driver keeps the volatile user state (status plus current room/group
// references) in redis. A user with no entry is simply online.
type Driver struct {
	client *redis.Client
	key    string
}

func New(client *redis.Client, key string) *Driver {
	return &Driver{
		client: client,
		key:    key,
	}
}

func (d *Driver) Get(_ context.Context, userID uuid.UUID) (model.UserState, error) {
	val, err := d.client.Get(d.getFullKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return model.UserState{Status: model.StatusOnline}, nil
		}
		return model.UserState{}, err
	}

	var state model.UserState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return model.UserState{}, err
	}
	return state, nil
}

func (d *Driver) Set(_ context.Context, userID uuid.UUID, state model.UserState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return d.client.Set(d.getFullKey(userID), string(raw), 0).Err()
}

func (d *Driver) getFullKey(userID uuid.UUID) string {
	if d.key != "" {
		return d.key + ":" + userID.String()
	}
	return userID.String()
}
