package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/astelio/consult/internal/core"
	"github.com/astelio/consult/internal/domain"
)

// ErrNoBalance marks a room the ledger has never heard of. The meter treats
// it as effectively unlimited credit.
var ErrNoBalance = errors.New("no balance for room")

const keyPrefix = "credit:"

// Redis reads per-room balances maintained by an external billing system.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Balance(ctx context.Context, key domain.RoomKey) (float64, error) {
	bal, err := r.client.Get(ctx, keyPrefix+string(key)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNoBalance
	}
	if err != nil {
		return 0, fmt.Errorf("ledger lookup: %w", err)
	}
	return bal, nil
}

var _ core.CreditLedger = (*Redis)(nil)
