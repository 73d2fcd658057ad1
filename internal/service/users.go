package service

import (
	"context"
	"time"

	"github.com/baechuer/order-lifecycle-service/internal/domain"
	"github.com/baechuer/order-lifecycle-service/internal/metrics"
	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
)

// Users validates order owners cache-aside: Redis first, the directory on a
// miss, with the fetched record written back for the next caller.
type Users struct {
	cache     UserCache
	directory UserDirectory
}

func NewUsers(cache UserCache, directory UserDirectory) *Users {
	return &Users{cache: cache, directory: directory}
}

// Validate returns the active user record for userID, or nil when the user
// is unknown or inactive. An error means the lookup itself failed (cache
// errors are swallowed, directory errors are not).
func (s *Users) Validate(ctx context.Context, userID string) (*domain.User, error) {
	start := time.Now()
	log := logger.WithCtx(ctx)

	u, err := s.cache.GetUser(ctx, userID)
	if err != nil {
		// degraded cache is not fatal, fall through to the directory
		log.Warn().Err(err).Str("user_id", userID).Msg("user cache read failed")
	}
	if u != nil {
		metrics.RecordCacheHit()
		return s.finish(start, u), nil
	}
	metrics.RecordCacheMiss()

	u, err = s.directory.GetUser(ctx, userID)
	if err != nil {
		metrics.RecordUserValidation("error", time.Since(start))
		return nil, err
	}
	if u == nil {
		metrics.RecordUserValidation("invalid", time.Since(start))
		return nil, nil
	}

	if err := s.cache.SetUser(ctx, u); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("user cache write failed")
	}
	return s.finish(start, u), nil
}

func (s *Users) finish(start time.Time, u *domain.User) *domain.User {
	if !u.Active() {
		metrics.RecordUserValidation("invalid", time.Since(start))
		return nil
	}
	metrics.RecordUserValidation("valid", time.Since(start))
	return u
}
