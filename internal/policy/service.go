package policy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"docgov/internal/model"
	"docgov/internal/repository"
)

// ErrUnknownPolicyKey is returned when writing a key the cache does not understand.
var ErrUnknownPolicyKey = errors.New("unknown policy key")

// Service is the write side of policy: it persists a value and refreshes the cache.
type Service interface {
	// UpdatePolicy stores value under key and reloads the cache before returning,
	// so enforcement in this process never sees an older value.
	UpdatePolicy(ctx context.Context, key, value string) error
}

type service struct {
	repo  repository.PolicyRepository
	cache *Cache
	log   *zap.Logger
}

// NewService constructs a policy Service.
func NewService(repo repository.PolicyRepository, cache *Cache, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &service{repo: repo, cache: cache, log: log.With(zap.String("component", "policy_service"))}
}

func (s *service) UpdatePolicy(ctx context.Context, key, value string) error {
	if !model.KnownPolicyKey(key) {
		return fmt.Errorf("%w: %q", ErrUnknownPolicyKey, key)
	}
	if err := s.repo.Upsert(ctx, key, value); err != nil {
		return err
	}
	if err := s.cache.Reload(ctx); err != nil {
		return err
	}
	s.log.Info("policy updated", zap.String("key", key))
	return nil
}
