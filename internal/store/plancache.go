package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/almamatch/almamatch/internal/entitlement"
)

const planKeyPrefix = "almamatch:plan:"

// planRecord is the loosely-typed cache payload. Records are stored as JSON
// maps and decoded back through mapstructure so additions to the payload do
// not break older readers.
type planRecord struct {
	Tier        string `json:"tier"`
	RefreshedAt int64  `json:"refreshed_at"`
}

// PlanCache keeps recently resolved plan tiers in Redis. A cache miss or a
// malformed entry falls through to storage.
type PlanCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewPlanCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *PlanCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PlanCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Get returns the cached tier for the applicant and whether it was found.
func (c *PlanCache) Get(ctx context.Context, applicantID uuid.UUID) (entitlement.PlanTier, bool) {
	payload, err := c.rdb.Get(ctx, planKeyPrefix+applicantID.String()).Bytes()
	if err != nil {
		return entitlement.TierFree, false
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		c.logger.Debug("dropping malformed plan cache entry",
			zap.String("applicant_id", applicantID.String()),
			zap.Error(err),
		)
		return entitlement.TierFree, false
	}

	var record planRecord
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &record,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return entitlement.TierFree, false
	}
	if err := decoder.Decode(raw); err != nil {
		c.logger.Debug("dropping undecodable plan cache entry",
			zap.String("applicant_id", applicantID.String()),
			zap.Error(err),
		)
		return entitlement.TierFree, false
	}

	tier, err := entitlement.ParseTier(record.Tier)
	if err != nil {
		return entitlement.TierFree, false
	}
	return tier, true
}

// Set stores the tier with the cache TTL. Failures are logged and ignored.
func (c *PlanCache) Set(ctx context.Context, applicantID uuid.UUID, tier entitlement.PlanTier) {
	payload, err := json.Marshal(planRecord{
		Tier:        tier.String(),
		RefreshedAt: time.Now().Unix(),
	})
	if err != nil {
		return
	}

	if err := c.rdb.Set(ctx, planKeyPrefix+applicantID.String(), payload, c.ttl).Err(); err != nil {
		c.logger.Debug("plan cache write failed",
			zap.String("applicant_id", applicantID.String()),
			zap.Error(err),
		)
	}
}
