package modelconfig

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/omniroute/internal/cache"
	"github.com/BaSui01/omniroute/internal/metrics"
	"github.com/BaSui01/omniroute/relay"
)

const redisKeyPrefix = "modelconfig:user:"

// Options 配置 Service 的可选依赖.
type Options struct {
	// CacheTTL 内存缓存过期时间，默认 5 分钟.
	CacheTTL time.Duration
	// Redis 可选的跨实例缓存层.
	Redis *cache.Manager
	// Metrics 可选的指标收集器.
	Metrics *metrics.Collector
	// Logger 默认 no-op.
	Logger *zap.Logger
}

// Service resolves per-user per-modality provider configs. Lookups hit
// the in-process cache, then Redis when configured, then the store;
// concurrent store reads for the same user are deduplicated. A failing
// store degrades to system defaults instead of failing the request.
type Service struct {
	store    *Store
	defaults Defaults
	mem      *ttlCache
	redis    *cache.Manager
	metrics  *metrics.Collector
	sf       singleflight.Group
	logger   *zap.Logger
}

// NewService creates the resolver.
func NewService(store *Store, defaults Defaults, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		defaults: defaults,
		mem:      newTTLCache(opts.CacheTTL),
		redis:    opts.Redis,
		metrics:  opts.Metrics,
		logger:   logger.With(zap.String("component", "modelconfig")),
	}
}

// ModelFor resolves the provider config for a user and config slot.
// Credential precedence: setting-embedded key, then the user's
// platform credential, then the system default with the deployment
// key. Base URL precedence: setting, custom platform, credential,
// builtin platform directory.
func (s *Service) ModelFor(ctx context.Context, userID string, key relay.ConfigKey) (relay.ProviderConfig, error) {
	doc := s.document(ctx, userID)
	setting, ok := doc.Setting(key)
	if !ok {
		return s.defaults.Config(key), nil
	}

	cfg := relay.ProviderConfig{
		Platform:       setting.Platform,
		Model:          setting.ModelID,
		BaseURL:        setting.BaseURL,
		APIKey:         setting.APIKey,
		UserConfigured: true,
	}
	cred, hasCred := doc.Credential(setting.Platform)
	if cfg.APIKey == "" && hasCred {
		cfg.APIKey = cred.APIKey
	}
	if cfg.BaseURL == "" {
		if p, ok := doc.Platform(setting.Platform); ok {
			cfg.BaseURL = p.BaseURL
		}
	}
	if cfg.BaseURL == "" && hasCred {
		cfg.BaseURL = cred.BaseURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BuiltinPlatforms[setting.Platform]
	}
	return cfg, nil
}

// FallbackFor returns the system default for a slot, marked as the
// fallback attempt.
func (s *Service) FallbackFor(key relay.ConfigKey) relay.ProviderConfig {
	cfg := s.defaults.Config(key)
	cfg.Fallback = true
	return cfg
}

// document loads the user's config document through the cache layers.
// Returns nil both for users without configuration and when the store
// is unreachable; callers fall through to system defaults either way.
func (s *Service) document(ctx context.Context, userID string) *UserDocument {
	if doc, ok := s.mem.get(userID); ok {
		s.recordCacheHit("memory")
		return doc
	}
	s.recordCacheMiss("memory")

	if s.redis != nil {
		var doc UserDocument
		err := s.redis.GetJSON(ctx, redisKeyPrefix+userID, &doc)
		if err == nil {
			s.recordCacheHit("redis")
			s.mem.set(userID, &doc)
			return &doc
		}
		if !cache.IsCacheMiss(err) {
			s.logger.Warn("redis config lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		s.recordCacheMiss("redis")
	}

	v, err, _ := s.sf.Do(userID, func() (any, error) {
		return s.store.Load(ctx, userID)
	})
	if err != nil {
		s.logger.Warn("config store unavailable, using system defaults",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil
	}

	doc, _ := v.(*UserDocument)
	s.mem.set(userID, doc)
	if s.redis != nil && doc != nil {
		if err := s.redis.SetJSON(ctx, redisKeyPrefix+userID, doc, s.mem.ttl); err != nil {
			s.logger.Warn("redis config write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return doc
}

// ClearCache invalidates one user's cached document in all layers.
func (s *Service) ClearCache(ctx context.Context, userID string) {
	s.mem.delete(userID)
	if s.redis != nil {
		if err := s.redis.Delete(ctx, redisKeyPrefix+userID); err != nil {
			s.logger.Warn("redis config invalidation failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// ClearAll drops every cached document.
func (s *Service) ClearAll(ctx context.Context) {
	s.mem.clear()
	if s.redis != nil {
		if err := s.redis.DeleteByPrefix(ctx, redisKeyPrefix); err != nil {
			s.logger.Warn("redis config flush failed", zap.Error(err))
		}
	}
}

// CacheStats reports in-process cache statistics.
func (s *Service) CacheStats() CacheStats { return s.mem.stats() }

func (s *Service) recordCacheHit(layer string) {
	if s.metrics != nil {
		s.metrics.RecordConfigCacheHit(layer)
	}
}

func (s *Service) recordCacheMiss(layer string) {
	if s.metrics != nil {
		s.metrics.RecordConfigCacheMiss(layer)
	}
}
