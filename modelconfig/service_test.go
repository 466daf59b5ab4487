package modelconfig

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/omniroute/internal/cache"
	"github.com/BaSui01/omniroute/relay"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(sqlite.Open(":memory:"))
	require.NoError(t, err)
	return store
}

func seedUser(t *testing.T, store *Store, userID string, doc *UserDocument) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), userID, doc))
}

func TestModelForUserConfigured(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, "u1", &UserDocument{
		Modalities: map[relay.ConfigKey]ModalitySetting{
			relay.ConfigText: {ConfigID: "c1", Platform: "deepseek", ModelID: "deepseek-chat"},
		},
		Credentials: []PlatformCredential{
			{Platform: "deepseek", APIKey: "user-key"},
		},
	})

	svc := NewService(store, BuiltinDefaults(), Options{})
	cfg, err := svc.ModelFor(context.Background(), "u1", relay.ConfigText)
	require.NoError(t, err)
	assert.True(t, cfg.UserConfigured)
	assert.Equal(t, "deepseek", cfg.Platform)
	assert.Equal(t, "deepseek-chat", cfg.Model)
	assert.Equal(t, "user-key", cfg.APIKey)
	// Base URL falls through to the builtin platform directory.
	assert.Equal(t, BuiltinPlatforms["deepseek"], cfg.BaseURL)
}

func TestModelForEmbeddedKeyWinsOverCredential(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, "u1", &UserDocument{
		Modalities: map[relay.ConfigKey]ModalitySetting{
			relay.ConfigText: {Platform: "openai", ModelID: "gpt-4o", APIKey: "embedded", BaseURL: "https://proxy.example.com/v1"},
		},
		Credentials: []PlatformCredential{{Platform: "openai", APIKey: "platform"}},
	})

	svc := NewService(store, BuiltinDefaults(), Options{})
	cfg, err := svc.ModelFor(context.Background(), "u1", relay.ConfigText)
	require.NoError(t, err)
	assert.Equal(t, "embedded", cfg.APIKey)
	assert.Equal(t, "https://proxy.example.com/v1", cfg.BaseURL)
}

func TestModelForCustomPlatformBaseURL(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, "u1", &UserDocument{
		Modalities: map[relay.ConfigKey]ModalitySetting{
			relay.ConfigText: {Platform: "myrelay", ModelID: "gpt-4o", APIKey: "k"},
		},
		CustomPlatforms: []CustomPlatform{{Name: "myrelay", BaseURL: "https://relay.internal/v1"}},
	})

	svc := NewService(store, BuiltinDefaults(), Options{})
	cfg, err := svc.ModelFor(context.Background(), "u1", relay.ConfigText)
	require.NoError(t, err)
	assert.Equal(t, "https://relay.internal/v1", cfg.BaseURL)
}

func TestModelForUnconfiguredUserGetsDefaults(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, BuiltinDefaults(), Options{})
	cfg, err := svc.ModelFor(context.Background(), "nobody", relay.ConfigText)
	require.NoError(t, err)
	assert.False(t, cfg.UserConfigured)
	assert.Equal(t, "deepseek", cfg.Platform)
	assert.Equal(t, "deepseek-chat", cfg.Model)
}

func TestModelForVisionAliasesToMultimodal(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, "u1", &UserDocument{
		Modalities: map[relay.ConfigKey]ModalitySetting{
			"vision": {Platform: "zhipu", ModelID: "glm-4v", APIKey: "k"},
		},
	})

	svc := NewService(store, BuiltinDefaults(), Options{})
	cfg, err := svc.ModelFor(context.Background(), "u1", relay.ConfigMultimodal)
	require.NoError(t, err)
	assert.True(t, cfg.UserConfigured)
	assert.Equal(t, "glm-4v", cfg.Model)
}

func TestFallbackForIsMarked(t *testing.T) {
	svc := NewService(newTestStore(t), BuiltinDefaults(), Options{})
	cfg := svc.FallbackFor(relay.ConfigVoice)
	assert.True(t, cfg.Fallback)
	assert.Equal(t, "siliconflow", cfg.Platform)
}

func TestDocumentCachedUntilTTL(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, "u1", &UserDocument{
		Modalities: map[relay.ConfigKey]ModalitySetting{
			relay.ConfigText: {Platform: "deepseek", ModelID: "old-model", APIKey: "k"},
		},
	})

	svc := NewService(store, BuiltinDefaults(), Options{CacheTTL: time.Minute})
	now := time.Now()
	svc.mem.now = func() time.Time { return now }

	ctx := context.Background()
	cfg, err := svc.ModelFor(ctx, "u1", relay.ConfigText)
	require.NoError(t, err)
	assert.Equal(t, "old-model", cfg.Model)

	// Update the store behind the cache's back.
	seedUser(t, store, "u1", &UserDocument{
		Modalities: map[relay.ConfigKey]ModalitySetting{
			relay.ConfigText: {Platform: "deepseek", ModelID: "new-model", APIKey: "k"},
		},
	})

	cfg, err = svc.ModelFor(ctx, "u1", relay.ConfigText)
	require.NoError(t, err)
	assert.Equal(t, "old-model", cfg.Model, "stale entry served before TTL")

	now = now.Add(2 * time.Minute)
	cfg, err = svc.ModelFor(ctx, "u1", relay.ConfigText)
	require.NoError(t, err)
	assert.Equal(t, "new-model", cfg.Model, "entry refreshed after TTL")

	stats := svc.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
}

func TestClearCacheForcesReload(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, "u1", &UserDocument{
		Modalities: map[relay.ConfigKey]ModalitySetting{
			relay.ConfigText: {Platform: "deepseek", ModelID: "m1", APIKey: "k"},
		},
	})

	svc := NewService(store, BuiltinDefaults(), Options{})
	ctx := context.Background()
	_, err := svc.ModelFor(ctx, "u1", relay.ConfigText)
	require.NoError(t, err)

	seedUser(t, store, "u1", &UserDocument{
		Modalities: map[relay.ConfigKey]ModalitySetting{
			relay.ConfigText: {Platform: "deepseek", ModelID: "m2", APIKey: "k"},
		},
	})
	svc.ClearCache(ctx, "u1")

	cfg, err := svc.ModelFor(ctx, "u1", relay.ConfigText)
	require.NoError(t, err)
	assert.Equal(t, "m2", cfg.Model)
}

func TestRedisLayerServesSecondInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	redisLayer := cache.NewManagerWithClient(client, cache.DefaultConfig(), nil)
	t.Cleanup(func() { redisLayer.Close() })

	store := newTestStore(t)
	seedUser(t, store, "u1", &UserDocument{
		Modalities: map[relay.ConfigKey]ModalitySetting{
			relay.ConfigText: {Platform: "deepseek", ModelID: "shared-model", APIKey: "k"},
		},
	})

	ctx := context.Background()
	svc1 := NewService(store, BuiltinDefaults(), Options{Redis: redisLayer})
	_, err := svc1.ModelFor(ctx, "u1", relay.ConfigText)
	require.NoError(t, err)

	// A second instance with an empty store must resolve from Redis.
	svc2 := NewService(newTestStore(t), BuiltinDefaults(), Options{Redis: redisLayer})
	cfg, err := svc2.ModelFor(ctx, "u1", relay.ConfigText)
	require.NoError(t, err)
	assert.Equal(t, "shared-model", cfg.Model)
}

func TestStoreLoadAbsentUser(t *testing.T) {
	store := newTestStore(t)
	doc, err := store.Load(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, doc)
}
