//go:build integration

package client

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/restcsv/internal/testutil"
	"github.com/Sternrassler/restcsv/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		redisContainer.Terminate(ctx)
	}

	return redisClient, cleanup
}

func TestRequest_Integration_CacheHit(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/items", testutil.NewJSONResponse([]any{map[string]any{"id": 1}}))

	c, err := New(Config{
		URL:   mock.URL() + "/items",
		Cache: cache.NewManager(redisClient, time.Minute),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	params := url.Values{"page": []string{"1"}}

	for i := 0; i < 3; i++ {
		payload, err := c.Request(ctx, params)
		if err != nil {
			t.Fatalf("Request %d error = %v", i, err)
		}
		if items, ok := payload.([]any); !ok || len(items) != 1 {
			t.Fatalf("Request %d payload = %#v", i, payload)
		}
	}

	if mock.GetRequestCount() != 1 {
		t.Errorf("Request count = %d, want 1 (later requests served from cache)", mock.GetRequestCount())
	}

	// Different params bypass the cached entry
	if _, err := c.Request(ctx, url.Values{"page": []string{"2"}}); err != nil {
		t.Fatalf("Request page 2 error = %v", err)
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("Request count = %d, want 2", mock.GetRequestCount())
	}
}

func TestRequest_Integration_TokenScopesCache(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/me", testutil.NewJSONResponse(map[string]any{"user": "x"}))

	manager := cache.NewManager(redisClient, time.Minute)
	ctx := context.Background()

	for _, token := range []string{"token-a", "token-b"} {
		c, err := New(Config{URL: mock.URL() + "/me", AccessToken: token, Cache: manager})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, err := c.Request(ctx, nil); err != nil {
			t.Fatalf("Request() error = %v", err)
		}
	}

	if mock.GetRequestCount() != 2 {
		t.Errorf("Request count = %d, want 2 (one per token)", mock.GetRequestCount())
	}
}
