package cache

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, 0)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.DefaultTTL() != DefaultTTL {
		t.Errorf("DefaultTTL() = %v, want %v", manager.DefaultTTL(), DefaultTTL)
	}

	manager = NewManager(client, time.Hour)
	if manager.DefaultTTL() != time.Hour {
		t.Errorf("DefaultTTL() = %v, want 1h", manager.DefaultTTL())
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, 0)
}

func TestPurgePattern(t *testing.T) {
	pattern := purgePattern("https://host")
	if pattern != "restcsv:https%3A%2F%2Fhost:*" {
		t.Errorf("purgePattern() = %q", pattern)
	}

	tests := []struct {
		key   CacheKey
		match bool
	}{
		{CacheKey{URL: "https://host"}, true},
		{CacheKey{URL: "https://host", Params: url.Values{"page": {"2"}}, AuthScope: "ab12"}, true},
		{CacheKey{URL: "https://host:8080/x"}, false},
		{CacheKey{URL: "https://host/items"}, false},
		{CacheKey{URL: "https://hostile.example"}, false},
	}

	prefix := strings.TrimSuffix(pattern, "*")
	for _, tt := range tests {
		if got := strings.HasPrefix(tt.key.String(), prefix); got != tt.match {
			t.Errorf("pattern matches %q = %v, want %v", tt.key.String(), got, tt.match)
		}
	}
}
