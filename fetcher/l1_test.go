package fetcher

import (
	"testing"
	"time"

	"github.com/vpnmerger/aggregator/pkg/models"
)

func TestL1CacheSetGetExpire(t *testing.T) {
	c := NewL1Cache(10)
	entry := &models.CacheEntry{Key: "k1", Value: []byte("v1"), ExpiresAt: time.Now().Add(time.Hour)}
	c.Set("k1", entry)

	got, ok := c.Get("k1")
	if !ok || string(got.Value) != "v1" {
		t.Fatalf("expected hit with v1, got %v %v", got, ok)
	}

	expired := &models.CacheEntry{Key: "k2", Value: []byte("v2"), ExpiresAt: time.Now().Add(-time.Second)}
	c.Set("k2", expired)
	if _, ok := c.Get("k2"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestL1CacheEvictsLRU(t *testing.T) {
	c := NewL1Cache(2)
	c.Set("a", &models.CacheEntry{Value: []byte("a"), ExpiresAt: time.Now().Add(time.Hour)})
	c.Set("b", &models.CacheEntry{Value: []byte("b"), ExpiresAt: time.Now().Add(time.Hour)})
	c.Get("a") // touch a, making b least recently used
	c.Set("c", &models.CacheEntry{Value: []byte("c"), ExpiresAt: time.Now().Add(time.Hour)})

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted as LRU")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive eviction")
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestL1CacheDeleteByTag(t *testing.T) {
	c := NewL1Cache(10)
	exp := time.Now().Add(time.Hour)
	c.Set("x", &models.CacheEntry{Value: []byte("x"), ExpiresAt: exp, Tags: map[string]struct{}{"sourceA": {}}})
	c.Set("y", &models.CacheEntry{Value: []byte("y"), ExpiresAt: exp, Tags: map[string]struct{}{"sourceB": {}}})

	n := c.DeleteByTag("sourceA")
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
	if _, ok := c.Get("x"); ok {
		t.Fatal("expected x removed")
	}
	if _, ok := c.Get("y"); !ok {
		t.Fatal("expected y to remain")
	}
}
