package cache

import (
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestCacheGetSet(t *testing.T) {
	c := New[string, int](3)
	c.Set("ADT_A01", 1)
	c.Set("ORU_R01", 2)
	c.Set("ACK", 3)

	for key, want := range map[string]int{"ADT_A01": 1, "ORU_R01": 2, "ACK": 3} {
		if v, ok := c.Get(key); !ok || v != want {
			t.Errorf("Get(%s) = %d, %v; want %d, true", key, v, ok, want)
		}
	}
	if _, ok := c.Get("SIU_S12"); ok {
		t.Error("Get() of a missing key should miss")
	}

	c.Set("ACK", 30)
	if v, _ := c.Get("ACK"); v != 30 {
		t.Errorf("updated value = %d; want 30", v)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d; want 3", c.Len())
	}
}

func TestCacheEviction(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry was evicted")
	}
	if s := c.Stats(); s.Evicts != 1 || s.Size != 2 || s.Capacity != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	c.Delete("missing")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key still present")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Error("cache unusable after Clear")
	}
}

func TestCacheGetOrLoad(t *testing.T) {
	c := New[string, string](4)
	calls := 0
	load := func() (string, error) {
		calls++
		return "Male", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("0001|M", load)
		if err != nil || v != "Male" {
			t.Fatalf("GetOrLoad() = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times; want 1", calls)
	}

	failing := errors.New("table unavailable")
	for i := 0; i < 2; i++ {
		if _, err := c.GetOrLoad("9999|X", func() (string, error) {
			calls++
			return "", failing
		}); !errors.Is(err, failing) {
			t.Errorf("GetOrLoad() error = %v", err)
		}
	}
	if calls != 3 {
		t.Errorf("failed loads must not be cached; loader calls = %d", calls)
	}
	if _, ok := c.Get("9999|X"); ok {
		t.Error("failed load was stored")
	}
}

func TestCacheStats(t *testing.T) {
	c := New[int, int](10)
	c.Set(1, 1)
	c.Get(1)
	c.Get(1)
	c.Get(2)

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Sets != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if s.HitRate < 0.66 || s.HitRate > 0.67 {
		t.Errorf("HitRate = %v", s.HitRate)
	}
}

func TestCacheZeroCapacity(t *testing.T) {
	c := New[int, int](0)
	if got := c.Stats().Capacity; got != DefaultCapacity {
		t.Errorf("Capacity = %d; want %d", got, DefaultCapacity)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New[int, int](50)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Set(i, i*10)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = c.GetOrLoad(i%10, func() (int, error) { return i % 10 * 10, nil })
		}(i)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
	for i := 0; i < 100; i++ {
		if v, ok := c.Get(i); ok && v != i*10 {
			t.Errorf("Get(%d) = %d; want %d", i, v, i*10)
		}
	}
}

func BenchmarkCacheGet(b *testing.B) {
	c := New[string, int](1000)
	for i := 0; i < 1000; i++ {
		c.Set(strconv.Itoa(i), i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(strconv.Itoa(i % 1000))
	}
}

func BenchmarkCacheConcurrent(b *testing.B) {
	c := New[int, int](1000)
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%2 == 0 {
				c.Set(i%1000, i)
			} else {
				c.Get(i % 1000)
			}
			i++
		}
	})
}
