package containers

import (
	"errors"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
)

type testKey struct {
	hash uint64
	id   int
}

func (k testKey) Hash() uint64 { return k.hash }
func (k testKey) Eq(other testKey) bool { return k.id == other.id }

func TestObjectCacheGetOrCreate(t *testing.T) {
	c := NewObjectCache[testKey, string]()
	calls := 0
	create := func(k testKey) (string, error) {
		calls++
		return "v", nil
	}

	a, err := c.GetOrCreate(testKey{hash: 1, id: 1}, create)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	b, _ := c.GetOrCreate(testKey{hash: 1, id: 1}, create)
	if a != b {
		t.Error("equal keys must return the same value pointer")
	}
	if calls != 1 {
		t.Errorf("constructor calls = %d, want 1", calls)
	}

	// same hash, different identity: chained in one bucket
	d, _ := c.GetOrCreate(testKey{hash: 1, id: 2}, create)
	if d == a {
		t.Error("colliding unequal keys must not share a value")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 2 || s.Constructions != 2 || s.Entries != 2 {
		t.Errorf("Stats() = %+v", s)
	}
	if _, ok := c.Find(testKey{hash: 9, id: 9}); ok {
		t.Error("Find() on missing key returned a value")
	}
}

func TestObjectCacheFailedConstruction(t *testing.T) {
	c := NewObjectCache[testKey, int]()
	boom := errors.New("boom")

	if _, err := c.GetOrCreate(testKey{id: 1}, func(testKey) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("GetOrCreate() error = %v, want %v", err, boom)
	}
	if c.Len() != 0 {
		t.Errorf("failed construction inserted an entry")
	}
	v, err := c.GetOrCreate(testKey{id: 1}, func(testKey) (int, error) { return 7, nil })
	if err != nil || *v != 7 {
		t.Errorf("retry after failure = %v, %v", v, err)
	}
}

func TestObjectCacheConcurrentSingleConstruction(t *testing.T) {
	c := NewObjectCache[testKey, int]()
	var built atomic.Int32
	results := make([]*int, 32)

	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			v, err := c.GetOrCreate(testKey{hash: 42, id: 42}, func(testKey) (int, error) {
				built.Add(1)
				return 42, nil
			})
			results[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if built.Load() != 1 {
		t.Errorf("constructions = %d, want 1", built.Load())
	}
	for i, r := range results {
		if r != results[0] {
			t.Errorf("result %d differs from result 0", i)
		}
	}
}

func TestObjectCacheClear(t *testing.T) {
	c := NewObjectCache[testKey, int]()
	for i := 0; i < 3; i++ {
		_, _ = c.GetOrCreate(testKey{hash: uint64(i), id: i}, func(k testKey) (int, error) { return k.id, nil })
	}

	seen := 0
	c.Range(func(testKey, *int) bool { seen++; return true })
	if seen != 3 {
		t.Errorf("Range visited %d entries, want 3", seen)
	}

	released := 0
	c.Clear(func(testKey, *int) { released++ })
	if released != 3 || c.Len() != 0 {
		t.Errorf("Clear released %d, Len() = %d", released, c.Len())
	}
}
