package counter

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryStoreIncrement(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := s.Increment(ctx, "/hello")
		if err != nil {
			t.Fatal(err)
		}
		if n != i {
			t.Errorf("Increment #%d = %d", i, n)
		}
	}

	if n, _ := s.Get(ctx, "/hello"); n != 3 {
		t.Errorf("Get = %d, want 3", n)
	}
	if n, _ := s.Get(ctx, "/unseen"); n != 0 {
		t.Errorf("Get(unseen) = %d, want 0", n)
	}
}

func TestMemoryStoreConcurrentIncrements(t *testing.T) {
	s := NewMemoryStore()
	s.Set("/hello", 7)

	const workers, perWorker = 50, 40
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Increment(context.Background(), "/hello")
			}
		}()
	}
	wg.Wait()

	n, _ := s.Get(context.Background(), "/hello")
	if want := int64(7 + workers*perWorker); n != want {
		t.Errorf("count = %d, want %d", n, want)
	}
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	s.Set("/a", 1)
	s.Set("/b", 5)
	s.Set("/c", 5)
	s.Set("/d", 3)

	got, err := s.List(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []Record{{"/b", 5}, {"/c", 5}, {"/d", 3}, {"/a", 1}}
	if len(got) != len(want) {
		t.Fatalf("List = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	got, _ = s.List(context.Background(), 2)
	if len(got) != 2 || got[0].Path != "/b" {
		t.Errorf("List(2) = %v", got)
	}
}
