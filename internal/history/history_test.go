package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/haojie06/imagen-http/internal/model"
)

func newStore(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, cfg), mr
}

func generation(id, b64 string) model.Generation {
	return model.Generation{
		ID:        id,
		Prompt:    "prompt " + id,
		Image:     model.ImageResponse{B64JSON: b64},
		CreatedAt: time.Now().Unix(),
	}
}

func TestAppendAndList(t *testing.T) {
	s, _ := newStore(t, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		added, err := s.Append(ctx, "client", generation(fmt.Sprint(i), fmt.Sprintf("img-%d", i)))
		if err != nil || !added {
			t.Fatalf("append %d: added=%v err=%v", i, added, err)
		}
	}
	got, err := s.List(ctx, "client")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "0" || got[2].ID != "2" {
		t.Fatalf("unexpected history %+v", got)
	}
}

func TestAppendSkipsDuplicateImages(t *testing.T) {
	s, _ := newStore(t, Config{})
	ctx := context.Background()

	if added, _ := s.Append(ctx, "client", generation("a", "same")); !added {
		t.Fatal("first append skipped")
	}
	added, err := s.Append(ctx, "client", generation("b", "same"))
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Fatal("duplicate image appended")
	}
	if got, _ := s.List(ctx, "client"); len(got) != 1 {
		t.Fatalf("expected one entry, got %d", len(got))
	}
}

func TestAppendTrimsToMaxEntries(t *testing.T) {
	s, _ := newStore(t, Config{MaxEntries: 2})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.Append(ctx, "client", generation(fmt.Sprint(i), fmt.Sprintf("img-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.List(ctx, "client")
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "4" {
		t.Fatalf("expected the two newest entries, got %+v", got)
	}
	// a trimmed image may come back
	if added, _ := s.Append(ctx, "client", generation("5", "img-0")); !added {
		t.Fatal("trimmed image was treated as duplicate")
	}
}

func TestHistoryExpires(t *testing.T) {
	s, mr := newStore(t, Config{TTL: time.Hour})
	ctx := context.Background()
	s.Append(ctx, "client", generation("a", "img"))
	mr.FastForward(time.Hour)
	if got, _ := s.List(ctx, "client"); len(got) != 0 {
		t.Fatalf("expected an expired history, got %+v", got)
	}
}

func TestGetAndClear(t *testing.T) {
	s, _ := newStore(t, Config{})
	ctx := context.Background()
	s.Append(ctx, "client", generation("a", "img-a"))
	s.Append(ctx, "other", generation("b", "img-b"))

	got, err := s.Get(ctx, "client", "a")
	if err != nil || got.Prompt != "prompt a" {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := s.Get(ctx, "client", "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("histories must not leak between clients, got %v", err)
	}

	if err := s.Clear(ctx, "client"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.List(ctx, "client"); len(got) != 0 {
		t.Fatal("history not cleared")
	}
	if got, _ := s.List(ctx, "other"); len(got) != 1 {
		t.Fatal("clear removed another client's history")
	}
}

func TestConcurrentAppendOfSameImage(t *testing.T) {
	s, _ := newStore(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	var added int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.Append(ctx, "client", generation(fmt.Sprint(i), "same"))
			if err != nil {
				t.Errorf("append %d: %v", i, err)
			}
			if ok {
				atomic.AddInt32(&added, 1)
			}
		}(i)
	}
	wg.Wait()

	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if got, _ := s.List(ctx, "client"); len(got) != 1 {
		t.Fatalf("expected one entry, got %d", len(got))
	}
}
