package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/atmx/paper-trader/internal/store"
)

// testStore runs the behaviour every Store implementation must share.
func testStore(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	key := "papertrader:test:" + t.Name()

	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("delete of missing key should succeed: %v", err)
	}
	if _, err := st.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first := []byte(`{"version":1,"cash":100}`)
	if err := st.Put(ctx, key, first); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(first) {
		t.Errorf("expected %s, got %s", first, got)
	}

	second := []byte(`{"version":1,"cash":250.5}`)
	if err := st.Put(ctx, key, second); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = st.Get(ctx, key)
	if string(got) != string(second) {
		t.Errorf("expected overwrite %s, got %s", second, got)
	}

	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, store.NewMemoryStore())
}

func TestMemoryStore_DoesNotRetainSlices(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	blob := []byte("abc")
	ms.Put(ctx, "k", blob)
	blob[0] = 'X'

	got, _ := ms.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("store retained caller slice: %s", got)
	}
	got[1] = 'Y'
	again, _ := ms.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("store returned internal slice: %s", again)
	}
}

func TestFileStore(t *testing.T) {
	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "nested", "data"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	testStore(t, fs)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs1, _ := store.NewFileStore(dir)
	if err := fs1.Put(ctx, "user/1:progress", []byte(`{"xp":3}`)); err != nil {
		t.Fatalf("put: %v", err)
	}

	fs2, _ := store.NewFileStore(dir)
	got, err := fs2.Get(ctx, "user/1:progress")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(got) != `{"xp":3}` {
		t.Errorf("unexpected blob %s", got)
	}

	// Only the data file remains; no temp files are left behind.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected exactly one file in store dir, got %d", len(entries))
	}
}

func TestFileStore_ConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	fs, _ := store.NewFileStore(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fs.Put(ctx, "k", []byte(`{"ok":true}`)); err != nil {
				t.Errorf("put: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := fs.Get(ctx, "k")
	if err != nil || string(got) != `{"ok":true}` {
		t.Errorf("unexpected result %s, %v", got, err)
	}
}

// --- Integration (run when the backing service is configured) ---

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	ps := store.NewPostgresStore(pool)
	for i := 0; i < 2; i++ {
		if err := ps.EnsureSchema(ctx); err != nil {
			t.Fatalf("schema (run %d): %v", i+1, err)
		}
	}
	testStore(t, ps)

	// Key order and spacing must survive; a JSONB column would rewrite both.
	raw := []byte(`{"version":1,  "cash":100.00,"achievements":[]}`)
	key := "papertrader:test:verbatim"
	defer ps.Delete(ctx, key)
	if err := ps.Put(ctx, key, raw); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := ps.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("blob rewritten: stored %s, got %s", raw, got)
	}
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Disconnect(context.Background())

	testStore(t, store.NewMongoStore(client.Database("papertrader_test")))
}

func TestCachedStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	primary := store.NewMemoryStore()
	cs := store.NewCachedStore(primary, rdb, time.Minute)
	testStore(t, cs)

	// A write through the wrapper must not leave a stale cached read.
	ctx := context.Background()
	cs.Put(ctx, "stale", []byte("v1"))
	cs.Get(ctx, "stale")
	cs.Put(ctx, "stale", []byte("v2"))
	got, _ := cs.Get(ctx, "stale")
	if string(got) != "v2" {
		t.Errorf("expected v2 after overwrite, got %s", got)
	}
	cs.Delete(ctx, "stale")
}
