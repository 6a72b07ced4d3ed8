package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	logx "eventsched/pkg/logx"

	"github.com/alicebob/miniredis/v2"
)

type doc struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{"memory": NewMemory()}

	fs, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "data.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	out["file"] = fs

	ss, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "data.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	out["sqlite"] = ss

	mr := miniredis.RunT(t)
	rs, err := Open(Config{Driver: "redis", Redis: RedisConfig{Addr: mr.Addr()}}, logx.Nop())
	if err != nil {
		t.Fatalf("open redis store: %v", err)
	}
	out["redis"] = rs

	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

func decode(t *testing.T, raw json.RawMessage) doc {
	t.Helper()
	var d doc
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return d
}

func TestStoreCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, s := range openDrivers(t) {
		name, s := name, s
		t.Run(name, func(t *testing.T) {
			if err := s.Create(ctx, "things", "a", doc{ID: "a", Status: "ACTIVE", Note: "x"}); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := s.Create(ctx, "things", "a", doc{ID: "a"}); !errors.Is(err, ErrExists) {
				t.Fatalf("duplicate Create err = %v, want ErrExists", err)
			}

			if err := s.Update(ctx, "things", "a", Patch{"status": "COMPLETED", "note": nil}); err != nil {
				t.Fatalf("Update: %v", err)
			}
			raw, err := s.Get(ctx, "things", "a")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			got := decode(t, raw)
			if got.Status != "COMPLETED" || got.Note != "" || got.ID != "a" {
				t.Fatalf("after patch = %+v", got)
			}

			if err := s.Update(ctx, "things", "missing", Patch{"status": "x"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Update missing err = %v, want ErrNotFound", err)
			}
			if _, err := s.Get(ctx, "things", "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get missing err = %v, want ErrNotFound", err)
			}

			if err := s.Delete(ctx, "things", "a"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, "things", "a"); err != nil {
				t.Fatalf("Delete twice: %v", err)
			}
			if _, err := s.Get(ctx, "things", "a"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get deleted err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, s := range openDrivers(t) {
		name, s := name, s
		t.Run(name, func(t *testing.T) {
			for _, d := range []doc{{ID: "c", Status: "ACTIVE"}, {ID: "a", Status: "ACTIVE"}, {ID: "b", Status: "COMPLETED"}} {
				if err := s.Create(ctx, "things", d.ID, d); err != nil {
					t.Fatalf("Create %s: %v", d.ID, err)
				}
			}
			if err := s.Create(ctx, "other", "z", doc{ID: "z", Status: "ACTIVE"}); err != nil {
				t.Fatalf("Create other: %v", err)
			}

			active, err := s.Query(ctx, "things", func(raw json.RawMessage) bool {
				var d doc
				return json.Unmarshal(raw, &d) == nil && d.Status == "ACTIVE"
			})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			var ids []string
			for _, raw := range active {
				ids = append(ids, decode(t, raw).ID)
			}
			if strings.Join(ids, ",") != "a,c" {
				t.Fatalf("active ids = %v, want [a c]", ids)
			}

			all, err := s.Query(ctx, "things", nil)
			if err != nil {
				t.Fatalf("Query all: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("len(all) = %d, want 3", len(all))
			}
		})
	}
}

func TestFileStoreReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.json")
	cfg := Config{Driver: "file", Path: path}

	s, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Create(ctx, "things", "a", doc{ID: "a", Status: "ACTIVE"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, "things", "b", doc{ID: "b", Status: "ACTIVE"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Update(ctx, "things", "a", Patch{"status": "COMPLETED"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Delete(ctx, "things", "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Create(ctx, "things", "c", doc{ID: "c"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Create after close err = %v, want ErrClosed", err)
	}

	s2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	raw, err := s2.Get(ctx, "things", "a")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got := decode(t, raw); got.Status != "COMPLETED" {
		t.Fatalf("status after reopen = %q", got.Status)
	}
	if _, err := s2.Get(ctx, "things", "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted record survived reopen: %v", err)
	}
}

func TestMergePatch(t *testing.T) {
	t.Parallel()
	out, err := mergePatch(json.RawMessage(`{"a":1,"b":"x","c":true}`), Patch{"a": 2, "b": nil, "d": []string{"y"}})
	if err != nil {
		t.Fatalf("mergePatch: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["a"] != float64(2) {
		t.Fatalf("a = %v", m["a"])
	}
	if _, ok := m["b"]; ok {
		t.Fatal("b should be removed")
	}
	if m["c"] != true {
		t.Fatalf("c = %v", m["c"])
	}
	if d, ok := m["d"].([]any); !ok || len(d) != 1 || d[0] != "y" {
		t.Fatalf("d = %v", m["d"])
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "cassandra"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for file driver without path")
	}
}
