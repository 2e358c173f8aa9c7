package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/albertocavalcante/go-modrt/resource"
)

func implementations(t *testing.T) map[string]func(t *testing.T) Storage {
	return map[string]func(t *testing.T) Storage{
		"memory": func(*testing.T) Storage { return NewMemory() },
		"fs": func(t *testing.T) Storage {
			s, err := NewFS(filepath.Join(t.TempDir(), "area"))
			if err != nil {
				t.Fatalf("NewFS() error = %v", err)
			}
			return s
		},
	}
}

func TestStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, open := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := open(t)
			content := resource.MapContent{
				"META-INF/MANIFEST.MF": []byte("Bundle-SymbolicName: a\n"),
				"p/A.class":            []byte("class bytes"),
			}
			rec := BundleRecord{
				ID:         3,
				Location:   "file:a.jar",
				StartLevel: 2,
				Autostart:  AutostartDeclared,
				Headers:    map[string]string{"Bundle-SymbolicName": "a"},
			}
			h, err := s.PersistRevision(ctx, rec, content)
			if err != nil {
				t.Fatalf("PersistRevision() error = %v", err)
			}

			recs, err := s.LoadPersisted(ctx)
			if err != nil {
				t.Fatalf("LoadPersisted() error = %v", err)
			}
			if len(recs) != 1 || recs[0].Handle != h || recs[0].Autostart != AutostartDeclared || recs[0].StartLevel != 2 {
				t.Fatalf("LoadPersisted() = %+v, want the saved record with handle %s", recs, h)
			}
			if got := recs[0].Headers["Bundle-SymbolicName"]; got != "a" {
				t.Errorf("Headers[Bundle-SymbolicName] = %q, want a", got)
			}

			c, err := s.OpenContent(ctx, h)
			if err != nil {
				t.Fatalf("OpenContent() error = %v", err)
			}
			data, err := c.ReadFile("p/A.class")
			if err != nil || string(data) != "class bytes" {
				t.Errorf("ReadFile(p/A.class) = %q, %v", data, err)
			}

			rec = recs[0]
			rec.StartLevel = 5
			if err := s.SaveBundle(ctx, rec); err != nil {
				t.Fatalf("SaveBundle() error = %v", err)
			}
			if err := s.SaveBundle(ctx, BundleRecord{ID: 99}); !errors.Is(err, ErrNotFound) {
				t.Errorf("SaveBundle(unknown) error = %v, want ErrNotFound", err)
			}

			if err := s.SaveState(ctx, FrameworkState{UUID: "u", NextID: 4, StartLevel: 6}); err != nil {
				t.Fatalf("SaveState() error = %v", err)
			}
			st, ok, err := s.LoadState(ctx)
			if err != nil || !ok || st.NextID != 4 || st.UUID != "u" {
				t.Errorf("LoadState() = %+v, %v, %v", st, ok, err)
			}

			if err := s.Remove(ctx, 3); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			if _, err := s.OpenContent(ctx, h); !errors.Is(err, ErrNotFound) {
				t.Errorf("OpenContent() after Remove error = %v, want ErrNotFound", err)
			}

			if err := s.Clean(ctx); err != nil {
				t.Fatalf("Clean() error = %v", err)
			}
			if _, ok, _ := s.LoadState(ctx); ok {
				t.Error("LoadState() after Clean found a state")
			}
		})
	}
}

func TestFSSharedContent(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS() error = %v", err)
	}
	content := resource.MapContent{"x": []byte("same")}
	h1, err := s.PersistRevision(ctx, BundleRecord{ID: 1, Location: "a"}, content)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.PersistRevision(ctx, BundleRecord{ID: 2, Location: "b"}, content)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("handles differ for equal content: %s, %s", h1, h2)
	}
	if err := s.Remove(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.OpenContent(ctx, h2); err != nil {
		t.Errorf("content still referenced by bundle 2 was removed: %v", err)
	}
}

func TestFSDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h, err := s.PersistRevision(ctx, BundleRecord{ID: 1}, resource.MapContent{"x": []byte("original")})
	if err != nil {
		t.Fatal(err)
	}
	other, _, err := packContent(resource.MapContent{"x": []byte("tampered")})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.contentPath(h), other, filePermissions); err != nil {
		t.Fatal(err)
	}
	if _, err := s.OpenContent(ctx, h); err == nil {
		t.Error("OpenContent() accepted content that does not match its digest")
	}
}

func TestFSPermissions(t *testing.T) {
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveState(context.Background(), FrameworkState{UUID: "u"}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(s.Dir(), stateFile))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != filePermissions {
		t.Errorf("state file mode = %o, want %o", perm, filePermissions)
	}
}

func TestFailing(t *testing.T) {
	errBoom := errors.New("boom")
	s := NewFailing(errBoom)
	if _, err := s.PersistRevision(context.Background(), BundleRecord{ID: 1}, nil); !errors.Is(err, errBoom) {
		t.Errorf("PersistRevision() error = %v, want boom", err)
	}
	if recs, err := s.LoadPersisted(context.Background()); err != nil || len(recs) != 0 {
		t.Errorf("LoadPersisted() = %v, %v; want empty", recs, err)
	}
}
