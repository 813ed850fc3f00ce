// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/threadchat/internal/model"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// clock returns a time source advancing one second per call.
func clock() func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n-1) * time.Second)
	}
}

type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

func factories() []storeFactory {
	return []storeFactory{
		{"file", func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileStore() error = %v", err)
			}
			s.now = clock()
			t.Cleanup(func() { s.Close() })
			return s
		}},
		{"sqlite", func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), SQLiteFile))
			if err != nil {
				t.Fatalf("NewSQLiteStore() error = %v", err)
			}
			s.now = clock()
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

func msgs(contents ...string) []model.Message {
	out := make([]model.Message, len(contents))
	for i, c := range contents {
		out[i] = model.Message{Role: model.RoleUser, Content: c, Timestamp: "2025-03-01T12:00:00.000Z"}
	}
	return out
}

// =============================================================================
// STORE CONTRACT
// =============================================================================

func TestStore_CreateAssignsUnixSecondsID(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			th, err := s.Save(context.Background(), SaveRequest{Name: "First", Messages: msgs("hi")})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if th.ID != "1740830400" {
				t.Errorf("ID = %q, want 1740830400", th.ID)
			}
			if th.Model != UnknownModel {
				t.Errorf("Model = %q, want %q", th.Model, UnknownModel)
			}
		})
	}
}

func TestStore_IDsDoNotCollide(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			fixed := func() time.Time { return base }
			switch st := s.(type) {
			case *FileStore:
				st.now = fixed
			case *SQLiteStore:
				st.now = fixed
			}

			a, _ := s.Save(context.Background(), SaveRequest{Name: "A", Messages: msgs("a")})
			b, _ := s.Save(context.Background(), SaveRequest{Name: "B", Messages: msgs("b")})
			if a.ID == b.ID {
				t.Fatalf("two creates in one second share id %q", a.ID)
			}
		})
	}
}

func TestStore_UpdateKeepsCreatedAt(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			ctx := context.Background()

			first, err := s.Save(ctx, SaveRequest{Name: "Draft", SavedAt: "2025-01-01T00:00:00.000Z", Model: "m", Messages: msgs("a")})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if first.CreatedAt != "2025-01-01T00:00:00.000Z" {
				t.Errorf("CreatedAt = %q, want client saved_at", first.CreatedAt)
			}

			second, err := s.Save(ctx, SaveRequest{ID: first.ID, Name: "Final", SavedAt: "2025-02-02T00:00:00.000Z", Model: "m", Messages: msgs("a", "b")})
			if err != nil {
				t.Fatalf("Save() update error = %v", err)
			}
			if second.ID != first.ID {
				t.Errorf("update changed id: %q -> %q", first.ID, second.ID)
			}
			if second.CreatedAt != first.CreatedAt {
				t.Errorf("CreatedAt changed on update: %q", second.CreatedAt)
			}

			got, err := s.Get(ctx, first.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Name != "Final" || len(got.Messages) != 2 || got.Model != "m" {
				t.Errorf("Get() = %+v", got)
			}
			if got.UpdatedAt == first.UpdatedAt {
				t.Error("UpdatedAt not refreshed")
			}
		})
	}
}

func TestStore_SaveWithUnknownIDCreatesIt(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			th, err := s.Save(context.Background(), SaveRequest{ID: "abc", Name: "X", Messages: msgs("a")})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if th.ID != "abc" {
				t.Errorf("ID = %q, want abc", th.ID)
			}
		})
	}
}

func TestStore_Validation(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			ctx := context.Background()

			if _, err := s.Save(ctx, SaveRequest{Name: "  "}); !errors.Is(err, ErrNameRequired) {
				t.Errorf("blank name: err = %v", err)
			}
			if _, err := s.Save(ctx, SaveRequest{ID: "../x", Name: "n"}); !errors.Is(err, ErrInvalidID) {
				t.Errorf("bad id: err = %v", err)
			}
			list, _ := s.List(ctx)
			if len(list) != 0 {
				t.Errorf("validation failures wrote %d threads", len(list))
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			for _, id := range []string{"404", "../etc/passwd", ""} {
				if _, err := s.Get(context.Background(), id); !errors.Is(err, ErrThreadNotFound) {
					t.Errorf("Get(%q) err = %v, want ErrThreadNotFound", id, err)
				}
			}
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			ctx := context.Background()

			empty, err := s.List(ctx)
			if err != nil || empty == nil || len(empty) != 0 {
				t.Fatalf("List() on empty store = %v, %v", empty, err)
			}

			for _, name := range []string{"old", "mid", "new"} {
				if _, err := s.Save(ctx, SaveRequest{Name: name, Messages: msgs(name)}); err != nil {
					t.Fatal(err)
				}
			}

			list, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != 3 {
				t.Fatalf("len = %d, want 3", len(list))
			}
			want := []string{"new", "mid", "old"}
			for i, w := range want {
				if list[i].Name != w {
					t.Errorf("list[%d] = %q, want %q", i, list[i].Name, w)
				}
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			ctx := context.Background()

			th, _ := s.Save(ctx, SaveRequest{Name: "Gone", Messages: msgs("a")})
			deleted, err := s.Delete(ctx, th.ID)
			if err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if deleted.Name != "Gone" {
				t.Errorf("deleted name = %q", deleted.Name)
			}
			if _, err := s.Get(ctx, th.ID); !errors.Is(err, ErrThreadNotFound) {
				t.Errorf("Get after delete err = %v", err)
			}
			if _, err := s.Delete(ctx, th.ID); !errors.Is(err, ErrThreadNotFound) {
				t.Errorf("second Delete err = %v", err)
			}
			list, _ := s.List(ctx)
			if len(list) != 0 {
				t.Errorf("list after delete has %d entries", len(list))
			}
		})
	}
}

// =============================================================================
// FILE STORE SPECIFICS
// =============================================================================

func TestFileStore_DiskFormat(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.now = clock()

	th, _ := s.Save(context.Background(), SaveRequest{Name: "N", Model: "m", Messages: msgs("hello")})
	data, err := os.ReadFile(filepath.Join(dir, th.ID+".json"))
	if err != nil {
		t.Fatalf("thread file missing: %v", err)
	}
	for _, key := range []string{`"id"`, `"name"`, `"created_at"`, `"updated_at"`, `"model"`, `"messages"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("file lacks %s: %s", key, data)
		}
	}
}

func TestFileStore_SkipsCorruptedFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Save(context.Background(), SaveRequest{Name: "ok", Messages: msgs("a")}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	s.invalidate()

	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "ok" {
		t.Errorf("List() = %+v, want only the readable thread", list)
	}
}

func TestFileStore_SeesExternalChanges(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if list, _ := s.List(context.Background()); len(list) != 0 {
		t.Fatalf("expected empty list")
	}

	record := `{"id":"77","name":"Hand made","created_at":"2025-01-01T00:00:00.000Z","updated_at":"","model":"x","messages":[]}`
	if err := os.WriteFile(filepath.Join(dir, "77.json"), []byte(record), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		list, _ := s.List(context.Background())
		if len(list) == 1 && list[0].ID == "77" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("externally written thread never appeared in the list")
}

func TestFileStore_DirectoryLock(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(dir); !errors.Is(err, ErrLocked) {
		t.Errorf("second store err = %v, want ErrLocked", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	again, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen after Close error = %v", err)
	}
	again.Close()
}

// =============================================================================
// HELPERS
// =============================================================================

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"1740830400", true},
		{"thread_a-1", true},
		{"", false},
		{"..", false},
		{"a/b", false},
		{"a.json", false},
	}
	for _, tc := range tests {
		if got := ValidID(tc.id); got != tc.want {
			t.Errorf("ValidID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindFile, false},
		{"file", KindFile, false},
		{" SQLite ", KindSQLite, false},
		{"redis", "", true},
	}
	for _, tc := range tests {
		got, err := ParseKind(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("ParseKind(%q) = %q, %v", tc.in, got, err)
		}
	}
}
