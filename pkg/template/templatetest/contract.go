// Package templatetest holds behaviour checks shared by every
// template.Repository implementation.
package templatetest

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"templateflow/pkg/template"
)

// Run exercises repo against the repository contract. repo must start empty.
func Run(t *testing.T, repo template.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		want := template.Template{ID: 1, Subject: "S", Body: "B"}
		if err := repo.Create(ctx, 1, want); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, ok, err := repo.Read(ctx, 1)
		if err != nil || !ok {
			t.Fatalf("read: ok=%v err=%v", ok, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("read mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("CreateOverwrites", func(t *testing.T) {
		want := template.Template{ID: 1, Subject: "S2", Body: "B2"}
		if err := repo.Create(ctx, 1, want); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, _, err := repo.Read(ctx, 1)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("read mismatch (-want +got):\n%s", diff)
		}
		if n, err := repo.Count(ctx); err != nil || n != 1 {
			t.Fatalf("expected count 1, got %d (%v)", n, err)
		}
	})

	t.Run("ReadMissing", func(t *testing.T) {
		_, ok, err := repo.Read(ctx, 99)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if ok {
			t.Fatal("expected ok=false for a missing id")
		}
	})

	t.Run("UpdateUpserts", func(t *testing.T) {
		want := template.Template{ID: 2, Subject: "new", Body: "record"}
		if err := repo.Update(ctx, 2, want); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, ok, err := repo.Read(ctx, 2)
		if err != nil || !ok {
			t.Fatalf("read: ok=%v err=%v", ok, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("read mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if err := repo.Delete(ctx, 42); err != nil {
				t.Fatalf("delete missing: %v", err)
			}
		}
		if n, err := repo.Count(ctx); err != nil || n != 2 {
			t.Fatalf("expected count 2, got %d (%v)", n, err)
		}
	})

	t.Run("SelectAfterDelete", func(t *testing.T) {
		if err := repo.Create(ctx, 3, template.Template{ID: 3, Subject: "three"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.Delete(ctx, 2); err != nil {
			t.Fatalf("delete: %v", err)
		}
		list, err := repo.Select(ctx, template.All())
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if diff := cmp.Diff([]int{1, 3}, ids(list)); diff != "" {
			t.Fatalf("ids mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("SelectPredicate", func(t *testing.T) {
		list, err := repo.Select(ctx, func(t template.Template) bool { return t.Subject == "three" })
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if diff := cmp.Diff([]int{3}, ids(list)); diff != "" {
			t.Fatalf("ids mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("KeyIDWins", func(t *testing.T) {
		want := template.Template{ID: 50, Subject: "keyed", Body: "by argument"}
		for _, write := range []func(context.Context, int, template.Template) error{repo.Create, repo.Update} {
			if err := write(ctx, 50, template.Template{ID: 51, Subject: want.Subject, Body: want.Body}); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, ok, err := repo.Read(ctx, 50)
			if err != nil || !ok {
				t.Fatalf("read: ok=%v err=%v", ok, err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("read mismatch (-want +got):\n%s", diff)
			}
		}
		if _, ok, _ := repo.Read(ctx, 51); ok {
			t.Fatal("the id inside the record must not become a key")
		}
		if err := repo.Delete(ctx, 50); err != nil {
			t.Fatalf("delete: %v", err)
		}
	})

	t.Run("ConcurrentWrites", func(t *testing.T) {
		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				if err := repo.Update(ctx, id, template.Template{ID: id}); err != nil {
					t.Errorf("update %d: %v", id, err)
				}
			}(100 + i)
		}
		wg.Wait()
		list, err := repo.Select(ctx, func(t template.Template) bool { return t.ID >= 100 })
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if len(list) != n {
			t.Fatalf("expected %d templates, got %d", n, len(list))
		}
	})
}

func ids(list []template.Template) []int {
	out := make([]int, 0, len(list))
	for _, t := range list {
		out = append(out, t.ID)
	}
	sort.Ints(out)
	return out
}
