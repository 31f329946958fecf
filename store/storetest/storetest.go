// Package storetest is a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/store"
)

// Run exercises s. Records are created under a fresh owner, so s may be a
// shared database.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()
	other := "owner-" + uuid.NewString()

	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	recs := []store.Record{
		{OwnerID: owner, FirstName: "Jane", LastName: "Doe", FileName: "Jane_Doe_2024-05-10.pdf", FilePath: "a.pdf", SizeBytes: 300, Fields: map[string]string{"firstName": "Jane"}, CreatedAt: base},
		{OwnerID: owner, FirstName: "John", LastName: "Roe", FileName: "John_Roe_2024-02-01.pdf", FilePath: "b.pdf", SizeBytes: 100, CreatedAt: base.AddDate(0, -3, 0)},
		{OwnerID: owner, FirstName: "Ana", LastName: "Doe", FileName: "Ana_Doe_2023-11-01.pdf", FilePath: "c.pdf", SizeBytes: 200, CreatedAt: base.AddDate(-1, 0, 0)},
		{OwnerID: other, FirstName: "Jane", LastName: "Doe", FileName: "Jane_Doe_2024-05-10.pdf", FilePath: "d.pdf", CreatedAt: base},
	}
	for i := range recs {
		if err := s.Create(ctx, &recs[i]); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if recs[i].ID == "" {
			t.Fatal("Create did not assign an id")
		}
	}

	t.Run("Get", func(t *testing.T) {
		got, err := s.Get(ctx, recs[0].ID)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(recs[0], got); diff != "" {
			t.Errorf("Get (-want +got):\n%s", diff)
		}
		if _, err := s.Get(ctx, uuid.NewString()); !errors.Is(err, pdfstamp.ErrNotFound) {
			t.Errorf("Get missing: %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		tests := []struct {
			name  string
			q     store.Query
			want  []string
			total int64
		}{
			{"newest first", store.Query{}, []string{recs[0].ID, recs[1].ID, recs[2].ID}, 3},
			{"by size", store.Query{Sort: "fileSizeBytes"}, []string{recs[1].ID, recs[2].ID, recs[0].ID}, 3},
			{"search", store.Query{SearchTerm: "doe"}, []string{recs[0].ID, recs[2].ID}, 2},
			{"filter", store.Query{Filters: map[string]string{"lastName": "Roe"}}, []string{recs[1].ID}, 1},
			{"paged", store.Query{Page: 2, Limit: 2}, []string{recs[2].ID}, 3},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, meta, err := s.List(ctx, owner, tt.q)
				if err != nil {
					t.Fatal(err)
				}
				ids := make([]string, 0, len(got))
				for _, r := range got {
					ids = append(ids, r.ID)
				}
				if diff := cmp.Diff(tt.want, ids); diff != "" {
					t.Errorf("ids (-want +got):\n%s", diff)
				}
				if meta.Total != tt.total {
					t.Errorf("total = %d, want %d", meta.Total, tt.total)
				}
			})
		}
	})

	t.Run("Stats", func(t *testing.T) {
		got, err := s.Stats(ctx, owner, base.AddDate(0, 0, 5))
		if err != nil {
			t.Fatal(err)
		}
		if want := (store.Stats{Total: 3, ThisMonth: 1, ThisYear: 2}); got != want {
			t.Errorf("Stats = %+v, want %+v", got, want)
		}
	})
}
