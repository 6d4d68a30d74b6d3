package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/scrypster/lineage/pkg/types"
)

func summaryFixture(id string) types.EntitySummary {
	return types.EntitySummary{
		UniqueID:    id,
		Description: "Asset " + id,
		Location:    "Greenwich",
		Category:    "Paintings",
	}
}

func detailsFixture(id string) types.EntityDetails {
	return types.EntityDetails{
		UniqueID:       id,
		OwnerID:        "42",
		AccessDetails:  "By appointment",
		ContactAddress: "The Hall, LONDON, EC4A 1LT",
	}
}

// memorySink collects appended records.
type memorySink struct {
	mu      sync.Mutex
	records []types.RawRecord
}

func (s *memorySink) AppendRawRecord(_ context.Context, rec types.RawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) ids() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, r := range s.records {
		out[r.UniqueID] = true
	}
	return out
}

func listingHTML(ids ...string) string {
	page := "<html><body><table>"
	for _, id := range ids {
		page += fmt.Sprintf(`<tr align="left" valign="top">
			<td><a href="detail.cfm?ID=%s">view</a></td>
			<td>Asset %s</td><td>Greenwich</td><td>Paintings</td>
		</tr>`, id, id)
	}
	return page + "</table></body></html>"
}

func detailHTML(owner string) string {
	return fmt.Sprintf(`<html><body>
		<a href="listing.cfm?Owner=%s&x=1">owner</a>
		<table><tr><td>Access Details:</td><td>By appointment</td></tr></table>
	</body></html>`, owner)
}

// newTestHarvester spins up an httptest server serving a listing of the
// given ids and a detail page per id, plus a harvester pointed at it.
func newTestHarvester(t *testing.T, ids []string, failDetail map[string]bool) (*Harvester, *memorySink) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingHTML(ids...))
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("ID")
		if failDetail[id] {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, detailHTML("42"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	fetcher := NewFetcher(FetcherConfig{
		RequestsPerSecond: 1000,
		MaxRetries:        2,
		BaseDelay:         time.Millisecond,
	})

	sink := &memorySink{}
	harvester := New(fetcher, sink, HarvesterConfig{
		SummaryURL:        server.URL + "/listing",
		DetailURLTemplate: server.URL + "/detail?ID=%s",
		Concurrency:       3,
		DetailDelay:       time.Millisecond,
	})
	return harvester, sink
}

func TestRun_PersistsEveryEntity(t *testing.T) {
	harvester, sink := newTestHarvester(t, []string{"1", "2", "3"}, nil)

	result, err := harvester.Run(context.Background(), time.Now(), nil, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.SummariesFound != 3 || result.DetailsFetched != 3 || result.Errors != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	ids := sink.ids()
	for _, id := range []string{"1", "2", "3"} {
		if !ids[id] {
			t.Errorf("entity %s was not persisted", id)
		}
	}

	// Merged records carry both summary and detail fields.
	rec := sink.records[0]
	if rec.Get(types.FieldDescription) == "" || rec.Get(types.FieldOwnerID) != "42" {
		t.Errorf("record missing merged fields: %+v", rec.Fields)
	}
}

func TestRun_SkipsRecentlyHarvested(t *testing.T) {
	harvester, sink := newTestHarvester(t, []string{"1", "2", "3"}, nil)

	result, err := harvester.Run(context.Background(), time.Now(),
		map[string]bool{"2": true}, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Skipped != 1 || result.DetailsFetched != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
	if sink.ids()["2"] {
		t.Error("skipped entity should not be persisted")
	}
}

func TestRun_Limit(t *testing.T) {
	harvester, sink := newTestHarvester(t, []string{"1", "2", "3", "4"}, nil)

	result, err := harvester.Run(context.Background(), time.Now(), nil, 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.DetailsFetched != 2 {
		t.Errorf("expected 2 details with limit, got %d", result.DetailsFetched)
	}
	if len(sink.ids()) != 2 {
		t.Errorf("expected 2 persisted entities, got %d", len(sink.ids()))
	}
}

func TestRun_DetailFailurePersistsSummaryFields(t *testing.T) {
	harvester, sink := newTestHarvester(t, []string{"1", "2"},
		map[string]bool{"2": true})

	result, err := harvester.Run(context.Background(), time.Now(), nil, 0)
	if err != nil {
		t.Fatalf("Run should tolerate per-entity failures: %v", err)
	}

	if result.DetailsFetched != 1 || result.Errors != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	// The failed entity still lands in the batch with its listing fields,
	// just without the detail page fields.
	if !sink.ids()["1"] || !sink.ids()["2"] {
		t.Errorf("unexpected persisted set: %v", sink.ids())
	}
	for _, rec := range sink.records {
		if rec.UniqueID != "2" {
			continue
		}
		if rec.Get(types.FieldDescription) != "Asset 2" {
			t.Errorf("summary fields missing from failed entity: %+v", rec.Fields)
		}
		if rec.Get(types.FieldOwnerID) != "" {
			t.Errorf("detail fields should be empty on failure: %+v", rec.Fields)
		}
	}
}

func TestFetcher_RetriesThenFails(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewFetcher(FetcherConfig{
		RequestsPerSecond: 1000,
		MaxRetries:        3,
		BaseDelay:         time.Millisecond,
	})

	_, err := fetcher.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Status != http.StatusInternalServerError {
		t.Errorf("expected FetchError with status 500, got %v", err)
	}
	if hits != 3 {
		t.Errorf("expected 3 attempts, got %d", hits)
	}
	if fetcher.ErrorCount() != 1 {
		t.Errorf("expected 1 recorded error, got %d", fetcher.ErrorCount())
	}
}
