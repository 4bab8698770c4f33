package nsf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchAwards(t *testing.T) {
	t.Parallel()

	var gotQuery map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/awards.json" {
			t.Errorf("path = %s, want /awards.json", r.URL.Path)
		}
		gotQuery = make(map[string]string)
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":{"award":[
			{"id":"2301234","title":"Adaptive Sensor Networks"},
			{"id":"2301235","title":"Resilient Control Systems"}
		],"metadata":{"totalCount":"2"}}}`))
	}))
	defer ts.Close()

	client := NewClient(NewClientParams{BaseURL: ts.URL})
	records, total, err := client.FetchAwards(context.Background(), map[string]string{
		"pdPIName": "Jane Smith",
	})
	if err != nil {
		t.Fatalf("FetchAwards() error = %v", err)
	}

	if len(records) != 2 || total != 2 {
		t.Fatalf("got %d records, total %d; want 2 and 2", len(records), total)
	}
	if records[0]["id"] != "2301234" {
		t.Fatalf("first record = %v", records[0])
	}

	if gotQuery["pdPIName"] != "Jane Smith" {
		t.Fatalf("query = %v, missing pdPIName", gotQuery)
	}
	if gotQuery["rpp"] != "25" {
		t.Fatalf("rpp = %q, want default 25", gotQuery["rpp"])
	}
	if gotQuery["printFields"] != printFields {
		t.Fatalf("printFields = %q", gotQuery["printFields"])
	}
}

func TestFetchAwardsKeepsCallerOverrides(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("rpp"); got != "5" {
			t.Errorf("rpp = %q, want caller's 5", got)
		}
		w.Write([]byte(`{"response":{"award":[],"metadata":{"totalCount":0}}}`))
	}))
	defer ts.Close()

	client := NewClient(NewClientParams{BaseURL: ts.URL})
	if _, _, err := client.FetchAwards(context.Background(), map[string]string{"rpp": "5"}); err != nil {
		t.Fatalf("FetchAwards() error = %v", err)
	}
}

func TestFetchAwardsErrorStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewClient(NewClientParams{BaseURL: ts.URL})
	if _, _, err := client.FetchAwards(context.Background(), map[string]string{"id": "2301234"}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestParseTotalCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want int
	}{
		{float64(17), 17},
		{"17", 17},
		{"many", 0},
		{nil, 0},
	}
	for _, tc := range tests {
		if got := parseTotalCount(tc.in); got != tc.want {
			t.Errorf("parseTotalCount(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
