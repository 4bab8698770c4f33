package queue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"awardgraph/pkg/common"
	"awardgraph/pkg/nsf"
	"awardgraph/pkg/store/memory"
)

func testAwardsServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestProcessIngestMessage(t *testing.T) {
	t.Parallel()

	ts := testAwardsServer(t, `{"response":{"award":[
		{"id":"2301234","title":"Adaptive Sensor Networks","pdPIName":"Jane Smith",
		 "awardeeName":"State University","startDate":"08/15/2023"},
		{"title":"No award number, should be dropped"}
	],"metadata":{"totalCount":2}}}`, http.StatusOK)

	client := nsf.NewClient(nsf.NewClientParams{BaseURL: ts.URL})
	graph := memory.NewStore(memory.NewStoreParams{})

	err := ProcessIngestMessage(context.Background(), client, graph,
		`{"message":"ingest","params":{"pdPIName":"Jane Smith"}}`)
	if err != nil {
		t.Fatalf("ProcessIngestMessage() error = %v", err)
	}

	if _, ok := graph.NodeByKey(common.NodeAward, "2301234"); !ok {
		t.Fatal("fetched award was not upserted")
	}
	// The record without an award number is isolated, not fatal.
	if got := len(graph.NodesByType(common.NodeAward)); got != 1 {
		t.Fatalf("award nodes = %d, want 1", got)
	}
}

func TestProcessIngestMessageMalformedBody(t *testing.T) {
	t.Parallel()

	graph := memory.NewStore(memory.NewStoreParams{})
	client := nsf.NewClient(nsf.NewClientParams{})

	if err := ProcessIngestMessage(context.Background(), client, graph, "{not json"); err == nil {
		t.Fatal("expected error for malformed message body")
	}
	if err := ProcessIngestMessage(context.Background(), client, graph, `{"message":"x"}`); err == nil {
		t.Fatal("expected error for message without parameters")
	}
}

func TestProcessIngestMessageFetchFailure(t *testing.T) {
	t.Parallel()

	ts := testAwardsServer(t, "", http.StatusServiceUnavailable)
	client := nsf.NewClient(nsf.NewClientParams{BaseURL: ts.URL})
	graph := memory.NewStore(memory.NewStoreParams{})

	err := ProcessIngestMessage(context.Background(), client, graph,
		`{"message":"ingest","params":{"id":"2301234"}}`)
	if err == nil {
		t.Fatal("expected error so the message is retried")
	}
}
