package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func delta(t *testing.T, collector prometheus.Collector, observe func()) float64 {
	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	after := testutil.ToFloat64(collector)
	return after - before
}

func TestHTTPRecords(t *testing.T) {
	start := time.Now().Add(-10 * time.Millisecond)

	if inc := delta(t, httpRequestsTotal.WithLabelValues(http.MethodGet, "200"), func() {
		AddRequest(http.MethodGet, http.StatusOK, start)
	}); inc != 1 {
		t.Fatalf("expected request counter increment, got %v", inc)
	}

	if inc := delta(t, httpErrorsTotal, AddError); inc != 1 {
		t.Fatalf("expected error counter increment, got %v", inc)
	}

	if inc := delta(t, httpPanicsTotal, AddPanic); inc != 1 {
		t.Fatalf("expected panic counter increment, got %v", inc)
	}
}

func TestNodeRecords(t *testing.T) {
	var m Node
	start := time.Now().Add(-time.Second)

	if inc := delta(t, miningTotal.WithLabelValues("success"), func() {
		m.ObserveMining(6, nil, start)
	}); inc != 1 {
		t.Fatalf("expected mining success increment, got %v", inc)
	}

	if got := testutil.ToFloat64(miningDifficulty); got != 6 {
		t.Fatalf("expected difficulty gauge 6, got %v", got)
	}

	if inc := delta(t, miningTotal.WithLabelValues("error"), func() {
		m.ObserveMining(7, errors.New("canceled"), start)
	}); inc != 1 {
		t.Fatalf("expected mining error increment, got %v", inc)
	}

	if inc := delta(t, replicationTotal.WithLabelValues("accepted"), func() {
		m.ObserveReplication("accepted")
	}); inc != 1 {
		t.Fatalf("expected replication increment, got %v", inc)
	}

	m.SetChainHeight("node-a", 42)
	if got := testutil.ToFloat64(chainHeight.WithLabelValues("node-a")); got != 42 {
		t.Fatalf("expected chain height 42, got %v", got)
	}
}

func TestStorageRecords(t *testing.T) {
	var m Storage
	start := time.Now().Add(-time.Millisecond)

	if inc := delta(t, storageTotal.WithLabelValues("save", "success"), func() {
		m.Observe("save", nil, start)
	}); inc != 1 {
		t.Fatalf("expected save success increment, got %v", inc)
	}

	if inc := delta(t, storageTotal.WithLabelValues("count", "error"), func() {
		m.Observe("count", errors.New("down"), start)
	}); inc != 1 {
		t.Fatalf("expected count error increment, got %v", inc)
	}
}
