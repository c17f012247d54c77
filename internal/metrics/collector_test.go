package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterReuse(t *testing.T) {
	c := NewCollector()

	a := c.Counter("test_total", "help", "")
	b := c.Counter("test_total", "help", "")
	if a != b {
		t.Fatalf("same name and labels must return the same counter")
	}

	labeled := c.Counter("test_total", "help", `kind="x"`)
	if labeled == a {
		t.Fatalf("different labels must return a distinct counter")
	}

	a.Inc()
	a.Inc()
	if a.Value() != 2 {
		t.Fatalf("expected 2, got %d", a.Value())
	}
	if labeled.Value() != 0 {
		t.Fatalf("labeled counter must be independent, got %d", labeled.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	c := NewCollector()
	h := c.Histogram("test_seconds", "help", []float64{1, 5})

	h.Observe(0.5)
	h.Observe(3)
	h.Observe(10)

	if h.count != 3 {
		t.Fatalf("expected count 3, got %d", h.count)
	}
	if h.buckets[0].count != 1 || h.buckets[1].count != 2 {
		t.Fatalf("bucket counts wrong: %+v", h.buckets)
	}
}

func TestHandlerExposition(t *testing.T) {
	c := NewCollector()
	c.Counter("demo_total", "A demo counter", "").Inc()
	c.Counter("demo_labeled_total", "A labeled counter", `kind="x"`).Inc()
	c.Histogram("demo_seconds", "A demo histogram", []float64{1}).Observe(0.2)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type: %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE demo_total counter",
		"demo_total 1",
		`demo_labeled_total{kind="x"} 1`,
		"# TYPE demo_seconds histogram",
		`demo_seconds_bucket{le="1"} 1`,
		"demo_seconds_count 1",
		"agenthub_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q:\n%s", want, body)
		}
	}
}

func TestCountDecision(t *testing.T) {
	before := DecisionEscalate.Value()
	CountDecision("escalate_human")
	if DecisionEscalate.Value() != before+1 {
		t.Fatalf("escalation not counted")
	}

	noneBefore := DecisionNone.Value()
	CountDecision("something_else")
	if DecisionNone.Value() != noneBefore+1 {
		t.Fatalf("unknown decisions should count as no-match")
	}
}
