package postgres

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/orchestrator"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestConnStringDefaults(t *testing.T) {
	got := ConnString(envOf(nil))
	want := "host=127.0.0.1 port=5432 user=weavy dbname=weavy sslmode=disable"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConnStringFromEnv(t *testing.T) {
	got := ConnString(envOf(map[string]string{
		"PGHOST":     "db",
		"PGPORT":     "6543",
		"PGUSER":     "runner",
		"PGPASSWORD": "it's secret",
		"PGDATABASE": "workflows",
		"PGSSLMODE":  "require",
	}))
	want := `host=db port=6543 user=runner password='it\'s secret' dbname=workflows sslmode=require`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestQuote(t *testing.T) {
	for in, want := range map[string]string{
		"plain":  "plain",
		"":       "''",
		"a b":    "'a b'",
		`back\s`: `'back\\s'`,
	} {
		if got := quote(in); got != want {
			t.Errorf("quote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	if clampLimit(0, 50, 100) != 50 || clampLimit(500, 50, 100) != 100 || clampLimit(7, 50, 100) != 7 {
		t.Error("clampLimit bounds wrong")
	}
}

func TestResultEncodingRoundTrip(t *testing.T) {
	res := orchestrator.ExecutionResult{
		NodeID: "llm",
		Status: orchestrator.NodeSuccess,
		Input:  graph.Inputs{"prompt": "hello", "image_1": "https://x/a.png"},
		Output: "a cat",
	}
	input, output, err := encodeResult(res)
	if err != nil {
		t.Fatal(err)
	}

	var got orchestrator.ExecutionResult
	if err := decodeResult(&got, input, output); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(res.Input, got.Input); diff != "" {
		t.Errorf("input mismatch (-want +got):\n%s", diff)
	}
	if got.Output != "a cat" {
		t.Errorf("output = %v", got.Output)
	}
}

func TestNilOutputStoredAsNull(t *testing.T) {
	_, output, err := encodeResult(orchestrator.ExecutionResult{NodeID: "a", Status: orchestrator.NodeSkipped})
	if err != nil {
		t.Fatal(err)
	}
	if output != nil {
		t.Errorf("expected NULL output, got %s", output)
	}
}
