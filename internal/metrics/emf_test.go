package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestRecorder_FlushOutput(t *testing.T) {
	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rec := New(Namespace)
	rec.Dimension("Operation", "detection")
	rec.Metric("GeminiApiLatencyMs", 1234.5, UnitMilliseconds)
	rec.Metric("GeminiApiCalls", 1, UnitCount)
	rec.Property("icdKey", "icd-f84")
	rec.Flush()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	if doc["Operation"] != "detection" {
		t.Errorf("expected Operation dimension, got %v", doc["Operation"])
	}
	if doc["GeminiApiLatencyMs"] != 1234.5 {
		t.Errorf("expected latency 1234.5, got %v", doc["GeminiApiLatencyMs"])
	}
	if doc["icdKey"] != "icd-f84" {
		t.Errorf("expected icdKey property, got %v", doc["icdKey"])
	}

	aws, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected _aws directive in EMF output")
	}
	cwm, ok := aws["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwm) != 1 {
		t.Fatalf("expected exactly one CloudWatchMetrics entry")
	}
	first := cwm[0].(map[string]interface{})
	if first["Namespace"] != Namespace {
		t.Errorf("expected namespace %s, got %v", Namespace, first["Namespace"])
	}
}

func TestRecorder_EmptyFlushEmitsNothing(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	New(Namespace).Property("only", "properties").Flush()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if buf.Len() != 0 {
		t.Errorf("expected no output for recorder without metrics, got %q", buf.String())
	}
}
