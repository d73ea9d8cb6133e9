package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	return &buf
}

func TestNew_FunctionNameDimension(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "kitchen-lambda")
	r := New(Namespace)
	if r.dimensions["FunctionName"] != "kitchen-lambda" {
		t.Errorf("FunctionName = %q", r.dimensions["FunctionName"])
	}

	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	if _, ok := New(Namespace).dimensions["FunctionName"]; ok {
		t.Error("FunctionName set outside Lambda")
	}
}

func TestRecorder_Flush(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	buf := captureOutput(t)

	rec := New(Namespace).
		Dimension("Route", "generate").
		Dimension("Operation", "empty-room").
		Duration(GenerateLatencyMs, 1500*time.Millisecond).
		Count(CacheMiss).
		Property("requestId", "abc-123")
	rec.now = func() time.Time { return time.UnixMilli(1700000000000) }
	rec.Flush()

	var doc struct {
		AWS struct {
			Timestamp         int64 `json:"Timestamp"`
			CloudWatchMetrics []struct {
				Namespace  string     `json:"Namespace"`
				Dimensions [][]string `json:"Dimensions"`
				Metrics    []struct {
					Name string `json:"Name"`
					Unit string `json:"Unit"`
				} `json:"Metrics"`
			} `json:"CloudWatchMetrics"`
		} `json:"_aws"`
		Route     string  `json:"Route"`
		Operation string  `json:"Operation"`
		Latency   float64 `json:"GenerateLatencyMs"`
		Miss      float64 `json:"CacheMiss"`
		RequestID string  `json:"requestId"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if bytes.Count(buf.Bytes(), []byte("\n")) != 1 {
		t.Errorf("expected exactly one line, got %q", buf.String())
	}

	if doc.AWS.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d", doc.AWS.Timestamp)
	}
	cw := doc.AWS.CloudWatchMetrics[0]
	if cw.Namespace != Namespace {
		t.Errorf("Namespace = %q", cw.Namespace)
	}
	if got := cw.Dimensions[0]; len(got) != 2 || got[0] != "Operation" || got[1] != "Route" {
		t.Errorf("Dimensions = %v, want sorted [Operation Route]", got)
	}
	if len(cw.Metrics) != 2 || cw.Metrics[0].Name != CacheMiss || cw.Metrics[1].Unit != UnitMilliseconds {
		t.Errorf("Metrics = %+v", cw.Metrics)
	}
	if doc.Route != "generate" || doc.Operation != "empty-room" {
		t.Errorf("dimension values = %q, %q", doc.Route, doc.Operation)
	}
	if doc.Latency != 1500 || doc.Miss != 1 {
		t.Errorf("values = %v, %v", doc.Latency, doc.Miss)
	}
	if doc.RequestID != "abc-123" {
		t.Errorf("property = %q", doc.RequestID)
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	buf := captureOutput(t)
	New("Test").Dimension("Route", "x").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestRecorder_Chaining(t *testing.T) {
	rec := New("Test").
		Dimension("Op", "test").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Property("id", "xyz")

	if rec.dimensions["Op"] != "test" {
		t.Error("Dimension not recorded")
	}
	if rec.values["Duration"] != float64(100) || rec.values["Calls"] != float64(1) {
		t.Errorf("values = %v", rec.values)
	}
	if rec.metrics["Calls"].Unit != UnitCount {
		t.Errorf("Count unit = %q", rec.metrics["Calls"].Unit)
	}
	if rec.properties["id"] != "xyz" {
		t.Error("Property not recorded")
	}
}
