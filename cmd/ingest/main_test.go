package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/linnemanlabs/quietnews/internal/pipeline"
)

func TestWriteResult(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	res := &pipeline.RunResult{RunID: "r-1", FetchedCount: 4, UniqueCount: 3, VitalClusters: 1}
	if err := writeResult(&buf, res); err != nil {
		t.Fatalf("writeResult: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got["ok"] != true {
		t.Errorf("ok = %v, want true", got["ok"])
	}
	if got["runId"] != "r-1" {
		t.Errorf("runId = %v, want r-1", got["runId"])
	}
	if got["uniqueCount"] != float64(3) {
		t.Errorf("uniqueCount = %v, want 3", got["uniqueCount"])
	}
}
