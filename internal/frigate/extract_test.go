package frigate

import (
	"reflect"
	"strings"
	"testing"
)

const newPayload = `{
  "type": "new",
  "before": {},
  "after": {
    "id": "1700000000.123-abc",
    "camera": "driveway",
    "label": "animal",
    "sub_label": "cat",
    "top_score": 0.70117,
    "score": 0.64111,
    "start_time": 1700000000.12,
    "motion_score": 12.5,
    "has_snapshot": true,
    "has_clip": false,
    "current_zones": ["back_step", "front_yard"],
    "entered_zones": ["back_step"],
    "data": {"score": 0.81055, "top_score": 0.84717}
  }
}`

func TestExtractNew(t *testing.T) {
	f, ok := Extract([]byte(newPayload))
	if !ok {
		t.Fatal("extraction should succeed")
	}

	if f.Type != "new" {
		t.Errorf("type = %q, want new", f.Type)
	}
	if f.Camera != "driveway" {
		t.Errorf("camera = %q, want driveway", f.Camera)
	}
	if f.ID != "1700000000.123-abc" {
		t.Errorf("id = %q", f.ID)
	}
	if f.Label != "animal" || f.SubLabel != "cat" {
		t.Errorf("label = %q sub_label = %q", f.Label, f.SubLabel)
	}
	if f.EffectiveLabel() != "cat" {
		t.Errorf("effective label = %q, want cat", f.EffectiveLabel())
	}
	// nested data.score wins over top-level score/top_score
	if f.Score != 0.81055 {
		t.Errorf("score = %v, want 0.81055", f.Score)
	}
	if f.MotionScore != 12.5 {
		t.Errorf("motion_score = %v", f.MotionScore)
	}
	if !f.HasSnapshot || f.HasClip {
		t.Errorf("has_snapshot = %v has_clip = %v", f.HasSnapshot, f.HasClip)
	}
}

func TestExtractZoneArrays(t *testing.T) {
	f, ok := Extract([]byte(newPayload))
	if !ok {
		t.Fatal("extraction should succeed")
	}

	// must yield the full zone names, not single-character tokens
	if !reflect.DeepEqual(f.CurrentZones, []string{"back_step", "front_yard"}) {
		t.Errorf("current_zones = %v", f.CurrentZones)
	}
	if !reflect.DeepEqual(f.EnteredZones, []string{"back_step"}) {
		t.Errorf("entered_zones = %v", f.EnteredZones)
	}
}

func TestExtractEndPrefersBefore(t *testing.T) {
	payload := `{
	  "type": "end",
	  "before": {"id": "E9", "camera": "garage", "label": "person", "score": 0.9, "end_time": 1700000100.0},
	  "after": {"id": "WRONG", "camera": "wrong_cam", "label": "car"}
	}`

	f, ok := Extract([]byte(payload))
	if !ok {
		t.Fatal("extraction should succeed")
	}
	if f.ID != "E9" || f.Camera != "garage" {
		t.Errorf("end must read the before object, got id=%q camera=%q", f.ID, f.Camera)
	}
	if f.EndTime != 1700000100.0 {
		t.Errorf("end_time = %v", f.EndTime)
	}
}

func TestExtractDefaultsToUpdate(t *testing.T) {
	f, _ := Extract([]byte(`{"after":{"id":"E1","camera":"driveway"}}`))
	if f.Type != "update" {
		t.Errorf("missing type should default to update, got %q", f.Type)
	}
}

func TestExtractScorePreference(t *testing.T) {
	tests := []struct {
		name  string
		after string
		want  float64
	}{
		{"Data Score", `{"id":"E","camera":"c","score":0.5,"data":{"score":0.7}}`, 0.7},
		{"Data Top Score", `{"id":"E","camera":"c","top_score":0.5,"data":{"top_score":0.6}}`, 0.6},
		{"Top Level Score", `{"id":"E","camera":"c","score":0.5}`, 0.5},
		{"Top Level Top Score", `{"id":"E","camera":"c","top_score":0.4}`, 0.4},
		{"Plain Confidence", `{"id":"E","camera":"c","confidence":0.3}`, 0.3},
		{"Nothing", `{"id":"E","camera":"c"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := Extract([]byte(`{"type":"new","after":` + tt.after + `}`))
			if !ok {
				t.Fatal("extraction should succeed")
			}
			if f.Score != tt.want {
				t.Errorf("score = %v, want %v", f.Score, tt.want)
			}
		})
	}
}

func TestExtractClipArray(t *testing.T) {
	payload := `{"type":"new","after":{"id":"E1","camera":"driveway","clip":["http://nvr/clip1.mp4","http://nvr/clip2.mp4"]}}`
	f, ok := Extract([]byte(payload))
	if !ok {
		t.Fatal("extraction should succeed")
	}
	if f.ClipURL != "http://nvr/clip1.mp4" {
		t.Errorf("clip = %q, want first array element", f.ClipURL)
	}
}

func TestExtractMissRequiresFallback(t *testing.T) {
	// no camera in the after object: fast path must report a miss
	if _, ok := Extract([]byte(`{"type":"new","after":{"id":"E1"}}`)); ok {
		t.Error("extraction without a camera must fail")
	}
	if _, ok := Extract([]byte(`{"type":"new","after":{"camera":"driveway"}}`)); ok {
		t.Error("extraction without an id must fail")
	}
}

func TestExtractFull(t *testing.T) {
	f, ok := ExtractFull([]byte(newPayload))
	if !ok {
		t.Fatal("full parse should succeed")
	}
	if f.Camera != "driveway" || f.ID != "1700000000.123-abc" {
		t.Errorf("camera=%q id=%q", f.Camera, f.ID)
	}
	if f.Score != 0.81055 {
		t.Errorf("score = %v, want nested data.score", f.Score)
	}
	if !reflect.DeepEqual(f.CurrentZones, []string{"back_step", "front_yard"}) {
		t.Errorf("current_zones = %v", f.CurrentZones)
	}
}

func TestExtractFullZonesAlias(t *testing.T) {
	payload := `{"type":"update","after":{"id":"E1","camera":"driveway","zones":["front_yard"]}}`
	f, ok := ExtractFull([]byte(payload))
	if !ok {
		t.Fatal("full parse should succeed")
	}
	if !reflect.DeepEqual(f.CurrentZones, []string{"front_yard"}) {
		t.Errorf("zones alias not honored: %v", f.CurrentZones)
	}
}

func TestExtractFullRejectsGarbage(t *testing.T) {
	if _, ok := ExtractFull([]byte(`not json`)); ok {
		t.Error("garbage must fail the full parse too")
	}
	if _, ok := ExtractFull([]byte(`{"type":"new"}`)); ok {
		t.Error("an envelope without before/after must fail")
	}
}

func TestErrorContextTruncates(t *testing.T) {
	long := strings.Repeat("x", 200)
	ctx := ErrorContext([]byte(`{"camera":"` + long + `","id":"` + long + `"}`))
	if len(ctx) > 100 {
		t.Errorf("error context should stay bounded, got %d bytes", len(ctx))
	}
	if !strings.Contains(ctx, "camera=") || !strings.Contains(ctx, "id=") {
		t.Errorf("error context should name what it recovered: %q", ctx)
	}
}
