package frigate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"frigate-occupancy/internal/models"
)

// Lifecycle payloads routinely run past tens of kilobytes because Frigate
// embeds full trajectory arrays we never use. Extract therefore does not
// walk the whole structure: it locates the before/after sub-object for the
// event type and runs bounded field searches inside that window only. The
// full-parse fallback (ExtractFull) handles any shape the fast path
// mis-reads.

var (
	typeRe    = regexp.MustCompile(`"type"\s*:\s*"(new|update|end)"`)
	dataObjRe = regexp.MustCompile(`"data"\s*:\s*\{[^{}]*\}`)
	// quotedRe captures the token inside the quotes. Using the whole match
	// would hand back the surrounding quote characters and mangle
	// multi-word zone names.
	quotedRe    = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	clipArrayRe = regexp.MustCompile(`"clip"\s*:\s*\[\s*"((?:[^"\\]|\\.)*)"`)
	trackIDRe   = regexp.MustCompile(`"track_id"\s*:\s*"?([A-Za-z0-9_.:-]+)"?`)
)

var stringRes = map[string]*regexp.Regexp{}
var numberRes = map[string]*regexp.Regexp{}
var arrayRes = map[string]*regexp.Regexp{}
var boolRes = map[string]*regexp.Regexp{}

func init() {
	for _, name := range []string{"camera", "id", "label", "sub_label", "snapshot", "clip"} {
		stringRes[name] = regexp.MustCompile(`"` + name + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	}
	for _, name := range []string{"score", "top_score", "confidence", "motion_score", "start_time", "end_time"} {
		numberRes[name] = regexp.MustCompile(`"` + name + `"\s*:\s*(-?[0-9]+(?:\.[0-9]+)?)`)
	}
	for _, name := range []string{"current_zones", "zones", "entered_zones", "previous_zones"} {
		arrayRes[name] = regexp.MustCompile(`"` + name + `"\s*:\s*\[([^\]]*)\]`)
	}
	for _, name := range []string{"has_snapshot", "has_clip"} {
		boolRes[name] = regexp.MustCompile(`"` + name + `"\s*:\s*true`)
	}
}

// Extract pulls the lifecycle fields out of a raw payload without a full
// structural parse. ok is false when no camera or event id could be
// recovered; the caller must then fall back to ExtractFull.
func Extract(payload []byte) (models.EventFields, bool) {
	s := string(payload)

	f := models.EventFields{Type: "update"}
	if m := typeRe.FindStringSubmatch(s); m != nil {
		f.Type = m[1]
	}

	win := objectWindow(s, f.Type)

	f.Camera = strField(win, "camera")
	f.ID = strField(win, "id")
	f.Label = strField(win, "label")
	f.SubLabel = strField(win, "sub_label")
	f.TrackID = trackID(win)
	f.Score = scoreField(win)
	f.MotionScore, _ = numField(win, "motion_score")
	f.StartTime, _ = numField(win, "start_time")
	f.EndTime, _ = numField(win, "end_time")
	f.HasSnapshot = boolRes["has_snapshot"].MatchString(win)
	f.HasClip = boolRes["has_clip"].MatchString(win)
	f.SnapshotURL = strField(win, "snapshot")
	f.ClipURL = clipField(win)

	f.CurrentZones = arrField(win, "current_zones")
	if f.CurrentZones == nil {
		f.CurrentZones = arrField(win, "zones")
	}
	f.EnteredZones = arrField(win, "entered_zones")
	f.PreviousZones = arrField(win, "previous_zones")

	return f, f.Camera != "" && f.ID != ""
}

// ExtractFull is the structural fallback: a complete JSON parse of the
// envelope, selecting the before/after object by the same type rule.
func ExtractFull(payload []byte) (models.EventFields, bool) {
	var evt models.FrigateEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return models.EventFields{}, false
	}

	typ := evt.Type
	if typ == "" {
		typ = "update"
	}

	state := evt.After
	if typ == "end" && evt.Before != nil {
		state = evt.Before
	}
	if state == nil {
		state = evt.Before
	}
	if state == nil {
		return models.EventFields{}, false
	}

	f := models.EventFields{
		Type:        typ,
		Camera:      state.Camera,
		ID:          state.ID,
		Label:       state.Label,
		SubLabel:    state.SubLabel,
		TrackID:     state.TrackID,
		MotionScore: state.MotionScore,
		StartTime:   state.StartTime,
		EndTime:     state.EndTime,
		HasSnapshot: state.HasSnapshot,
		HasClip:     state.HasClip,
		SnapshotURL: state.Snapshot,
		ClipURL:     state.Clip.String(),

		CurrentZones:  state.CurrentZones,
		EnteredZones:  state.EnteredZones,
		PreviousZones: state.PreviousZones,
	}
	if f.CurrentZones == nil {
		f.CurrentZones = state.Zones
	}

	switch {
	case state.Data != nil && state.Data.Score > 0:
		f.Score = state.Data.Score
	case state.Data != nil && state.Data.TopScore > 0:
		f.Score = state.Data.TopScore
	case state.Score > 0:
		f.Score = state.Score
	case state.TopScore > 0:
		f.Score = state.TopScore
	default:
		f.Score = state.Confidence
	}

	return f, f.Camera != "" && f.ID != ""
}

// ErrorContext recovers whatever camera/id substrings it can for an error
// log line. Never returns payload content beyond those two fields, and
// truncates both, so one garbage message cannot flood the log.
func ErrorContext(payload []byte) string {
	s := string(payload)
	return fmt.Sprintf("camera=%q id=%q", truncate(strField(s, "camera"), 32), truncate(strField(s, "id"), 32))
}

// objectWindow returns the byte range of the before/after sub-object
// appropriate to the event type: "before" for end (the closing state),
// "after" otherwise. The window ends at the next major sibling key so
// field searches never leak into the other sub-object.
func objectWindow(s, eventType string) string {
	key, alt := `"after"`, `"before"`
	if eventType == "end" {
		key, alt = alt, key
	}

	start := keyOffset(s, key)
	if start < 0 {
		start = keyOffset(s, alt)
	}
	if start < 0 {
		return s
	}

	end := len(s)
	rest := s[start:]
	for _, sibling := range []string{`"before"`, `"after"`, `"type"`} {
		if j := strings.Index(rest, sibling); j >= 0 && start+j < end {
			end = start + j
		}
	}
	return s[start:end]
}

func keyOffset(s, key string) int {
	i := strings.Index(s, key)
	if i < 0 {
		return -1
	}
	return i + len(key)
}

func strField(win, name string) string {
	re, ok := stringRes[name]
	if !ok {
		return ""
	}
	if m := re.FindStringSubmatch(win); m != nil {
		return m[1]
	}
	return ""
}

func numField(win, name string) (float64, bool) {
	m := numberRes[name].FindStringSubmatch(win)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		// Malformed numerics degrade to zero rather than failing the
		// whole message.
		return 0, false
	}
	return v, true
}

func arrField(win, name string) []string {
	m := arrayRes[name].FindStringSubmatch(win)
	if m == nil {
		return nil
	}
	quoted := quotedRe.FindAllStringSubmatch(m[1], -1)
	out := make([]string, 0, len(quoted))
	for _, q := range quoted {
		out = append(out, q[1])
	}
	return out
}

// scoreField prefers the nested data.score/data.top_score over the
// top-level pair, then falls back to a plain confidence field.
func scoreField(win string) float64 {
	if obj := dataObjRe.FindString(win); obj != "" {
		if v, ok := numField(obj, "score"); ok {
			return v
		}
		if v, ok := numField(obj, "top_score"); ok {
			return v
		}
	}
	if v, ok := numField(win, "score"); ok {
		return v
	}
	if v, ok := numField(win, "top_score"); ok {
		return v
	}
	if v, ok := numField(win, "confidence"); ok {
		return v
	}
	return 0
}

// clipField handles both payload shapes: a plain string or an array whose
// first element is the clip URL.
func clipField(win string) string {
	if v := strField(win, "clip"); v != "" {
		return v
	}
	if m := clipArrayRe.FindStringSubmatch(win); m != nil {
		return m[1]
	}
	return ""
}

func trackID(win string) string {
	if m := trackIDRe.FindStringSubmatch(win); m != nil {
		return m[1]
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
