package models

// Config defines the user settings
type Config struct {
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Frigate  FrigateConfig `yaml:"frigate"`
	Devices  DevicesConfig `yaml:"devices"`
	Engine   EngineConfig  `yaml:"engine"`
	Metrics  MetricsConfig `yaml:"metrics"`
	LogLevel string        `yaml:"log_level"`
}

type MQTTConfig struct {
	Broker              string `yaml:"broker"`
	ClientID            string `yaml:"client_id"`
	User                string `yaml:"user"`
	Password            string `yaml:"password"`
	TopicPrefix         string `yaml:"topic_prefix"`          // count feed namespace, e.g. "frigate"
	EventsTopic         string `yaml:"events_topic"`          // lifecycle feed topic
	HealthCheckInterval int    `yaml:"health_check_interval"` // seconds
	ReconnectDelay      int    `yaml:"reconnect_delay"`       // seconds
}

type FrigateConfig struct {
	URL          string `yaml:"url"`
	PollInterval int    `yaml:"poll_interval"` // topology refresh, seconds
}

type DevicesConfig struct {
	BaseTopic         string `yaml:"base_topic"`
	ZoneDevices       bool   `yaml:"zone_devices"`
	ZoneObjectDevices bool   `yaml:"zone_object_devices"`
}

type EngineConfig struct {
	// StaleEventTimeout force-ends events that have gone quiet, in
	// seconds. 0 disables the sweep.
	StaleEventTimeout int `yaml:"stale_event_timeout"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Message is a raw (topic, payload) pair handed up by the transport.
type Message struct {
	Topic   string
	Payload []byte
}

// EventFields is the typed field map pulled out of a lifecycle payload,
// either by the fast extractor or by the full-parse fallback.
type EventFields struct {
	Type        string // "new", "update" or "end"
	Camera      string
	ID          string
	Label       string
	SubLabel    string
	TrackID     string
	Score       float64
	MotionScore float64
	StartTime   float64
	EndTime     float64
	HasSnapshot bool
	HasClip     bool
	SnapshotURL string
	ClipURL     string

	CurrentZones  []string
	EnteredZones  []string
	PreviousZones []string
}

// EffectiveLabel substitutes the sub-label when the primary label is the
// generic "animal" bucket, e.g. animal/cat becomes cat.
func (f EventFields) EffectiveLabel() string {
	if f.Label == "animal" && f.SubLabel != "" {
		return f.SubLabel
	}
	return f.Label
}

// FrigateEvent matches the Frigate events JSON envelope. Used by the
// full-parse fallback when fast extraction misses.
type FrigateEvent struct {
	Type   string             `json:"type"`
	Before *FrigateEventState `json:"before"`
	After  *FrigateEventState `json:"after"`
}

type FrigateEventState struct {
	ID            string            `json:"id"`
	Camera        string            `json:"camera"`
	Label         string            `json:"label"`
	SubLabel      string            `json:"sub_label"`
	TrackID       string            `json:"track_id"`
	Score         float64           `json:"score"`
	TopScore      float64           `json:"top_score"`
	Confidence    float64           `json:"confidence"`
	MotionScore   float64           `json:"motion_score"`
	StartTime     float64           `json:"start_time"`
	EndTime       float64           `json:"end_time"`
	HasSnapshot   bool              `json:"has_snapshot"`
	HasClip       bool              `json:"has_clip"`
	Snapshot      string            `json:"snapshot"`
	Clip          StringOrArray     `json:"clip"`
	CurrentZones  []string          `json:"current_zones"`
	Zones         []string          `json:"zones"`
	EnteredZones  []string          `json:"entered_zones"`
	PreviousZones []string          `json:"previous_zones"`
	Data          *FrigateEventData `json:"data"`
}

type FrigateEventData struct {
	Score    float64 `json:"score"`
	TopScore float64 `json:"top_score"`
}

// Topology is the camera/zone/object structure fetched from the Frigate
// HTTP API, used to create devices and classify count sources.
type Topology struct {
	Cameras map[string]CameraTopology
}

type CameraTopology struct {
	MotionEnabled bool
	Zones         []string
	// Objects is the camera-wide tracked label list.
	Objects []string
	// ZoneObjects maps a zone name to its own tracked label list when the
	// zone overrides the camera default; absent zones fall back to Objects.
	ZoneObjects map[string][]string
}

// ObjectsForZone returns the tracked labels for a zone, falling back to
// the camera-wide list when the zone has no override.
func (c CameraTopology) ObjectsForZone(zone string) []string {
	if labels, ok := c.ZoneObjects[zone]; ok && len(labels) > 0 {
		return labels
	}
	return c.Objects
}
