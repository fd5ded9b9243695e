package frigate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"frigate-occupancy/internal/models"
)

type Client struct {
	config models.FrigateConfig
	client *http.Client
}

func NewClient(cfg models.FrigateConfig) *Client {
	return &Client{
		config: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// apiConfig mirrors the parts of /api/config we need: per-camera detect
// flag, zone list and tracked-object lists.
type apiConfig struct {
	Cameras map[string]apiCamera `json:"cameras"`
}

type apiCamera struct {
	Detect struct {
		Enabled bool `json:"enabled"`
	} `json:"detect"`
	Zones map[string]struct {
		Objects []string `json:"objects"`
	} `json:"zones"`
	Objects struct {
		Track []string `json:"track"`
	} `json:"objects"`
}

// GetTopology fetches the camera/zone/object structure from the Frigate
// config API.
func (c *Client) GetTopology() (*models.Topology, error) {
	url := fmt.Sprintf("%s/api/config", c.config.URL)

	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to query frigate config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config fetch returned status: %d", resp.StatusCode)
	}

	var raw apiConfig
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode config response: %w", err)
	}

	topo := &models.Topology{Cameras: make(map[string]models.CameraTopology, len(raw.Cameras))}
	for name, cam := range raw.Cameras {
		ct := models.CameraTopology{
			MotionEnabled: cam.Detect.Enabled,
			Objects:       cam.Objects.Track,
		}
		if len(cam.Zones) > 0 {
			ct.Zones = make([]string, 0, len(cam.Zones))
			ct.ZoneObjects = make(map[string][]string, len(cam.Zones))
			for zone, zc := range cam.Zones {
				ct.Zones = append(ct.Zones, zone)
				if len(zc.Objects) > 0 {
					ct.ZoneObjects[zone] = zc.Objects
				}
			}
		}
		topo.Cameras[name] = ct
	}

	return topo, nil
}

// apiEvent reflects the raw events API response, which is flatter than the
// MQTT before/after envelope (top_score instead of data.top_score etc).
type apiEvent struct {
	ID          string   `json:"id"`
	Camera      string   `json:"camera"`
	Label       string   `json:"label"`
	SubLabel    string   `json:"sub_label"`
	StartTime   float64  `json:"start_time"`
	EndTime     *float64 `json:"end_time"` // null while in progress
	TopScore    float64  `json:"top_score"`
	Zones       []string `json:"zones"`
	HasSnapshot bool     `json:"has_snapshot"`
	HasClip     bool     `json:"has_clip"`
}

// GetActiveEvents returns in-progress detections so state can be recovered
// on startup instead of waiting for the next MQTT message.
func (c *Client) GetActiveEvents() ([]models.EventFields, error) {
	url := fmt.Sprintf("%s/api/events?in_progress=1", c.config.URL)

	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to query frigate API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api active check returned status: %d", resp.StatusCode)
	}

	var apiEvents []apiEvent
	if err := json.NewDecoder(resp.Body).Decode(&apiEvents); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	events := make([]models.EventFields, 0, len(apiEvents))
	for _, ae := range apiEvents {
		f := models.EventFields{
			Type:         "new",
			ID:           ae.ID,
			Camera:       ae.Camera,
			Label:        ae.Label,
			SubLabel:     ae.SubLabel,
			Score:        ae.TopScore,
			StartTime:    ae.StartTime,
			CurrentZones: ae.Zones,
			HasSnapshot:  ae.HasSnapshot,
			HasClip:      ae.HasClip,
		}
		if ae.HasSnapshot {
			f.SnapshotURL = c.SnapshotURL(ae.ID)
		}
		if ae.HasClip {
			f.ClipURL = c.ClipURL(ae.ID)
		}
		events = append(events, f)
	}

	return events, nil
}

// SnapshotURL builds the media URL for an event's snapshot.
func (c *Client) SnapshotURL(eventID string) string {
	return fmt.Sprintf("%s/api/events/%s/snapshot.jpg", c.config.URL, eventID)
}

// ClipURL builds the media URL for an event's clip.
func (c *Client) ClipURL(eventID string) string {
	return fmt.Sprintf("%s/api/events/%s/clip.mp4", c.config.URL, eventID)
}
