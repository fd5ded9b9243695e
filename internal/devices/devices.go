package devices

import (
	"fmt"
	"sort"
	"strings"

	"frigate-occupancy/internal/logger"
	"frigate-occupancy/internal/metrics"
)

type Kind string

const (
	KindCamera     Kind = "camera"
	KindZone       Kind = "zone"
	KindZoneObject Kind = "zone_object"
)

const tombstoneSuffix = " (removed)"

// Publisher is the outbound transport seam; implemented by mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// Device is one virtual entity (camera, zone, or object-within-zone). Its
// attribute map mirrors what has been published, which is what makes the
// redundant-write suppression possible.
type Device struct {
	ID     string
	Kind   Kind
	Camera string
	Zone   string
	Object string

	label      string
	tombstoned bool
	attrs      map[string]string
	reg        *Registry
}

func (d *Device) Label() string    { return d.label }
func (d *Device) Tombstoned() bool { return d.tombstoned }

// Attr returns the last written value for an attribute, "" if never set.
func (d *Device) Attr(name string) string { return d.attrs[name] }

func (d *Device) SetMotion(active bool) {
	v := "inactive"
	if active {
		v = "active"
	}
	d.setAttr("motion", v)
}

func (d *Device) PushDetection(label string, score float64) {
	d.setAttr("detection", label)
	if score > 0 {
		d.setAttr("confidence", FormatScore(score))
	}
}

func (d *Device) PushMetadata(attrs map[string]string) {
	// Sorted so the publish order is deterministic.
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d.setAttr(name, attrs[name])
	}
}

// ClearDetections resets the detection attributes. Metadata (snapshot URL,
// timestamps) is left alone so the closing state of the last event stays
// visible.
func (d *Device) ClearDetections() {
	d.setAttr("detection", "")
	d.setAttr("confidence", "")
}

func (d *Device) setAttr(name, value string) {
	if d.attrs[name] == value {
		// suppress redundant writes
		return
	}
	if err := d.reg.publish(d, name, value); err != nil {
		// Leave the cache untouched so the next write of the same value
		// retries instead of being suppressed.
		return
	}
	d.attrs[name] = value
}

// Registry owns all virtual devices. It is driven from the engine
// goroutine only; there is no locking by design.
type Registry struct {
	pub       Publisher
	baseTopic string
	metrics   *metrics.Metrics
	devices   map[string]*Device
	log       *logger.Log
}

func NewRegistry(pub Publisher, baseTopic string, m *metrics.Metrics) *Registry {
	return &Registry{
		pub:       pub,
		baseTopic: baseTopic,
		metrics:   m,
		devices:   make(map[string]*Device),
		log:       logger.Component("devices"),
	}
}

// SetPublisher late-binds the transport. The registry is constructed
// before the MQTT client (which needs the engine's ingest channel), so the
// publisher arrives after the fact but before any attribute flows.
func (r *Registry) SetPublisher(pub Publisher) {
	r.pub = pub
}

func (r *Registry) Camera(camera string) (*Device, bool) {
	return r.lookup(KindCamera, SanitizeID(camera))
}

func (r *Registry) Zone(camera, zone string) (*Device, bool) {
	return r.lookup(KindZone, SanitizeID(camera+"_"+zone))
}

func (r *Registry) ZoneObject(camera, zone, object string) (*Device, bool) {
	return r.lookup(KindZoneObject, SanitizeID(camera+"_"+zone+"_"+object))
}

func (r *Registry) GetOrCreateCamera(camera string) *Device {
	return r.getOrCreate(KindCamera, camera, "", "", DisplayName(camera))
}

func (r *Registry) GetOrCreateZone(camera, zone string) *Device {
	return r.getOrCreate(KindZone, camera, zone, "", DisplayName(camera)+" "+DisplayName(zone))
}

func (r *Registry) GetOrCreateZoneObject(camera, zone, object string) *Device {
	label := DisplayName(camera) + " " + DisplayName(zone) + " " + DisplayName(object)
	return r.getOrCreate(KindZoneObject, camera, zone, object, label)
}

// All returns every device, tombstoned ones included.
func (r *Registry) All() []*Device {
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tombstone marks a device obsolete without deleting it, so external
// references to its id keep resolving. Idempotent.
func (r *Registry) Tombstone(d *Device) {
	if !strings.HasSuffix(d.label, tombstoneSuffix) {
		d.label += tombstoneSuffix
		r.publish(d, "name", d.label)
	}
	if !d.tombstoned {
		d.tombstoned = true
		r.metrics.IncTombstoned()
		r.log.Noticef("tombstoned %s device %s", d.Kind, d.ID)
	}
}

// revive undoes a tombstone when an identity turns up again: the suffix
// comes off the label and the device resumes normal service.
func (r *Registry) revive(d *Device) {
	d.tombstoned = false
	d.label = strings.TrimSuffix(d.label, tombstoneSuffix)
	r.publish(d, "name", d.label)
	r.log.Noticef("revived %s device %s", d.Kind, d.ID)
}

func (r *Registry) lookup(kind Kind, id string) (*Device, bool) {
	d, ok := r.devices[mapKey(kind, id)]
	return d, ok
}

func (r *Registry) getOrCreate(kind Kind, camera, zone, object, label string) *Device {
	parts := []string{camera}
	if zone != "" {
		parts = append(parts, zone)
	}
	if object != "" {
		parts = append(parts, object)
	}
	id := SanitizeID(strings.Join(parts, "_"))

	if d, ok := r.devices[mapKey(kind, id)]; ok {
		if d.tombstoned {
			r.revive(d)
		}
		return d
	}

	d := &Device{
		ID:     id,
		Kind:   kind,
		Camera: camera,
		Zone:   zone,
		Object: object,
		label:  label,
		attrs:  make(map[string]string),
		reg:    r,
	}
	r.devices[mapKey(kind, id)] = d
	r.metrics.IncDeviceCreated(string(kind))
	r.log.Infof("created %s device %s (%s)", kind, id, label)
	r.publish(d, "name", label)
	return d
}

func (r *Registry) publish(d *Device, attr, value string) error {
	if r.pub == nil {
		return nil
	}
	topic := fmt.Sprintf("%s/%s/%s/%s", r.baseTopic, d.Kind, d.ID, attr)
	if err := r.pub.Publish(topic, []byte(value), true); err != nil {
		r.log.Errorf("failed to publish %s: %v", topic, err)
		return err
	}
	return nil
}

func mapKey(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// SanitizeID lowers a raw identifier and collapses anything outside
// [a-z0-9] to underscores, making it safe as a topic segment.
func SanitizeID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// DisplayName title-cases a raw identifier on its separator characters:
// "front_yard" becomes "Front Yard".
func DisplayName(raw string) string {
	words := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// FormatScore renders a 0..1 confidence as a fixed-point percentage.
func FormatScore(score float64) string {
	return fmt.Sprintf("%.2f", score*100)
}
