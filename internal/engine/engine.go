package engine

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"frigate-occupancy/internal/devices"
	"frigate-occupancy/internal/frigate"
	"frigate-occupancy/internal/logger"
	"frigate-occupancy/internal/metrics"
	"frigate-occupancy/internal/models"
)

const ledgerCapacity = 100

// Engine reconciles the count feed against the lifecycle feed and drives
// the device registry. It runs as a single goroutine; every map below is
// owned by that goroutine and mutated only from its handlers.
type Engine struct {
	registry *devices.Registry
	media    MediaURLBuilder

	eventsTopic       string
	countPrefix       string
	zoneDevices       bool
	zoneObjectDevices bool
	staleTimeout      time.Duration
	metrics           *metrics.Metrics

	ingest chan models.Message
	topo   chan *models.Topology

	// cameraEvents and zoneEvents are the active-event-id sets; a camera
	// or zone device is active exactly while its set is non-empty.
	cameraEvents map[string]map[string]bool
	zoneEvents   map[string]map[string]bool

	// eventZones is the zone-membership table: the last-known zone set per
	// in-flight event id. Consulted on "end" instead of the possibly-stale
	// payload zones, and for entered/exited diffing.
	eventZones  map[string][]string
	eventCamera map[string]string
	eventSeen   map[string]time.Time

	ledger *ledger
	log    *logger.Log

	zoneToCamera map[string]string
	cameraZones  map[string][]string
}

func NewEngine(registry *devices.Registry, eventsTopic, countPrefix string, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:     registry,
		eventsTopic:  eventsTopic,
		countPrefix:  countPrefix,
		ingest:       make(chan models.Message, 100),
		topo:         make(chan *models.Topology, 1),
		cameraEvents: make(map[string]map[string]bool),
		zoneEvents:   make(map[string]map[string]bool),
		eventZones:   make(map[string][]string),
		eventCamera:  make(map[string]string),
		eventSeen:    make(map[string]time.Time),
		ledger:       newLedger(ledgerCapacity),
		log:          logger.Component("engine"),
		zoneToCamera: make(map[string]string),
		cameraZones:  make(map[string][]string),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) IngestChannel() chan<- models.Message {
	return e.ingest
}

func (e *Engine) TopologyChannel() chan<- *models.Topology {
	return e.topo
}

// Recover replays in-progress detections fetched from the HTTP API so
// state survives a restart. Call before Run.
func (e *Engine) Recover(events []models.EventFields) {
	for _, f := range events {
		e.handleLifecycle(f)
	}
}

// ApplyTopology installs a topology directly. Only for use before Run;
// afterwards topology flows through TopologyChannel.
func (e *Engine) ApplyTopology(topo *models.Topology) {
	e.applyTopology(topo)
}

func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	e.log.Infof("engine started")

	for {
		select {
		case <-ctx.Done():
			e.log.Infof("engine stopped")
			return nil
		case msg := <-e.ingest:
			e.handleMessage(msg)
		case topo := <-e.topo:
			e.applyTopology(topo)
		case <-ticker.C:
			e.handleTick()
		}
	}
}

func (e *Engine) handleMessage(msg models.Message) {
	// The fast-path check runs before anything else; the count namespace
	// carries far more non-count traffic than counts.
	if cm, ok := classifyCount(msg.Topic, msg.Payload); ok {
		if strings.HasPrefix(msg.Topic, e.countPrefix+"/") {
			e.metrics.IncReceived("count")
			e.handleCount(cm)
			return
		}
	}

	if msg.Topic == e.eventsTopic {
		e.metrics.IncReceived("lifecycle")
		e.handleLifecyclePayload(msg.Payload)
		return
	}

	// Remaining traffic on the shared subscription (stats, state blobs,
	// snapshot bytes) is not ours.
	e.metrics.IncDropped("unhandled")
}

func (e *Engine) handleLifecyclePayload(payload []byte) {
	f, ok := frigate.Extract(payload)
	if !ok {
		// Fast extraction missed; full structural parse is mandatory
		// before giving up.
		f, ok = frigate.ExtractFull(payload)
	}
	if !ok {
		e.log.Errorf("unable to parse lifecycle payload (%s)", frigate.ErrorContext(payload))
		e.metrics.IncDropped("malformed")
		return
	}
	e.handleLifecycle(f)
}

func (e *Engine) handleLifecycle(f models.EventFields) {
	dev, ok := e.registry.Camera(f.Camera)
	if !ok {
		e.log.Warnf("event %s references unknown camera %q, dropping", f.ID, f.Camera)
		e.metrics.IncDropped("unknown_camera")
		return
	}

	switch f.Type {
	case "new":
		if e.ledger.Contains(f.ID) {
			e.log.Debugf("duplicate new for event %s, dropping", f.ID)
			e.metrics.IncDropped("duplicate")
			return
		}
		e.ledger.Add(f.ID)
		e.startEvent(dev, f)
	case "end":
		e.endEvent(dev, f)
	default:
		// "update" normally never gets here (the transport drops it), but
		// in compat mode it behaves like "new" minus the ledger insert.
		e.startEvent(dev, f)
	}

	e.metrics.IncEvent(f.Type)
	e.metrics.SetActiveEvents(len(e.eventSeen))
}

func (e *Engine) startEvent(dev *devices.Device, f models.EventFields) {
	set := e.cameraEvents[f.Camera]
	if set == nil {
		set = make(map[string]bool)
		e.cameraEvents[f.Camera] = set
	}
	if len(set) == 0 {
		dev.SetMotion(true)
	}
	set[f.ID] = true

	dev.PushDetection(f.EffectiveLabel(), f.Score)
	dev.PushMetadata(e.eventMetadata(f))

	e.eventCamera[f.ID] = f.Camera
	e.eventSeen[f.ID] = time.Now()

	e.applyZones(f)
}

// applyZones diffs the event's zone membership against its previous entry
// and fans metadata/activation out to the zone-level devices.
func (e *Engine) applyZones(f models.EventFields) {
	prev := e.eventZones[f.ID]
	cur := f.CurrentZones

	for _, zone := range prev {
		if !slices.Contains(cur, zone) {
			e.removeZoneEvent(f.Camera, zone, f.ID)
		}
	}
	e.eventZones[f.ID] = cur

	label := f.EffectiveLabel()
	for _, zone := range cur {
		zf := f
		zf.CurrentZones = []string{zone}
		zf.EnteredZones = nil
		if slices.Contains(f.EnteredZones, zone) {
			zf.EnteredZones = []string{zone}
		}

		if e.zoneDevices {
			zdev := e.registry.GetOrCreateZone(f.Camera, zone)
			key := zoneKey(f.Camera, zone)
			set := e.zoneEvents[key]
			if set == nil {
				set = make(map[string]bool)
				e.zoneEvents[key] = set
			}
			if len(set) == 0 {
				// Zone devices activate from the lifecycle feed only here;
				// the count feed may also turn them on, never off.
				zdev.SetMotion(true)
			}
			set[f.ID] = true
			zdev.PushDetection(label, f.Score)
			zdev.PushMetadata(e.eventMetadata(zf))
		}

		if e.zoneObjectDevices {
			// Metadata only: activation of per-object devices belongs to
			// the count feed exclusively.
			if odev, ok := e.registry.ZoneObject(f.Camera, zone, label); ok {
				odev.PushMetadata(e.eventMetadata(zf))
			}
		}
	}
}

func (e *Engine) endEvent(dev *devices.Device, f models.EventFields) {
	id := f.ID

	// The zone set recorded from earlier messages is authoritative; "end"
	// payloads often arrive with stale or missing zone fields.
	zones := e.eventZones[id]

	if set := e.cameraEvents[f.Camera]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			dev.ClearDetections()
			dev.SetMotion(false)
		}
	}
	// Final metadata lands regardless so the closing snapshot and score
	// are still recorded.
	dev.PushMetadata(e.eventMetadata(f))

	for _, zone := range zones {
		e.removeZoneEvent(f.Camera, zone, id)
		if zdev, ok := e.registry.Zone(f.Camera, zone); ok {
			zf := f
			zf.CurrentZones = []string{zone}
			zf.EnteredZones = nil
			zdev.PushMetadata(e.eventMetadata(zf))
		}
	}

	delete(e.eventZones, id)
	delete(e.eventCamera, id)
	delete(e.eventSeen, id)
}

func (e *Engine) removeZoneEvent(camera, zone, id string) {
	key := zoneKey(camera, zone)
	set := e.zoneEvents[key]
	if set == nil {
		return
	}
	delete(set, id)
	if len(set) > 0 {
		// Another detection still occupies this zone.
		return
	}
	if zdev, ok := e.registry.Zone(camera, zone); ok {
		zdev.ClearDetections()
		zdev.SetMotion(false)
	}
}

func (e *Engine) handleCount(cm countMessage) {
	camera := cm.Source
	zone := ""
	if owner, ok := e.zoneToCamera[cm.Source]; ok {
		camera, zone = owner, cm.Source
	}

	if cm.Count > 0 {
		var dev *devices.Device
		if zone != "" {
			if !e.zoneDevices {
				return
			}
			dev = e.registry.GetOrCreateZone(camera, zone)
		} else {
			d, ok := e.registry.Camera(camera)
			if !ok {
				e.log.Debugf("count for unknown source %q, dropping", cm.Source)
				e.metrics.IncDropped("unknown_source")
				return
			}
			dev = d
		}

		if cm.Object != "all" {
			dev.PushDetection(cm.Object, 0)
		}
		// The fast feed may only ever turn things on early.
		dev.SetMotion(true)

		if e.zoneObjectDevices && zone != "" && cm.Object != "all" {
			odev := e.registry.GetOrCreateZoneObject(camera, zone, cm.Object)
			odev.PushDetection(cm.Object, 0)
			odev.SetMotion(true)
		}
		e.metrics.IncCount()
		return
	}

	// count == 0. Camera/zone deactivation is deliberately deferred to the
	// lifecycle "end" path: the count feed emits transient zeroes between
	// sequential detections of the same occupancy episode, and reacting to
	// them flickers the device. A per-object zone device tracks exactly
	// one label, so its zero is unambiguous and applies immediately.
	if e.zoneObjectDevices && zone != "" && cm.Object != "all" {
		if odev, ok := e.registry.ZoneObject(camera, zone, cm.Object); ok {
			odev.SetMotion(false)
			odev.ClearDetections()
		}
	}
	e.metrics.IncCount()
}

// handleTick runs the stale-event sweep: events that stopped producing
// traffic without an "end" get force-ended after the configured timeout.
func (e *Engine) handleTick() {
	if e.staleTimeout <= 0 {
		return
	}

	var stale []string
	for id, seen := range e.eventSeen {
		if time.Since(seen) > e.staleTimeout {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		camera := e.eventCamera[id]
		e.log.Noticef("event %s on %s quiet for over %s, force-ending", id, camera, e.staleTimeout)
		f := models.EventFields{Type: "end", ID: id, Camera: camera}
		if dev, ok := e.registry.Camera(camera); ok {
			e.endEvent(dev, f)
		} else {
			e.dropEventState(id, camera)
		}
		e.metrics.SetActiveEvents(len(e.eventSeen))
	}
}

func (e *Engine) dropEventState(id, camera string) {
	if set := e.cameraEvents[camera]; set != nil {
		delete(set, id)
	}
	for _, zone := range e.eventZones[id] {
		if set := e.zoneEvents[zoneKey(camera, zone)]; set != nil {
			delete(set, id)
		}
	}
	delete(e.eventZones, id)
	delete(e.eventCamera, id)
	delete(e.eventSeen, id)
}

func (e *Engine) eventMetadata(f models.EventFields) map[string]string {
	attrs := map[string]string{
		"event_id": f.ID,
		"label":    f.EffectiveLabel(),
	}
	if f.SubLabel != "" {
		attrs["sub_label"] = f.SubLabel
	}
	if f.TrackID != "" {
		attrs["track_id"] = f.TrackID
	}
	if f.Score > 0 {
		attrs["score"] = devices.FormatScore(f.Score)
	}
	if f.MotionScore > 0 {
		attrs["motion_score"] = strconv.FormatFloat(f.MotionScore, 'f', -1, 64)
	}
	if f.StartTime > 0 {
		attrs["started_at"] = formatEpoch(f.StartTime)
	}
	if f.EndTime > 0 {
		attrs["ended_at"] = formatEpoch(f.EndTime)
	}

	snapshot := f.SnapshotURL
	if snapshot == "" && f.HasSnapshot && e.media != nil {
		snapshot = e.media.SnapshotURL(f.ID)
	}
	if snapshot != "" {
		attrs["snapshot_url"] = snapshot
	}
	clip := f.ClipURL
	if clip == "" && f.HasClip && e.media != nil {
		clip = e.media.ClipURL(f.ID)
	}
	if clip != "" {
		attrs["clip_url"] = clip
	}

	if len(f.CurrentZones) > 0 {
		attrs["zones"] = strings.Join(f.CurrentZones, ",")
	}
	if len(f.EnteredZones) > 0 {
		attrs["entered_zones"] = strings.Join(f.EnteredZones, ",")
	}
	return attrs
}

func formatEpoch(ts float64) string {
	return time.Unix(int64(ts), 0).Local().Format("2006-01-02 15:04:05")
}

func zoneKey(camera, zone string) string {
	return camera + "/" + zone
}
