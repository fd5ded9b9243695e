package engine

import (
	"strings"
	"testing"

	"frigate-occupancy/internal/models"
)

func TestTopologyCreatesDevicesProactively(t *testing.T) {
	eng, registry := newTestEngine(t, WithZoneObjectDevices(true))

	// zones and zone objects exist before any detection arrives
	getZone(t, registry, "driveway", "front_porch")
	getZoneObject(t, registry, "driveway", "front_porch", "person")
	getZoneObject(t, registry, "driveway", "back_step", "cat")

	if _, ok := registry.Camera("garage"); !ok {
		t.Error("motion-enabled cameras should get devices")
	}
	_ = eng
}

func TestTopologySkipsMotionDisabledCameras(t *testing.T) {
	eng, registry := newTestEngine(t)

	eng.applyTopology(&models.Topology{
		Cameras: map[string]models.CameraTopology{
			"doorbell": {MotionEnabled: false, Zones: []string{"stoop"}},
		},
	})

	if _, ok := registry.Camera("doorbell"); ok {
		t.Error("cameras without motion analysis must not get devices")
	}
}

func TestTombstoneNotDelete(t *testing.T) {
	eng, registry := newTestEngine(t)

	// garage has an in-flight event when it vanishes from topology
	eng.handleLifecycle(newEvent("E1", "garage", "person", 0.8))

	shrunk := &models.Topology{
		Cameras: map[string]models.CameraTopology{
			"driveway": testTopology().Cameras["driveway"],
		},
	}
	eng.applyTopology(shrunk)

	garage := getCamera(t, registry, "garage")
	if !garage.Tombstoned() {
		t.Fatal("device absent from topology should be tombstoned")
	}
	if !strings.HasSuffix(garage.Label(), "(removed)") {
		t.Errorf("tombstoned label should carry the suffix, got %q", garage.Label())
	}

	// idempotent: a second reconciliation must not stack suffixes
	eng.applyTopology(shrunk)
	if strings.Count(garage.Label(), "(removed)") != 1 {
		t.Errorf("tombstone suffix applied more than once: %q", garage.Label())
	}

	// state purged so a resurrected id starts clean
	if len(eng.cameraEvents["garage"]) != 0 {
		t.Error("tombstoning must purge the camera's active-event set")
	}
	if _, ok := eng.eventZones["E1"]; ok {
		t.Error("tombstoning must purge membership table entries")
	}
}

func TestTombstoneRevivedWhenTopologyRelists(t *testing.T) {
	eng, registry := newTestEngine(t)

	shrunk := &models.Topology{
		Cameras: map[string]models.CameraTopology{
			"driveway": testTopology().Cameras["driveway"],
		},
	}
	eng.applyTopology(shrunk)

	garage := getCamera(t, registry, "garage")
	if !garage.Tombstoned() {
		t.Fatal("device absent from topology should be tombstoned")
	}

	// the camera comes back in a later successful fetch
	eng.applyTopology(testTopology())
	if garage.Tombstoned() {
		t.Error("device re-listed by topology should be revived")
	}
	if strings.Contains(garage.Label(), "(removed)") {
		t.Errorf("revived label should drop the suffix, got %q", garage.Label())
	}

	// and it serves live events again
	eng.handleLifecycle(newEvent("E2", "garage", "person", 0.8))
	if garage.Attr("motion") != "active" {
		t.Error("revived device should carry event state")
	}
}

func TestTombstoneZonePurgesMembership(t *testing.T) {
	eng, registry := newTestEngine(t)

	eng.handleLifecycle(newEvent("E1", "driveway", "person", 0.8, "front_porch", "back_step"))

	topo := testTopology()
	ct := topo.Cameras["driveway"]
	ct.Zones = []string{"back_step", "front_yard"} // front_porch dropped
	topo.Cameras["driveway"] = ct
	eng.applyTopology(topo)

	zone := getZone(t, registry, "driveway", "front_porch")
	if !zone.Tombstoned() {
		t.Fatal("dropped zone should be tombstoned")
	}
	if _, ok := eng.zoneEvents[zoneKey("driveway", "front_porch")]; ok {
		t.Error("zone active-event set should be purged")
	}
	for _, z := range eng.eventZones["E1"] {
		if z == "front_porch" {
			t.Error("membership table should no longer reference the dropped zone")
		}
	}
}

func TestCountSourceReclassifiedAfterTopologyChange(t *testing.T) {
	eng, registry := newTestEngine(t)

	// "front_porch" resolves as a zone of driveway
	eng.handleCount(countMessage{Source: "front_porch", Object: "all", Count: 1})
	zone := getZone(t, registry, "driveway", "front_porch")
	if zone.Attr("motion") != "active" {
		t.Fatal("zone source should resolve via the reverse index")
	}

	// an unknown source name is treated as camera-level and dropped when
	// no such camera device exists
	eng.handleCount(countMessage{Source: "pool", Object: "all", Count: 1})
	if _, ok := registry.Camera("pool"); ok {
		t.Error("counts must not create camera devices")
	}
}
