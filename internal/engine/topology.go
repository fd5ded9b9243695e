package engine

import (
	"slices"

	"frigate-occupancy/internal/devices"
	"frigate-occupancy/internal/models"
)

// applyTopology is the entity lifecycle pass: rebuild the lookup tables,
// proactively create devices for everything the fresh topology names, then
// tombstone devices it no longer backs. Only ever called with a
// successfully fetched topology; a failed fetch keeps the previous tables
// so a transient outage cannot mass-tombstone the fleet.
func (e *Engine) applyTopology(topo *models.Topology) {
	e.zoneToCamera = make(map[string]string)
	e.cameraZones = make(map[string][]string)

	created := 0
	for camera, ct := range topo.Cameras {
		if !ct.MotionEnabled {
			continue
		}

		e.cameraZones[camera] = ct.Zones
		for _, zone := range ct.Zones {
			e.zoneToCamera[zone] = camera
		}

		e.registry.GetOrCreateCamera(camera)
		created++

		if e.zoneDevices {
			for _, zone := range ct.Zones {
				e.registry.GetOrCreateZone(camera, zone)
			}
		}
		if e.zoneObjectDevices {
			for _, zone := range ct.Zones {
				for _, object := range ct.ObjectsForZone(zone) {
					e.registry.GetOrCreateZoneObject(camera, zone, object)
				}
			}
		}
	}

	for _, d := range e.registry.All() {
		if d.Tombstoned() || presentInTopology(topo, d) {
			continue
		}
		e.registry.Tombstone(d)
		e.purgeDeviceState(d)
	}

	e.log.Infof("topology applied: %d cameras with motion analysis", created)
}

func presentInTopology(topo *models.Topology, d *devices.Device) bool {
	ct, ok := topo.Cameras[d.Camera]
	if !ok || !ct.MotionEnabled {
		return false
	}
	switch d.Kind {
	case devices.KindCamera:
		return true
	case devices.KindZone:
		return slices.Contains(ct.Zones, d.Zone)
	case devices.KindZoneObject:
		return slices.Contains(ct.Zones, d.Zone) && slices.Contains(ct.ObjectsForZone(d.Zone), d.Object)
	}
	return false
}

// purgeDeviceState removes a tombstoned entity's keys from the
// active-event-set tables and the zone-membership table, so a later
// resurrection of the same id starts clean.
func (e *Engine) purgeDeviceState(d *devices.Device) {
	switch d.Kind {
	case devices.KindCamera:
		for id := range e.cameraEvents[d.Camera] {
			for _, zone := range e.eventZones[id] {
				if set := e.zoneEvents[zoneKey(d.Camera, zone)]; set != nil {
					delete(set, id)
				}
			}
			delete(e.eventZones, id)
			delete(e.eventCamera, id)
			delete(e.eventSeen, id)
		}
		delete(e.cameraEvents, d.Camera)

	case devices.KindZone:
		delete(e.zoneEvents, zoneKey(d.Camera, d.Zone))
		for id, zones := range e.eventZones {
			if e.eventCamera[id] != d.Camera {
				continue
			}
			if i := slices.Index(zones, d.Zone); i >= 0 {
				e.eventZones[id] = slices.Delete(zones, i, i+1)
			}
		}
	}
	// Zone-object devices keep no engine-side state.
}
