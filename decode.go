package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// DecodeError reports a problem turning a raw tick buffer into a
// snapshot. Missing-field errors are non-fatal: the decoder still
// returns a usable snapshot built from carried-over values, and the
// caller may log and continue.
type DecodeError struct {
	Reason string
	Fields []FieldID // declared fields absent from the buffer
}

func (e *DecodeError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	names := make([]string, 0, len(e.Fields))
	for _, id := range e.Fields {
		names = append(names, fieldName(id))
	}
	return fmt.Sprintf("missing fields: %s", strings.Join(names, ", "))
}

// MissingField reports whether the error degraded to last-known values
// rather than invalidating the tick.
func (e *DecodeError) MissingField() bool { return len(e.Fields) > 0 }

// rawTick is one parsed but not yet demultiplexed tick buffer.
type rawTick struct {
	seq    uint32
	fields map[FieldID][]float64
}

// parseRawTick splits a kMsgTick payload into its named field arrays.
func parseRawTick(m []byte) (rawTick, error) {
	rt := rawTick{fields: make(map[FieldID][]float64)}
	if msgTag(m) != kMsgTick {
		return rt, &DecodeError{Reason: fmt.Sprintf("unexpected tag %d", msgTag(m))}
	}
	if len(m) < 8 {
		return rt, &DecodeError{Reason: "short tick header"}
	}
	rt.seq = binary.BigEndian.Uint32(m[2:6])
	fieldCount := int(binary.BigEndian.Uint16(m[6:8]))
	p := 8
	for i := 0; i < fieldCount; i++ {
		if p+4 > len(m) {
			return rt, &DecodeError{Reason: "truncated field header"}
		}
		id := FieldID(binary.BigEndian.Uint16(m[p : p+2]))
		count := int(binary.BigEndian.Uint16(m[p+2 : p+4]))
		p += 4
		if p+8*count > len(m) {
			return rt, &DecodeError{Reason: fmt.Sprintf("truncated values for %s", fieldName(id))}
		}
		vals := make([]float64, count)
		for j := 0; j < count; j++ {
			vals[j] = math.Float64frombits(binary.BigEndian.Uint64(m[p : p+8]))
			p += 8
		}
		rt.fields[id] = vals
	}
	return rt, nil
}

// slotTable is the fixed slot-to-entity mapping established at
// handshake time. It replaces magic array indices in the decode path.
type slotTable struct {
	entries  []slotEntry
	selfSlot int
}

func newSlotTable(w welcomeInfo) *slotTable {
	return &slotTable{
		entries:  append([]slotEntry(nil), w.slots...),
		selfSlot: w.selfSlot,
	}
}

func (t *slotTable) size() int { return len(t.entries) }

func (t *slotTable) entry(slot int) slotEntry { return t.entries[slot] }

func (t *slotTable) selfID() uint16 { return t.entries[t.selfSlot].entityID }

// tickDecoder turns raw tick buffers into snapshots. It holds only the
// immutable field contract and slot table, so it is safe to call from a
// single dedicated goroutine without locking. Pure: no I/O.
type tickDecoder struct {
	cfg   FieldConfig
	table *slotTable
}

func newTickDecoder(cfg FieldConfig, table *slotTable) *tickDecoder {
	return &tickDecoder{cfg: cfg, table: table}
}

// Decode builds a TickSnapshot from one raw buffer. Fields declared
// available but absent from the buffer degrade to the previous tick's
// values; entities with no previous value to fall back on are excluded
// as stale. When that degradation happens the snapshot is still valid
// and the returned error has MissingField() == true.
func (d *tickDecoder) Decode(m []byte, prev *TickSnapshot) (TickSnapshot, error) {
	rt, err := parseRawTick(m)
	if err != nil {
		return TickSnapshot{}, err
	}

	var missing []FieldID
	for _, id := range d.cfg.Vars() {
		if _, ok := rt.fields[id]; !ok {
			missing = append(missing, id)
		}
	}

	snap := TickSnapshot{
		Seq:      rt.seq,
		When:     time.Now(),
		SelfID:   d.table.selfID(),
		Entities: make(map[uint16]EntitySnapshot, d.table.size()),
	}

	for slot := 0; slot < d.table.size(); slot++ {
		ent, ok := d.decodeSlot(rt, slot, prev)
		if ok {
			snap.Entities[ent.ID] = ent
		}
	}

	self, ok := snap.Entities[snap.SelfID]
	if !ok {
		// The local slot must always decode while connected; without it
		// there is no camera pose to project from.
		return TickSnapshot{}, &DecodeError{Reason: "local player absent from tick"}
	}
	snap.Self = Pose{
		X:     self.X,
		Y:     self.Y,
		Z:     self.Z,
		Angle: normalizeAngle(self.Angle),
		Pitch: d.selfPitch(rt, prev),
	}

	if len(missing) > 0 {
		return snap, &DecodeError{Fields: missing}
	}
	return snap, nil
}

// decodeSlot extracts one entity from the demultiplexed arrays. The
// second return is false for unoccupied or stale slots, which are
// omitted entirely rather than zero-filled.
func (d *tickDecoder) decodeSlot(rt rawTick, slot int, prev *TickSnapshot) (EntitySnapshot, bool) {
	entry := d.table.entry(slot)
	prevEnt, hasPrev := prev.entity(entry.entityID)

	get := func(id FieldID) (float64, bool) {
		if vals, ok := rt.fields[id]; ok && slot < len(vals) {
			return vals[slot], true
		}
		if hasPrev {
			return prevFieldValue(prevEnt, id), true
		}
		return 0, false
	}

	present, ok := get(kVarPresent)
	if !ok || present <= 0 {
		return EntitySnapshot{}, false
	}

	ent := EntitySnapshot{ID: entry.entityID, Name: entry.name}
	stale := false
	fetch := func(id FieldID) float64 {
		v, ok := get(id)
		if !ok {
			stale = true
		}
		return v
	}
	ent.X = fetch(kVarPositionX)
	ent.Y = fetch(kVarPositionY)
	ent.Z = fetch(kVarPositionZ)
	ent.Angle = normalizeAngle(fetch(kVarAngle))
	ent.Health = int(fetch(kVarHealth))
	ent.Armor = int(fetch(kVarArmor))
	ent.Weapon = int(fetch(kVarSelectedWeapon))
	ent.Dead = fetch(kVarDead) > 0
	ent.Frags = int(fetch(kVarFragCount))
	for i := 0; i < numAmmoSlots; i++ {
		ent.Ammo[i] = int(fetch(kVarAmmoBase + FieldID(i)))
	}
	if stale {
		return EntitySnapshot{}, false
	}
	return ent, true
}

func (d *tickDecoder) selfPitch(rt rawTick, prev *TickSnapshot) float64 {
	if vals, ok := rt.fields[kVarPitch]; ok && d.table.selfSlot < len(vals) {
		return vals[d.table.selfSlot]
	}
	if prev != nil {
		return prev.Self.Pitch
	}
	return 0
}

// prevFieldValue maps a field ID back onto the previous snapshot's
// typed fields for missing-field carry-over.
func prevFieldValue(e EntitySnapshot, id FieldID) float64 {
	switch id {
	case kVarPresent:
		return 1
	case kVarPositionX:
		return e.X
	case kVarPositionY:
		return e.Y
	case kVarPositionZ:
		return e.Z
	case kVarAngle:
		return e.Angle
	case kVarPitch:
		return 0
	case kVarHealth:
		return float64(e.Health)
	case kVarArmor:
		return float64(e.Armor)
	case kVarSelectedWeapon:
		return float64(e.Weapon)
	case kVarDead:
		if e.Dead {
			return 1
		}
		return 0
	case kVarFragCount:
		return float64(e.Frags)
	}
	if id >= kVarAmmoBase && id < kVarAmmoBase+numAmmoSlots {
		return float64(e.Ammo[id-kVarAmmoBase])
	}
	return 0
}
