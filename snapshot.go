package main

import "time"

// Pose is the local player's camera pose for one tick.
type Pose struct {
	X, Y, Z float64
	Angle   float64 // degrees, [-180, 180)
	Pitch   float64 // degrees
}

// EntitySnapshot is one participant's state for exactly one tick. It is
// immutable once built; the next tick supersedes it rather than
// mutating it.
type EntitySnapshot struct {
	ID     uint16
	Name   string
	X, Y   float64
	Z      float64
	Angle  float64 // degrees
	Health int
	Armor  int
	Weapon int
	Ammo   [numAmmoSlots]int
	Dead   bool
	Frags  int
}

// TickSnapshot is the decoded game state for one tick. Unknown or
// unoccupied slots are simply absent from Entities, never nil entries.
// The local player's entry is always present while connected.
type TickSnapshot struct {
	Seq      uint32
	When     time.Time
	SelfID   uint16
	Self     Pose
	Entities map[uint16]EntitySnapshot
}

func (s *TickSnapshot) entity(id uint16) (EntitySnapshot, bool) {
	if s == nil {
		return EntitySnapshot{}, false
	}
	e, ok := s.Entities[id]
	return e, ok
}
