package main

import (
	"sort"

	"golang.org/x/text/encoding/charmap"
)

// FieldID identifies one game variable in the tick stream. Per-slot
// fields carry one value per player slot; the decoder demultiplexes
// them using the slot table from the welcome message.
type FieldID uint16

const (
	kVarPresent FieldID = iota + 1
	kVarPositionX
	kVarPositionY
	kVarPositionZ
	kVarAngle
	kVarPitch
	kVarHealth
	kVarArmor
	kVarSelectedWeapon
	kVarDead
	kVarFragCount
	kVarAmmoBase // kVarAmmoBase+n is the ammo count for weapon slot n
)

// numAmmoSlots is the number of per-entity ammo pools the server reports.
const numAmmoSlots = 10

var fieldNames = map[FieldID]string{
	kVarPresent:        "PRESENT",
	kVarPositionX:      "POSITION_X",
	kVarPositionY:      "POSITION_Y",
	kVarPositionZ:      "POSITION_Z",
	kVarAngle:          "ANGLE",
	kVarPitch:          "PITCH",
	kVarHealth:         "HEALTH",
	kVarArmor:          "ARMOR",
	kVarSelectedWeapon: "SELECTED_WEAPON",
	kVarDead:           "DEAD",
	kVarFragCount:      "FRAGCOUNT",
}

func fieldName(id FieldID) string {
	if name, ok := fieldNames[id]; ok {
		return name
	}
	if id >= kVarAmmoBase && id < kVarAmmoBase+numAmmoSlots {
		return "AMMO" + string(rune('0'+int(id-kVarAmmoBase)))
	}
	return "UNKNOWN"
}

// ButtonID identifies one input the client may assert in an action vector.
type ButtonID uint16

const (
	kBtnAttack ButtonID = iota
	kBtnUse
	kBtnMoveForward
	kBtnMoveBackward
	kBtnMoveLeft
	kBtnMoveRight
	kBtnTurnLeft
	kBtnTurnRight
	kBtnSelectNextWeapon
	kBtnSelectPrevWeapon
	kBtnSpeed
	kBtnJump
	kBtnCrouch
	kBtnRespawn
	numButtons
)

// FieldConfig is the declarative contract of game variables and buttons
// the session expects the server to negotiate. It is immutable once
// built and passed into the connection state machine at construction.
type FieldConfig struct {
	vars    []FieldID
	buttons []ButtonID
}

func newFieldConfig(vars []FieldID, buttons []ButtonID) FieldConfig {
	v := append([]FieldID(nil), vars...)
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
	b := append([]ButtonID(nil), buttons...)
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	return FieldConfig{vars: v, buttons: b}
}

// defaultFieldConfig mirrors the variable and button set the stock
// deathmatch configuration declares.
func defaultFieldConfig() FieldConfig {
	vars := []FieldID{
		kVarPresent,
		kVarPositionX, kVarPositionY, kVarPositionZ,
		kVarAngle, kVarPitch,
		kVarHealth, kVarArmor,
		kVarSelectedWeapon,
		kVarDead, kVarFragCount,
	}
	for i := 0; i < numAmmoSlots; i++ {
		vars = append(vars, kVarAmmoBase+FieldID(i))
	}
	buttons := make([]ButtonID, 0, numButtons)
	for b := ButtonID(0); b < numButtons; b++ {
		buttons = append(buttons, b)
	}
	return newFieldConfig(vars, buttons)
}

// Vars returns a copy of the declared game variable set.
func (c FieldConfig) Vars() []FieldID { return append([]FieldID(nil), c.vars...) }

// Buttons returns a copy of the declared button set.
func (c FieldConfig) Buttons() []ButtonID { return append([]ButtonID(nil), c.buttons...) }

func (c FieldConfig) hasVar(id FieldID) bool {
	i := sort.Search(len(c.vars), func(i int) bool { return c.vars[i] >= id })
	return i < len(c.vars) && c.vars[i] == id
}

// matches reports whether the negotiated variable set is exactly the
// declared one. Order is irrelevant; both sides are kept sorted.
func (c FieldConfig) matches(negotiated []FieldID) bool {
	if len(negotiated) != len(c.vars) {
		return false
	}
	n := append([]FieldID(nil), negotiated...)
	sort.Slice(n, func(i, j int) bool { return n[i] < n[j] })
	for i, id := range n {
		if id != c.vars[i] {
			return false
		}
	}
	return true
}

// Wire strings are Latin-1; names typed on other platforms survive the
// round trip where UTF-8 would be mangled by the server.
func decodeLatin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func encodeLatin1(s string) []byte {
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return b
}
