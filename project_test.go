package main

import (
	"math"
	"strings"
	"testing"
	"time"
)

func testCamera() CameraParams {
	return CameraParams{FOV: 90}
}

func TestProjectDirectlyAhead(t *testing.T) {
	// Facing east (angle 0) with an entity straight down +X: dead
	// center of the screen.
	e := EntitySnapshot{ID: 101, Name: "Alpha", X: 100, Y: 0, Health: 80}
	p := projectEntity(e, Pose{}, testCamera())
	if !p.OnScreen {
		t.Fatalf("entity directly ahead is off screen: %+v", p)
	}
	if math.Abs(p.ScreenX) > 1e-9 || math.Abs(p.ScreenY) > 1e-9 {
		t.Fatalf("screen coords = (%g, %g), want origin", p.ScreenX, p.ScreenY)
	}
	if math.Abs(p.Bearing) > 1e-9 {
		t.Fatalf("bearing = %g, want 0", p.Bearing)
	}
	if math.Abs(p.Distance-100) > 1e-9 {
		t.Fatalf("distance = %g, want 100", p.Distance)
	}
}

func TestProjectAheadAfterTurn(t *testing.T) {
	// Facing north (angle 90) with an entity straight up +Y.
	e := EntitySnapshot{ID: 101, X: 0, Y: 50}
	p := projectEntity(e, Pose{Angle: 90}, testCamera())
	if !p.OnScreen || math.Abs(p.ScreenX) > 1e-9 {
		t.Fatalf("entity ahead after turn: %+v", p)
	}
}

func TestProjectBehindOffScreen(t *testing.T) {
	e := EntitySnapshot{ID: 101, X: -100, Y: 0}
	p := projectEntity(e, Pose{}, testCamera())
	if p.OnScreen {
		t.Fatalf("entity behind the camera marked on screen")
	}
	if math.Abs(math.Abs(p.Bearing)-180) > 1e-9 {
		t.Fatalf("bearing = %g, want +/-180", p.Bearing)
	}
}

func TestProjectRightOfFacing(t *testing.T) {
	// Facing east, entity to the south: right of the camera, positive X.
	e := EntitySnapshot{ID: 101, X: 100, Y: -40}
	p := projectEntity(e, Pose{}, testCamera())
	if p.ScreenX <= 0 {
		t.Fatalf("screen x = %g, want positive for an entity to the right", p.ScreenX)
	}
	if p.Bearing >= 0 || p.Bearing < -90 {
		t.Fatalf("bearing = %g, want in (-90, 0)", p.Bearing)
	}
}

func TestProjectZeroForwardNoPanic(t *testing.T) {
	// Exactly perpendicular: forward component is zero. Must not divide
	// by zero and must come back off screen with a usable bearing.
	e := EntitySnapshot{ID: 101, X: 0, Y: 30}
	p := projectEntity(e, Pose{}, testCamera())
	if p.OnScreen {
		t.Fatalf("perpendicular entity marked on screen")
	}
	if math.Abs(p.Bearing-90) > 1e-9 {
		t.Fatalf("bearing = %g, want 90", p.Bearing)
	}
}

func TestProjectCoincidentPosition(t *testing.T) {
	// Same world position as the camera. Distance zero, no NaN output
	// expected in bearing or distance.
	e := EntitySnapshot{ID: 101}
	p := projectEntity(e, Pose{}, testCamera())
	if p.Distance != 0 {
		t.Fatalf("distance = %g, want 0", p.Distance)
	}
	if !finite(p.Bearing) {
		t.Fatalf("bearing not finite: %g", p.Bearing)
	}
	if p.OnScreen && (!finite(p.ScreenX) || !finite(p.ScreenY)) {
		t.Fatalf("on screen with non-finite coords: %+v", p)
	}
}

func TestProjectOrthographic(t *testing.T) {
	cam := CameraParams{Orthographic: true, OrthoScale: 100}
	e := EntitySnapshot{ID: 101, X: 0, Y: -50}
	p := projectEntity(e, Pose{}, cam)
	if !p.OnScreen {
		t.Fatalf("entity inside ortho extent off screen: %+v", p)
	}
	if math.Abs(p.ScreenX-0.5) > 1e-9 {
		t.Fatalf("screen x = %g, want 0.5", p.ScreenX)
	}
}

func TestProjectSnapshotExcludesSelfAndDead(t *testing.T) {
	snap := &TickSnapshot{
		Seq:    1,
		When:   time.Now(),
		SelfID: 100,
		Entities: map[uint16]EntitySnapshot{
			100: {ID: 100, Name: "Self"},
			101: {ID: 101, Name: "Alpha", X: 50},
			102: {ID: 102, Name: "Bravo", X: 60, Dead: true},
		},
	}
	ents := projectSnapshot(snap, snap.Self, testCamera())
	if len(ents) != 1 {
		t.Fatalf("projected %d entities, want 1", len(ents))
	}
	if ents[0].ID != 101 {
		t.Fatalf("projected entity %d, want 101", ents[0].ID)
	}
}

func TestProjectSnapshotNil(t *testing.T) {
	if ents := projectSnapshot(nil, Pose{}, testCamera()); ents != nil {
		t.Fatalf("nil snapshot projected to %v", ents)
	}
}

func TestProjectBearingRange(t *testing.T) {
	cam := testCamera()
	for angle := -720.0; angle <= 720; angle += 37 {
		for _, pos := range [][2]float64{{10, 0}, {0, 10}, {-10, 0}, {0, -10}, {7, -3}} {
			e := EntitySnapshot{ID: 1, X: pos[0], Y: pos[1]}
			p := projectEntity(e, Pose{Angle: angle}, cam)
			if p.Bearing < -180 || p.Bearing >= 180 {
				t.Fatalf("bearing %g out of range for angle %g pos %v", p.Bearing, angle, pos)
			}
			if p.Distance < 0 {
				t.Fatalf("negative distance %g", p.Distance)
			}
		}
	}
}

func TestEntityLabel(t *testing.T) {
	e := EntitySnapshot{ID: 7, Name: "Alpha", Health: 42}
	if got := entityLabel(e, 123.4); got != "Alpha 123 HP:42" {
		t.Fatalf("label = %q", got)
	}
	anon := EntitySnapshot{ID: 9}
	if got := entityLabel(anon, 5); !strings.HasPrefix(got, "Player_9 ") {
		t.Fatalf("anonymous label = %q", got)
	}
}
