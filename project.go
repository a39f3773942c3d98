package main

import (
	"fmt"
	"math"
)

// CameraParams controls the world-to-screen mapping.
type CameraParams struct {
	FOV          float64 // horizontal field of view, degrees
	VFOVRatio    float64 // vertical FOV as a fraction of FOV; 0 means 0.75
	Orthographic bool
	OrthoScale   float64 // world units spanning half the screen in ortho mode
}

func (c CameraParams) vfov() float64 {
	r := c.VFOVRatio
	if r <= 0 {
		r = 0.75
	}
	return c.FOV * r
}

// ProjectedEntity is a screen-space primitive derived from one entity
// for one tick; it is recomputed every tick and never persisted.
type ProjectedEntity struct {
	ID       uint16
	ScreenX  float64 // normalized, [-1, 1] on screen
	ScreenY  float64
	OnScreen bool
	Distance float64 // world units
	Bearing  float64 // degrees from local facing to entity, [-180, 180)
	Label    string
}

// projectSnapshot converts every non-local, living entity into a
// screen-space primitive. Off-screen entities are still emitted so the
// compositor can draw edge-of-screen direction indicators; dead
// entities are excluded unconditionally.
func projectSnapshot(snap *TickSnapshot, pose Pose, cam CameraParams) []ProjectedEntity {
	if snap == nil {
		return nil
	}
	out := make([]ProjectedEntity, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		if e.ID == snap.SelfID || e.Dead {
			continue
		}
		out = append(out, projectEntity(e, pose, cam))
	}
	return out
}

func projectEntity(e EntitySnapshot, pose Pose, cam CameraParams) ProjectedEntity {
	dx := e.X - pose.X
	dy := e.Y - pose.Y
	dz := e.Z - pose.Z

	dist := math.Hypot(dx, dy)
	bearing := normalizeAngle(math.Atan2(dy, dx)*180/math.Pi - pose.Angle)

	p := ProjectedEntity{
		ID:       e.ID,
		Distance: dist,
		Bearing:  bearing,
		Label:    entityLabel(e, dist),
	}

	// Rotate into camera space. Forward is along the local facing,
	// right is positive toward the right edge of the screen. World +Y
	// sits to the left when facing +X, hence the sign on right.
	yaw := radians(pose.Angle)
	forward := dx*math.Cos(yaw) + dy*math.Sin(yaw)
	right := dx*math.Sin(yaw) - dy*math.Cos(yaw)

	if cam.Orthographic {
		scale := cam.OrthoScale
		if scale <= 0 {
			scale = 1
		}
		p.ScreenX = right / scale
		p.ScreenY = -dz / scale
	} else {
		// A forward component of exactly zero would divide by zero in
		// the perspective transform; the entity is simply off screen.
		if forward <= 0 {
			return p
		}
		halfH := math.Tan(radians(cam.FOV / 2))
		halfV := radians(cam.vfov() / 2)
		if halfH <= 0 || halfV <= 0 {
			return p
		}
		p.ScreenX = (right / forward) / halfH
		// Vertical: elevation angle plus pitch against the vertical
		// half-FOV, the same flat mapping the automap-era overlay used.
		p.ScreenY = -(math.Atan2(dz, dist) + radians(pose.Pitch)) / halfV
	}

	// Orthographic mode is a top-down map, so entities behind the
	// camera still land inside the extent.
	p.OnScreen = (cam.Orthographic || forward > 0) &&
		p.ScreenX >= -1 && p.ScreenX <= 1 &&
		p.ScreenY >= -1 && p.ScreenY <= 1 &&
		finite(p.ScreenX) && finite(p.ScreenY)
	return p
}

func entityLabel(e EntitySnapshot, dist float64) string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("Player_%d", e.ID)
	}
	return fmt.Sprintf("%s %.0f HP:%d", name, dist, e.Health)
}
