package world

import (
	"fmt"
	"math"
)

// ActorID identifies a proxy actor. Sessions hold it as a weak reference only.
type ActorID string

// ItemKind names a reward item dropped by an actor.
type ItemKind string

const (
	ItemPainting    ItemKind = "painting"
	ItemMusicDisc13 ItemKind = "music_disc_13"
)

// Vec3 is a world-space position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

// Scale returns v * f.
func (v Vec3) Scale(f float64) Vec3 { return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f} }

// LengthSq returns the squared length of v.
func (v Vec3) LengthSq() float64 { return v.X*v.X + v.Y*v.Y + v.Z*v.Z }

// DistanceSq returns the squared distance between two points.
func (v Vec3) DistanceSq(o Vec3) float64 { return v.Sub(o).LengthSq() }

// Yaw returns the heading in degrees from v towards target on the horizontal plane.
func (v Vec3) Yaw(target Vec3) float64 {
	d := target.Sub(v)
	return math.Atan2(-d.X, d.Z) * 180 / math.Pi
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}
