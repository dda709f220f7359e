package physics

import (
	"math"

	"github.com/pkopriv2/lockstep/world"
)

// A distance joint.  The bodies are held at the distance they were
// apart when the joint was created.
type Joint struct {
	a, b   *Body
	length float64
}

func NewJoint(a, b *Body) *Joint {
	return &Joint{a: a, b: b, length: distance(a, b)}
}

func (j *Joint) A() world.Obstacle {
	return j.a
}

func (j *Joint) B() world.Obstacle {
	return j.b
}

func (j *Joint) Length() float64 {
	return j.length
}

func (j *Joint) attached(b *Body) bool {
	return j.a == b || j.b == b
}

// Moves whichever body is dynamic back onto the joint's length.
func (j *Joint) solve() {
	anchor, free := j.a, j.b
	if free.kind != Dynamic {
		anchor, free = free, anchor
	}
	if free.kind != Dynamic {
		return
	}

	cur := distance(anchor, free)
	if cur == 0 || math.Abs(cur-j.length) < 1e-6 {
		return
	}

	ratio := j.length / cur
	x := anchor.obj.X + (free.obj.X-anchor.obj.X)*ratio
	y := anchor.obj.Y + (free.obj.Y-anchor.obj.Y)*ratio
	free.move(x, y)
}

func distance(a, b *Body) float64 {
	return math.Hypot(b.obj.X-a.obj.X, b.obj.Y-a.obj.Y)
}
