package world

import "strings"

// A set of pending property changes on a shared obstacle.
type Dirty uint32

const (
	DirtyPosition Dirty = 1 << iota
	DirtyVelocity
	DirtyAngle
	DirtyAngularVelocity
	DirtyBodyType
	DirtyBools
	DirtyFloats
)

const (
	Clean    Dirty = 0
	DirtyAll       = DirtyPosition | DirtyVelocity | DirtyAngle | DirtyAngularVelocity | DirtyBodyType | DirtyBools | DirtyFloats
)

var dirtyNames = []string{"Position", "Velocity", "Angle", "AngularVelocity", "BodyType", "Bools", "Floats"}

func (d Dirty) Matches(flag Dirty) bool {
	return d&flag > 0
}

// Splits the set into its single bit flags, lowest first.
func (d Dirty) Split() []Dirty {
	ret := make([]Dirty, 0, len(dirtyNames))
	for i := range dirtyNames {
		if flag := Dirty(1 << uint(i)); d.Matches(flag) {
			ret = append(ret, flag)
		}
	}
	return ret
}

func (d Dirty) String() string {
	if d == Clean {
		return "Clean"
	}

	names := make([]string, 0, len(dirtyNames))
	for i, name := range dirtyNames {
		if d.Matches(Dirty(1 << uint(i))) {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}
