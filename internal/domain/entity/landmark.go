package entity

type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Holistic holds the landmark groups detected in one frame, keyed by group name.
// A group that was not detected is either absent or nil.
type Holistic map[string][]Landmark
