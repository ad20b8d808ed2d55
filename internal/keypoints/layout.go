package keypoints

// Group is one named set of landmarks with a fixed expected point count.
type Group struct {
	Name   string
	Points int
}

// Layout fixes the order and size of every group in a flattened frame vector.
type Layout struct {
	Groups []Group
	Coords int
}

const (
	GroupPose      = "pose"
	GroupLeftHand  = "left_hand"
	GroupRightHand = "right_hand"
	GroupFace      = "face"
)

// DefaultLayout is the upper-body holistic layout: 25 pose, 21 per hand, 468 face points, xyz each.
func DefaultLayout() Layout {
	return Layout{
		Groups: []Group{
			{Name: GroupPose, Points: 25},
			{Name: GroupLeftHand, Points: 21},
			{Name: GroupRightHand, Points: 21},
			{Name: GroupFace, Points: 468},
		},
		Coords: 3,
	}
}

func (l Layout) Dim() int {
	n := 0
	for _, g := range l.Groups {
		n += g.Points
	}
	return n * l.Coords
}
