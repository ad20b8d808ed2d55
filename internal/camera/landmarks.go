package camera

import "fmt"

type Kind int

const (
	KindMissing Kind = iota
	KindFlat
	KindHolistic
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindHolistic:
		return "holistic"
	case KindRaw:
		return "raw"
	}
	return "missing"
}

// holisticGroups is the order groups are flattened in for mapping-style payloads.
var holisticGroups = []string{"pose", "face", "left_hand", "right_hand"}

// Point is one mapping-style landmark. Nil coordinates read as zero.
type Point struct {
	X, Y, Z, Visibility *float64
	// NotObject marks an entry that was neither null nor an object.
	NotObject bool
}

// Landmarks is the per-frame landmark payload. Exactly one of Flat, Holistic or
// raw is meaningful, selected by Kind.
type Landmarks struct {
	Kind     Kind
	Flat     []float64
	Holistic map[string][]*Point
	raw      node
}

func (l *Landmarks) UnmarshalJSON(data []byte) error {
	n, err := decodeNode(data)
	if err != nil {
		return fmt.Errorf("decode landmarks: %w", err)
	}

	switch n.kind {
	case nodeNull:
		*l = Landmarks{Kind: KindMissing}
	case nodeArray:
		if flat, ok := numericArray(n); ok {
			*l = Landmarks{Kind: KindFlat, Flat: flat}
			return nil
		}
		*l = Landmarks{Kind: KindRaw, raw: n}
	case nodeObject:
		groups, err := holisticFromNode(n)
		if err != nil {
			return err
		}
		*l = Landmarks{Kind: KindHolistic, Holistic: groups}
	default:
		*l = Landmarks{Kind: KindRaw, raw: n}
	}
	return nil
}

// Vector flattens the payload according to its kind.
func (l Landmarks) Vector() ([]float32, error) {
	switch l.Kind {
	case KindFlat:
		return flatVector(l.Flat), nil
	case KindHolistic:
		return holisticVector(l.Holistic), nil
	case KindRaw:
		return collectVector(l.raw), nil
	}
	return nil, ErrMissingLandmarks
}

func numericArray(n node) ([]float64, bool) {
	out := make([]float64, 0, len(n.items))
	for _, it := range n.items {
		if it.kind != nodeNumber {
			return nil, false
		}
		out = append(out, it.num)
	}
	return out, true
}

func holisticFromNode(n node) (map[string][]*Point, error) {
	groups := make(map[string][]*Point, len(holisticGroups))
	for _, name := range holisticGroups {
		g, ok := n.get(name)
		if !ok || g.kind == nodeNull {
			continue
		}
		if g.kind != nodeArray {
			return nil, fmt.Errorf("landmarks.%s must be a list of points", name)
		}
		points := make([]*Point, len(g.items))
		for i, it := range g.items {
			p, err := pointFromNode(it)
			if err != nil {
				return nil, fmt.Errorf("landmarks.%s[%d]: %w", name, i, err)
			}
			points[i] = p
		}
		groups[name] = points
	}
	return groups, nil
}

func pointFromNode(n node) (*Point, error) {
	switch n.kind {
	case nodeNull:
		return nil, nil
	case nodeObject:
	default:
		return &Point{NotObject: true}, nil
	}

	p := &Point{}
	for _, f := range []struct {
		key string
		dst **float64
	}{{"x", &p.X}, {"y", &p.Y}, {"z", &p.Z}, {"visibility", &p.Visibility}} {
		v, ok := n.get(f.key)
		if !ok || v.kind == nodeNull {
			continue
		}
		num, ok := v.float()
		if !ok {
			return nil, fmt.Errorf("%s is not numeric", f.key)
		}
		*f.dst = &num
	}
	return p, nil
}

func flatVector(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

// holisticVector emits x, y, z, visibility per point. Null points are four zeros;
// entries that are not objects count as a visible point at the origin.
func holisticVector(groups map[string][]*Point) []float32 {
	var out []float32
	for _, name := range holisticGroups {
		for _, p := range groups[name] {
			switch {
			case p == nil:
				out = append(out, 0, 0, 0, 0)
			case p.NotObject:
				out = append(out, 0, 0, 0, 1)
			default:
				out = append(out, deref(p.X), deref(p.Y), deref(p.Z), deref(p.Visibility))
			}
		}
	}
	return out
}

func deref(v *float64) float32 {
	if v == nil {
		return 0
	}
	return float32(*v)
}

// collectVector is the last-resort flattener for shapes that are neither flat nor mapping-style.
func collectVector(n node) []float32 {
	var out []float32
	var collect func(node)
	collect = func(n node) {
		switch n.kind {
		case nodeNumber, nodeBool:
			out = append(out, float32(n.num))
		case nodeArray:
			for _, it := range n.items {
				collect(it)
			}
		case nodeObject:
			for _, key := range []string{"x", "y", "z", "visibility"} {
				v, ok := n.get(key)
				if !ok {
					continue
				}
				f, _ := v.float()
				out = append(out, float32(f))
			}
			for _, v := range n.items {
				if v.kind == nodeArray {
					collect(v)
				}
			}
		}
	}
	collect(n)
	return out
}
