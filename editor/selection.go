package editor

import (
	"raytrace-engine/math"
	"raytrace-engine/scene"
)

// Selection tracks picked nodes. The active node is the last one added.
type Selection struct {
	Objects      []*scene.Node
	ActiveObject *scene.Node
}

func NewSelection() *Selection {
	return &Selection{}
}

func (s *Selection) Clear() {
	s.Objects = s.Objects[:0]
	s.ActiveObject = nil
}

// SelectSingle replaces the selection with node.
func (s *Selection) SelectSingle(node *scene.Node) {
	s.Objects = append(s.Objects[:0], node)
	s.ActiveObject = node
}

// ToggleObject adds node, or removes it if already selected.
func (s *Selection) ToggleObject(node *scene.Node) {
	for i, n := range s.Objects {
		if n == node {
			s.Objects = append(s.Objects[:i], s.Objects[i+1:]...)
			if s.ActiveObject == node {
				s.ActiveObject = nil
				if len(s.Objects) > 0 {
					s.ActiveObject = s.Objects[len(s.Objects)-1]
				}
			}
			return
		}
	}
	s.Objects = append(s.Objects, node)
	s.ActiveObject = node
}

func (s *Selection) IsSelected(node *scene.Node) bool {
	for _, n := range s.Objects {
		if n == node {
			return true
		}
	}
	return false
}

// Apply updates the selection from a pick: a miss clears it unless
// additive, a hit selects or toggles the node.
func (s *Selection) Apply(hit HitResult, additive bool) {
	switch {
	case !hit.Hit || hit.Node == nil:
		if !additive {
			s.Clear()
		}
	case additive:
		s.ToggleObject(hit.Node)
	default:
		s.SelectSingle(hit.Node)
	}
}

// Center returns the mean world position of the selected nodes.
func (s *Selection) Center() math.Vec3 {
	if len(s.Objects) == 0 {
		return math.Vec3Zero
	}
	center := math.Vec3Zero
	for _, obj := range s.Objects {
		center = center.Add(obj.GetWorldMatrix().Translation())
	}
	return center.Div(float32(len(s.Objects)))
}

func (s *Selection) HasSelection() bool {
	return len(s.Objects) > 0
}
