package structure

import "github.com/leapstack-labs/objsql/pkg/pool"

// Frame is one level of an active traversal.
type Frame struct {
	Node *Node

	// Data is the cursor values are read from while this frame is current (read passes only).
	Data *pool.ObjectData

	// ExpectedChain marks an element frame whose next fast array spans several members.
	ExpectedChain bool
}

// Stack is the explicit frame stack of a pass.
type Stack struct {
	frames []*Frame
}

// Push adds a frame and returns a func that truncates the stack back to where it was.
// Calling the func more than once is harmless.
func (s *Stack) Push(f *Frame) (pop func()) {
	depth := len(s.frames)
	s.frames = append(s.frames, f)
	return func() { s.Truncate(depth) }
}

// Truncate drops every frame above depth.
func (s *Stack) Truncate(depth int) {
	if depth < 0 {
		depth = 0
	}
	if depth < len(s.frames) {
		clear(s.frames[depth:])
		s.frames = s.frames[:depth]
	}
}

// Depth returns the number of frames.
func (s *Stack) Depth() int {
	return len(s.frames)
}

// Top returns the current frame, or nil.
func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// At returns the frame at depth i (0 is the bottom).
func (s *Stack) At(i int) *Frame {
	return s.frames[i]
}

// PopTo pops frames down to and including the topmost frame matching match.
// It returns false and leaves the stack untouched when no frame matches.
func (s *Stack) PopTo(match func(*Frame) bool) bool {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if match(s.frames[i]) {
			s.Truncate(i)
			return true
		}
	}
	return false
}

// Object returns the nearest object frame, or nil.
func (s *Stack) Object() *Frame {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Node.Kind == KindObject {
			return s.frames[i]
		}
	}
	return nil
}

// Data returns the nearest data cursor, or nil.
func (s *Stack) Data() *pool.ObjectData {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Data != nil {
			return s.frames[i].Data
		}
	}
	return nil
}

// InBlob reports whether values written at the top of the stack belong to a
// raw value stream rather than to class table columns.
func (s *Stack) InBlob() bool {
	for i := len(s.frames) - 1; i >= 0; i-- {
		n := s.frames[i].Node
		switch n.Kind {
		case KindElement:
			if n.Member != nil && !n.Member.IsColumn() {
				return true
			}
		case KindCustomElement, KindCustomClass:
			return true
		case KindObject:
			return n.IsInline()
		}
	}
	return false
}
