// blobs.go - Blob-Container und Shape-Maps
//
// Beide Typen behalten die deklarierte Reihenfolge der Modell-Blobs bei,
// Eingaenge vor Ausgaengen.
package ml

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/easydeploy/infercore/internal/orderedmap"
)

// =============================================================================
// Blobs - Container fuer eine Inferenz-Anfrage
// =============================================================================

// Blobs maps blob names to host tensors. A container is owned by the caller
// that allocated it and may be reused serially across requests.
type Blobs struct {
	m *orderedmap.Map[string, *Tensor]
}

// NewBlobs creates an empty container.
func NewBlobs() *Blobs {
	return &Blobs{m: orderedmap.New[string, *Tensor]()}
}

// Add inserts t under its name. Names must be unique.
func (b *Blobs) Add(t *Tensor) error {
	if t == nil {
		return errors.New("blobs: nil tensor")
	}
	if _, ok := b.m.Get(t.Name()); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateBlob, t.Name())
	}
	b.m.Set(t.Name(), t)
	return nil
}

// Get returns the tensor for name.
func (b *Blobs) Get(name string) (*Tensor, bool) {
	if b == nil {
		return nil, false
	}
	return b.m.Get(name)
}

// Tensor returns the tensor for name or ErrMissingBlob.
func (b *Blobs) Tensor(name string) (*Tensor, error) {
	t, ok := b.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingBlob, name)
	}
	return t, nil
}

// Names returns all blob names in declared order.
func (b *Blobs) Names() []string {
	if b == nil {
		return nil
	}
	return b.m.Keys()
}

func (b *Blobs) Len() int {
	if b == nil {
		return 0
	}
	return b.m.Len()
}

// All iterates over name/tensor pairs in declared order.
func (b *Blobs) All() iter.Seq2[string, *Tensor] {
	if b == nil {
		return func(func(string, *Tensor) bool) {}
	}
	return b.m.All()
}

// ByteSize sums the byte size of all tensors.
func (b *Blobs) ByteSize() int {
	var n int
	for _, t := range b.All() {
		n += t.ByteSize()
	}
	return n
}

// Reset restores every tensor to its default shape.
func (b *Blobs) Reset() error {
	var errs []error
	for _, t := range b.All() {
		errs = append(errs, t.Reset())
	}
	return errors.Join(errs...)
}

// =============================================================================
// ShapeMap - Blob-Name zu Shape
// =============================================================================

// ShapeMap is an ordered blob-name to shape mapping.
type ShapeMap struct {
	m *orderedmap.Map[string, Shape]
}

// NewShapeMap creates an empty map.
func NewShapeMap() *ShapeMap {
	return &ShapeMap{m: orderedmap.New[string, Shape]()}
}

// Set stores a copy of shape under name.
func (s *ShapeMap) Set(name string, shape Shape) {
	s.m.Set(name, shape.Clone())
}

// Get returns a copy of the shape for name.
func (s *ShapeMap) Get(name string) (Shape, bool) {
	if s == nil {
		return nil, false
	}
	shape, ok := s.m.Get(name)
	return shape.Clone(), ok
}

func (s *ShapeMap) Len() int {
	if s == nil {
		return 0
	}
	return s.m.Len()
}

// Names returns all names in insertion order.
func (s *ShapeMap) Names() []string {
	if s == nil {
		return nil
	}
	return s.m.Keys()
}

// All iterates over name/shape pairs in insertion order.
func (s *ShapeMap) All() iter.Seq2[string, Shape] {
	return func(yield func(string, Shape) bool) {
		if s == nil {
			return
		}
		for name, shape := range s.m.All() {
			if !yield(name, shape.Clone()) {
				return
			}
		}
	}
}

// Clone returns a deep copy. A nil map clones to nil.
func (s *ShapeMap) Clone() *ShapeMap {
	if s == nil {
		return nil
	}
	c := NewShapeMap()
	for name, shape := range s.All() {
		c.Set(name, shape)
	}
	return c
}

// Validate rejects an empty map and any invalid shape.
func (s *ShapeMap) Validate() error {
	if s.Len() == 0 {
		return ErrNoBlobs
	}
	for name, shape := range s.All() {
		if name == "" {
			return fmt.Errorf("%w: empty blob name", ErrInvalidShape)
		}
		if err := shape.Validate(); err != nil {
			return fmt.Errorf("blob %q: %w", name, err)
		}
	}
	return nil
}

// Equal compares names, order and shapes.
func (s *ShapeMap) Equal(o *ShapeMap) bool {
	if !slices.Equal(s.Names(), o.Names()) {
		return false
	}
	for name, shape := range s.All() {
		other, _ := o.Get(name)
		if !shape.Equal(other) {
			return false
		}
	}
	return true
}

func (s *ShapeMap) String() string {
	var out []byte
	for name, shape := range s.All() {
		if len(out) > 0 {
			out = append(out, ' ')
		}
		out = fmt.Appendf(out, "%s=%v", name, shape)
	}
	return string(out)
}
