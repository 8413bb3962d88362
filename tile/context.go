package tile

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

var ErrSurface = errors.New("pixeltiles: rendering surface not comparable")

// ContextKey identifies a rendering context, tiles keep one normalized image per key.
type ContextKey string

// NoContext is the key used when drawing without a specific rendering context.
const NoContext ContextKey = ""

// Contexts hands out a stable key per rendering surface, assigned on first use.
// Surfaces are compared by identity, so they must be comparable (usually a pointer).
// Contexts is not safe for concurrent use.
type Contexts struct {
	keys map[any]ContextKey
}

func NewContexts() *Contexts {
	return &Contexts{keys: make(map[any]ContextKey)}
}

// Key returns the key of surface. A nil surface maps to NoContext, a surface that cannot be
// compared (a slice, map or func, or a struct holding one) fails with ErrSurface.
func (c *Contexts) Key(surface any) (ContextKey, error) {
	if surface == nil {
		return NoContext, nil
	}
	if !reflect.ValueOf(surface).Comparable() {
		return NoContext, fmt.Errorf("%w: %T", ErrSurface, surface)
	}
	key, ok := c.keys[surface]
	if !ok {
		key = ContextKey(uuid.NewString())
		c.keys[surface] = key
	}
	return key, nil
}

// Forget drops the key of surface, a later Key call assigns a new one.
func (c *Contexts) Forget(surface any) {
	if surface == nil || !reflect.ValueOf(surface).Comparable() {
		return
	}
	delete(c.keys, surface)
}

func (c *Contexts) Len() int {
	return len(c.keys)
}
