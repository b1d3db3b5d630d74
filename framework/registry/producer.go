package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	gocache "github.com/patrickmn/go-cache"
)

// Producer is a registered instance whose job is to produce the object that
// is actually exposed under its name.
type Producer interface {
	Produce(ctx context.Context) (any, error)

	// Shared reports whether Produce always yields the same object. Shared
	// products are cached and post-processed once.
	Shared() bool
}

// TypedProducer is implemented by producers that can name their product type
// before producing it.
type TypedProducer interface {
	Producer
	ProductType() reflect.Type
}

// PostProcessor transforms a produced object before it is exposed.
type PostProcessor func(ctx context.Context, name string, obj any) (any, error)

// ProducedType returns the product type of p, or nil if p does not declare
// one or fails while doing so.
func ProducedType(p Producer) (t reflect.Type) {
	tp, ok := p.(TypedProducer)
	if !ok {
		return nil
	}
	defer func() {
		if recover() != nil {
			t = nil
		}
	}()
	return tp.ProductType()
}

// NullValue is exposed in place of a nil product so that "no value" can be
// cached and told apart from "not computed yet".
type NullValue struct{}

func (NullValue) String() string { return "null" }

// Null is the null marker.
var Null = NullValue{}

// IsNull reports whether v is nil or the null marker.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(NullValue)
	return ok
}

// GetExposedInstance returns the object p exposes under name.
//
// For a shared producer whose name holds a finished instance, the product is
// produced and post-processed once and cached. Otherwise every call produces
// and post-processes afresh.
func (r *Registry) GetExposedInstance(ctx context.Context, name string, p Producer, post PostProcessor) (any, error) {
	if p == nil {
		return nil, fmt.Errorf("registry: producer for %q must not be nil", name)
	}

	if p.Shared() && r.Contains(name) {
		ctx, c := ensureChain(ctx)
		r.creation.lock(c)
		defer r.creation.unlock(c)

		if obj, ok := r.produced.Get(name); ok {
			return obj, nil
		}
		obj, err := r.produce(ctx, name, p)
		if err != nil {
			return nil, err
		}
		if already, ok := r.produced.Get(name); ok {
			return already, nil
		}

		if post != nil {
			if r.inCreationSet(name) {
				// re-entrant request during post-processing: expose as is
				return obj, nil
			}
			r.mu.Lock()
			err := r.beforeCreation(name)
			r.mu.Unlock()
			if err != nil {
				return nil, err
			}
			obj, err = runPostProcessor(ctx, name, obj, post)
			r.mu.Lock()
			r.afterCreation(name)
			r.mu.Unlock()
			if err != nil {
				return nil, &CreationError{Name: name, Err: fmt.Errorf("post-processing of produced object failed: %w", err)}
			}
		}

		if r.Contains(name) {
			r.produced.Set(name, obj, gocache.NoExpiration)
		}
		return obj, nil
	}

	obj, err := r.produce(ctx, name, p)
	if err != nil {
		return nil, err
	}
	if post != nil {
		obj, err = runPostProcessor(ctx, name, obj, post)
		if err != nil {
			return nil, &CreationError{Name: name, Err: fmt.Errorf("post-processing of produced object failed: %w", err)}
		}
	}
	return obj, nil
}

// CachedExposedInstance returns the cached product for name, if any.
func (r *Registry) CachedExposedInstance(name string) (any, bool) {
	return r.produced.Get(name)
}

func (r *Registry) produce(ctx context.Context, name string, p Producer) (any, error) {
	obj, err := p.Produce(ctx)
	if err != nil {
		if errors.Is(err, ErrProducerNotReady) {
			return nil, &CurrentlyInCreationError{Name: name, Reason: err.Error()}
		}
		return nil, &CreationError{Name: name, Err: fmt.Errorf("producer raised error on object creation: %w", err)}
	}
	if obj == nil {
		if r.inCreationSet(name) {
			return nil, &CurrentlyInCreationError{Name: name, Reason: "producer returned nil while its owner is in creation"}
		}
		return Null, nil
	}
	return obj, nil
}

func runPostProcessor(ctx context.Context, name string, obj any, post PostProcessor) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return post(ctx, name, obj)
}
