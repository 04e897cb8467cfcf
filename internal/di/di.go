// Package di is a small lazy service container with typed tokens.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry resolves services by key.
type ServiceRegistry interface {
	Get(key string) any
}

// Container is a ServiceRegistry that modules can register into.
type Container interface {
	ServiceRegistry
	Register(key string, service any)
	RegisterFactory(key string, factory func(ServiceRegistry) any)
	Has(key string) bool
}

type entry struct {
	once    sync.Once
	factory func(ServiceRegistry) any
	value   any
}

type container struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{entries: make(map[string]*entry)}
}

// Register stores an already-built service.
func (c *container) Register(key string, service any) {
	e := &entry{value: service}
	e.once.Do(func() {})

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// RegisterFactory stores a factory that is invoked once, on first Get.
func (c *container) RegisterFactory(key string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	c.entries[key] = &entry{factory: factory}
	c.mu.Unlock()
}

// Has reports whether key is registered.
func (c *container) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Get resolves key, building it on first access. Panics on unknown keys.
func (c *container) Get(key string) any {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("di: service %q not registered", key))
	}

	// The lock is released before building so factories can resolve their own dependencies.
	e.once.Do(func() {
		e.value = e.factory(c)
	})
	return e.value
}

// Token is a typed key for a service.
type Token[T any] struct {
	key string
}

// NewToken creates a token for key.
func NewToken[T any](key string) Token[T] {
	return Token[T]{key: key}
}

// Key returns the underlying registry key.
func (t Token[T]) Key() string {
	return t.key
}

// RegisterToken registers a typed factory under the token's key.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.key, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves a typed service.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	v := sr.Get(token.key)
	svc, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has type %T", token.key, v))
	}
	return svc
}
