package plugins

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// HookName identifies a lifecycle point of a registry operation.
type HookName string

const (
	BeforeAdd    HookName = "before_add"
	AfterAdd     HookName = "after_add"
	BeforeDelete HookName = "before_delete"
	AfterDelete  HookName = "after_delete"
	BeforeUpdate HookName = "before_update"
	AfterUpdate  HookName = "after_update"
)

// HookNames lists every lifecycle point.
var HookNames = []HookName{BeforeAdd, AfterAdd, BeforeDelete, AfterDelete, BeforeUpdate, AfterUpdate}

// HookData is the interface implemented by every hook payload
type HookData interface {
	// HookName returns the lifecycle point this payload belongs to
	HookName() HookName
}

// BeforeAddData is passed to before_add hooks.
// Plugin is the candidate itself: hooks may adjust it before validation.
type BeforeAddData struct {
	Kind   Kind
	Plugin Plugin
}

// HookName returns the hook name for BeforeAddData
func (d *BeforeAddData) HookName() HookName { return BeforeAdd }

// AfterAddData is passed to after_add hooks with a copy of the stored plugin
type AfterAddData struct {
	Kind   Kind
	Plugin Plugin
}

// HookName returns the hook name for AfterAddData
func (d *AfterAddData) HookName() HookName { return AfterAdd }

// BeforeUpdateData is passed to before_update hooks
type BeforeUpdateData struct {
	Kind    Kind
	Current Plugin
	Updates map[string]any
}

// HookName returns the hook name for BeforeUpdateData
func (d *BeforeUpdateData) HookName() HookName { return BeforeUpdate }

// AfterUpdateData is passed to after_update hooks
type AfterUpdateData struct {
	Kind     Kind
	Previous Plugin
	Plugin   Plugin
}

// HookName returns the hook name for AfterUpdateData
func (d *AfterUpdateData) HookName() HookName { return AfterUpdate }

// BeforeDeleteData is passed to before_delete hooks
type BeforeDeleteData struct {
	Kind   Kind
	Plugin Plugin
}

// HookName returns the hook name for BeforeDeleteData
func (d *BeforeDeleteData) HookName() HookName { return BeforeDelete }

// AfterDeleteData is passed to after_delete hooks with the removed plugin
type AfterDeleteData struct {
	Kind   Kind
	Plugin Plugin
}

// HookName returns the hook name for AfterDeleteData
func (d *AfterDeleteData) HookName() HookName { return AfterDelete }

// Hook is a lifecycle callback. A returned error is logged and never aborts the operation.
type Hook func(ctx context.Context, data HookData) error

// HookBus dispatches lifecycle payloads to registered hooks.
type HookBus struct {
	mu          sync.RWMutex
	hooks       map[HookName][]Hook
	subscribers []Hook
	log         zerolog.Logger
}

// NewHookBus creates an empty hook bus
func NewHookBus(log zerolog.Logger) *HookBus {
	return &HookBus{
		hooks: make(map[HookName][]Hook),
		log:   log.With().Str("component", "hooks").Logger(),
	}
}

// AddHook appends fn to the hooks run for name
func (b *HookBus) AddHook(name HookName, fn Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks[name] = append(b.hooks[name], fn)
}

// Subscribe registers fn for every hook name. Subscribers run after the named hooks.
func (b *HookBus) Subscribe(fn Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Execute runs every hook registered for the payload's name in registration order,
// then every subscriber. Each callback is isolated: an error or a panic is logged
// and the remaining callbacks still run.
func (b *HookBus) Execute(ctx context.Context, data HookData) {
	name := data.HookName()

	b.mu.RLock()
	callbacks := make([]Hook, 0, len(b.hooks[name])+len(b.subscribers))
	callbacks = append(callbacks, b.hooks[name]...)
	callbacks = append(callbacks, b.subscribers...)
	b.mu.RUnlock()

	for i, fn := range callbacks {
		if err := b.invoke(ctx, fn, data); err != nil {
			b.log.Error().
				Err(err).
				Str("hook", string(name)).
				Int("index", i).
				Msg("Hook failed")
		}
	}
}

func (b *HookBus) invoke(ctx context.Context, fn Hook, data HookData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return fn(ctx, data)
}
