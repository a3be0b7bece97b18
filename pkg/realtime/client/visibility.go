package client

import "sync"

// Visibility reports whether the hosting page is shown and notifies on
// change. Hidden clients defer connecting and skip keep-alive pings.
type Visibility interface {
	Visible() bool
	// OnChange registers fn and returns a function removing it.
	OnChange(fn func(visible bool)) (remove func())
}

// AlwaysVisible is the Visibility of a headless consumer.
type AlwaysVisible struct{}

func (AlwaysVisible) Visible() bool { return true }
func (AlwaysVisible) OnChange(func(bool)) (remove func()) { return func() {} }

// ManualVisibility is toggled by the embedder, for example from a
// window focus hook.
type ManualVisibility struct {
	mu        sync.Mutex
	visible   bool
	next      int
	listeners map[int]func(bool)
}

func NewManualVisibility(visible bool) *ManualVisibility {
	return &ManualVisibility{visible: visible, listeners: make(map[int]func(bool))}
}

func (v *ManualVisibility) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

func (v *ManualVisibility) OnChange(fn func(bool)) (remove func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.next
	v.next++
	v.listeners[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners, id)
	}
}

// Set changes visibility and notifies listeners when it differs.
func (v *ManualVisibility) Set(visible bool) {
	v.mu.Lock()
	if v.visible == visible {
		v.mu.Unlock()
		return
	}
	v.visible = visible
	fns := make([]func(bool), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(visible)
	}
}
