// Package host describes the environment one execution context runs in:
// page readiness, closed-window detection, ancestor and frame lookup, frame
// creation and the context-creation (open) facility.
package host

import (
	"context"

	"github.com/danmuck/crosslink/internal/bus"
)

// FrameSpec describes one embedded child context to create.
type FrameSpec struct {
	Name       string
	URL        string
	Hidden     bool
	Attributes map[string]string
}

// Frame is an embedded child context owned by the creating page.
type Frame interface {
	Name() string
	// Window is the frame's content context. It is valid before Attach.
	Window() bus.Window
	// Attach inserts the frame into the page, which starts loading it.
	Attach() error
	// WaitLoad blocks until the native load signal fires or fails.
	WaitLoad(ctx context.Context) error
	// Detach removes the frame from the page. Safe to call more than once.
	Detach()
}

// Host is the per-context environment consumed by crosslink components.
type Host interface {
	// Domain is this context's own verified origin.
	Domain() string
	Self() bus.Window
	IsClosed(w bus.Window) bool
	Ancestor() (bus.Window, bool)
	FrameByName(name string) (bus.Window, bool)
	// Ready blocks until the page can accept attached frames.
	Ready(ctx context.Context) error
	CreateFrame(spec FrameSpec) (Frame, error)
}

// OpenHook observes every context spawned through an Opener.
type OpenHook func(w bus.Window, url, name string)

// Opener is the host's context-creation facility.
type Opener interface {
	// Open spawns a new top-level context. A nil window with a nil error
	// means the host declined to open one.
	Open(ctx context.Context, url, name string) (bus.Window, error)
	OnOpen(hook OpenHook) (cancel func())
}

// HiddenFrameSpec returns the attributes of a hidden, non-interactive relay frame.
func HiddenFrameSpec(name, url string) FrameSpec {
	return FrameSpec{
		Name:   name,
		URL:    url,
		Hidden: true,
		Attributes: map[string]string{
			"id":                name,
			"style":             "display: none; margin: 0; padding: 0; border: 0px none; overflow: hidden;",
			"frameborder":       "0",
			"border":            "0",
			"scrolling":         "no",
			"allowTransparency": "true",
			"tabindex":          "-1",
			"hidden":            "true",
			"title":             "",
			"role":              "presentation",
		},
	}
}
