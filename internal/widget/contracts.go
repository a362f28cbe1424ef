// Package widget defines the black-box contract of the external
// embeddable media-player widget the adapter drives.
package widget

import "go2tv.app/embedplayer/internal/dom"

// Options is the configuration handed to a widget at setup time. The
// callbacks fire asynchronously, independent of the host lifecycle.
type Options struct {
	Source   string
	Width    int
	Height   int
	AutoPlay bool

	// OnReady fires once, when the widget has finished initializing.
	OnReady func()
	// OnError reports widget/playback failures. The widget takes no
	// corrective action on behalf of the caller.
	OnError func(err error)
}

// Handle is a live widget instance.
type Handle interface {
	Setup(opts Options) error
	// Width returns the widget's rendered width. ok is false while the
	// widget is still initializing; callers must treat that state as
	// "resize would silently no-op" and come back later.
	Width() (width int, ok bool)
	Resize(width, height int) error
	Close() error
}

// Factory instantiates widgets against a content element. The element
// must be attached to its document and addressable by identifier.
type Factory interface {
	Instantiate(content dom.Element) (Handle, error)
}
