// Package player adapts an external embeddable media-player widget into
// the host component lifecycle. The widget can only be instantiated
// against an element that is attached to the document and addressable
// by identifier, signals readiness and errors asynchronously, and
// silently ignores resize calls while it is still initializing; the
// adapter absorbs all three mismatches.
package player

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go2tv.app/embedplayer/internal/component"
	"go2tv.app/embedplayer/internal/dom"
	"go2tv.app/embedplayer/internal/domain"
	"go2tv.app/embedplayer/internal/widget"
)

const (
	defaultPollInterval    = 100 * time.Millisecond
	defaultPollMaxAttempts = 50
)

// State tracks the decoration flow. Rejected and Decorated are
// terminal.
type State int

const (
	StateUndecorated State = iota
	StateValidating
	StateDecorated
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateUndecorated:
		return "undecorated"
	case StateValidating:
		return "validating"
	case StateDecorated:
		return "decorated"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Options configures a Player. OnReady and OnError are optional; the
// adapter installs its own handlers regardless and invokes them ahead
// of the caller's.
type Options struct {
	Width    int
	Height   int
	Source   string
	AutoPlay bool

	OnReady func()
	OnError func(err error)
}

// Player is the media-player adapter component. One Player owns at most
// one widget handle for its whole lifetime.
type Player struct {
	component.Base

	doc     dom.Document
	factory widget.Factory

	pollInterval    time.Duration
	pollMaxAttempts int
	logf            func(format string, args ...any)

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	closeOnce  sync.Once

	// Ordered subscriber lists for the widget's lifecycle signals. The
	// adapter's handler is registered first, the caller's second, so
	// both fire without either knowing about the other.
	readySubs []func()
	errorSubs []func(error)

	mu              sync.Mutex
	opts            *Options
	state           State
	contentID       string
	content         dom.Element
	handle          widget.Handle
	pending         *domain.Size
	pollRunning     bool
	lastWidgetErr   error
	unlistenCanPlay func()
}

// New builds an undecorated Player. Call Render to synthesize the
// container, or Decorate to adopt an existing element.
func New(doc dom.Document, factory widget.Factory, opts Options) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		doc:             doc,
		factory:         factory,
		pollInterval:    defaultPollInterval,
		pollMaxAttempts: defaultPollMaxAttempts,
		logf:            func(string, ...any) {},
		lifeCtx:         ctx,
		lifeCancel:      cancel,
		opts:            &opts,
		state:           StateUndecorated,
	}

	p.readySubs = append(p.readySubs, p.handleWidgetReady)
	if opts.OnReady != nil {
		p.readySubs = append(p.readySubs, opts.OnReady)
	}
	p.errorSubs = append(p.errorSubs, p.handleWidgetError)
	if opts.OnError != nil {
		p.errorSubs = append(p.errorSubs, opts.OnError)
	}

	return p
}

// SetLogf installs a logging hook. The default discards everything.
func (p *Player) SetLogf(logf func(format string, args ...any)) {
	if logf == nil {
		return
	}
	p.logf = logf
}

// State returns the current decoration state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CanDecorate reports whether el is adoptable by the widget: exactly
// one div descendant, that descendant carrying a non-empty identifier,
// and el itself attached under the document body. Identifier lookup is
// global, so detached candidates are useless to the widget. Pure
// predicate; no side effects.
func (p *Player) CanDecorate(el dom.Element) bool {
	if el == nil {
		return false
	}
	divs := el.ElementsByTag("div")
	if len(divs) != 1 {
		return false
	}
	if strings.TrimSpace(divs[0].ID()) == "" {
		return false
	}
	return dom.AttachedToBody(p.doc, el)
}

// Decorate adopts el as the player container, instantiates the widget
// against its content element and hands the widget its setup options.
// The container is sized immediately, before the widget reports ready,
// so it occupies correct layout space from the start.
func (p *Player) Decorate(el dom.Element) error {
	p.mu.Lock()
	switch {
	case p.state == StateDecorated:
		p.mu.Unlock()
		return &domain.AdapterError{Code: domain.CodeInternal, Message: "player is already decorated"}
	case p.Disposed():
		p.mu.Unlock()
		return &domain.AdapterError{Code: domain.CodeInternal, Message: "player is disposed"}
	}
	p.state = StateValidating
	opts := p.opts
	p.mu.Unlock()

	if !p.CanDecorate(el) {
		p.mu.Lock()
		p.state = StateRejected
		p.mu.Unlock()
		return &domain.AdapterError{Code: domain.CodeDecorationRejected, Message: "element is not decorable by the media widget"}
	}

	content := el.ElementsByTag("div")[0]

	// The widget may replace the content node later; the identifier is
	// the only durable reference and is captured exactly once.
	p.mu.Lock()
	p.contentID = content.ID()
	p.content = content
	p.mu.Unlock()

	el.SetSize(domain.Size{Width: opts.Width, Height: opts.Height})

	handle, err := p.factory.Instantiate(content)
	if err != nil {
		p.mu.Lock()
		p.state = StateRejected
		p.mu.Unlock()
		return &domain.AdapterError{Code: domain.CodeInternal, Message: fmt.Sprintf("instantiate widget: %v", err)}
	}

	p.mu.Lock()
	p.handle = handle
	p.mu.Unlock()
	p.SetRoot(el)

	// Attached before EnterDocument so an early can-play signal fired
	// right after insertion cannot be missed.
	p.listenCanPlay(el)

	if err := handle.Setup(p.widgetOptions(opts)); err != nil {
		p.mu.Lock()
		p.handle = nil
		p.state = StateRejected
		p.mu.Unlock()
		_ = handle.Close()
		return &domain.AdapterError{Code: domain.CodeInternal, Message: fmt.Sprintf("widget setup: %v", err)}
	}

	p.mu.Lock()
	p.state = StateDecorated
	p.mu.Unlock()
	return nil
}

// CreateDom synthesizes a fresh container and decorates it. Validation
// requires a body-attached candidate, so the container is parked under
// the body, hidden, for the duration of decoration and detached again
// afterwards.
func (p *Player) CreateDom() error {
	container := p.doc.CreateElement("div")
	content := p.doc.CreateElement("div")
	content.SetID("embedplayer_" + randomToken(8))
	container.AppendChild(content)

	container.SetVisible(false)
	p.doc.Body().AppendChild(container)

	err := p.Decorate(container)

	container.Detach()
	container.SetVisible(true)
	return err
}

// Render places the player under parent, synthesizing the container
// first when the player was not decorated externally.
func (p *Player) Render(parent dom.Element) error {
	if p.Root() == nil {
		if err := p.CreateDom(); err != nil {
			return err
		}
	}
	if parent != nil {
		parent.AppendChild(p.Root())
	}
	p.EnterDocument()
	return nil
}

// SetSize requests a new player size. The container element is resized
// immediately and unconditionally; the widget is resized directly when
// it is ready, and otherwise through a bounded poll that fires once the
// widget starts reporting a width.
func (p *Player) SetSize(width, height int) error {
	return p.Resize(domain.Size{Width: width, Height: height})
}

// Resize is the size-object form of SetSize; the two are equivalent.
func (p *Player) Resize(size domain.Size) error {
	if !size.IsValid() {
		return &domain.AdapterError{Code: domain.CodeInvalidSize, Message: fmt.Sprintf("dimensions must be non-negative, got %dx%d", size.Width, size.Height)}
	}
	root := p.Root()
	if root == nil {
		return &domain.AdapterError{Code: domain.CodeInternal, Message: "player has no container element"}
	}

	root.SetSize(size)

	p.mu.Lock()
	handle := p.handle
	if handle == nil {
		p.mu.Unlock()
		return nil
	}
	if _, ok := handle.Width(); ok {
		p.mu.Unlock()
		return handle.Resize(size.Width, size.Height)
	}

	// Still initializing: park the request and let the poll resolve it.
	// A newer request simply replaces the parked one.
	p.pending = &size
	if !p.pollRunning {
		p.pollRunning = true
		go p.runResizePoll(p.lifeCtx)
	}
	p.mu.Unlock()
	return nil
}

// Size reads the container element's current size. The widget is not
// consulted.
func (p *Player) Size() domain.Size {
	root := p.Root()
	if root == nil {
		return domain.Size{}
	}
	return root.Size()
}

// runResizePoll re-checks widget readiness at a fixed interval until
// the widget reports a width, the attempt budget is spent, or the
// player is disposed. Attempts are strictly sequential.
func (p *Player) runResizePoll(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.pollRunning = false
		p.mu.Unlock()
	}()

	for attempt := 1; attempt <= p.pollMaxAttempts; attempt++ {
		if err := waitForPoll(ctx, p.pollInterval); err != nil {
			p.mu.Lock()
			p.pending = nil
			p.mu.Unlock()
			return
		}

		p.mu.Lock()
		handle := p.handle
		size := p.pending
		p.mu.Unlock()
		if handle == nil || size == nil {
			return
		}

		if _, ok := handle.Width(); ok {
			p.mu.Lock()
			p.pending = nil
			p.mu.Unlock()
			if err := handle.Resize(size.Width, size.Height); err != nil {
				p.logf("deferred widget resize failed size=%dx%d err=%v", size.Width, size.Height, err)
			}
			return
		}
		p.logf("widget not ready for resize attempt=%d/%d", attempt, p.pollMaxAttempts)
	}

	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
	p.logf("widget never became resizable, giving up after %d attempts", p.pollMaxAttempts)
}

func waitForPoll(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ContentElement returns the element the widget is mounted on. After
// the widget reports ready this is re-resolved by identifier, so it
// tracks node replacements the widget performs; it may be nil when the
// identifier no longer resolves.
func (p *Player) ContentElement() dom.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content
}

// WidgetError returns the last error the widget reported, if any.
func (p *Player) WidgetError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastWidgetErr
}

func (p *Player) widgetOptions(opts *Options) widget.Options {
	return widget.Options{
		Source:   opts.Source,
		Width:    opts.Width,
		Height:   opts.Height,
		AutoPlay: opts.AutoPlay,
		OnReady:  p.dispatchWidgetReady,
		OnError:  p.dispatchWidgetError,
	}
}

func (p *Player) dispatchWidgetReady() {
	for _, fn := range p.readySubs {
		fn()
	}
}

func (p *Player) dispatchWidgetError(err error) {
	for _, fn := range p.errorSubs {
		fn(err)
	}
}

// handleWidgetReady re-resolves the content element by the captured
// identifier. The widget is permitted to have swapped the node for a
// new one carrying the same identifier, and the identifier may
// legitimately resolve to nothing; neither case is an error here.
func (p *Player) handleWidgetReady() {
	p.mu.Lock()
	id := p.contentID
	p.mu.Unlock()
	if id == "" {
		return
	}

	resolved := p.doc.ElementByID(id)
	p.mu.Lock()
	p.content = resolved
	p.mu.Unlock()
}

// handleWidgetError records the condition. Recovery is the caller's
// responsibility.
func (p *Player) handleWidgetError(err error) {
	p.mu.Lock()
	p.lastWidgetErr = err
	p.mu.Unlock()
	p.logf("widget error: %v", err)
}

// listenCanPlay translates the element-level can-play signal into a
// single component-level event. The element listener unregisters itself
// on first fire, so repeated signals never re-dispatch.
func (p *Player) listenCanPlay(root dom.Element) {
	var once sync.Once
	remove := root.Listen(domain.EventCanPlay, func() {
		once.Do(func() {
			p.mu.Lock()
			unlisten := p.unlistenCanPlay
			p.unlistenCanPlay = nil
			p.mu.Unlock()
			if unlisten != nil {
				unlisten()
			}
			p.Dispatch(domain.EventCanPlay)
		})
	})

	p.mu.Lock()
	p.unlistenCanPlay = remove
	p.mu.Unlock()
}

// Dispose cancels any in-flight resize poll, closes the widget handle
// and releases owned references. Safe to call repeatedly.
func (p *Player) Dispose() {
	p.closeOnce.Do(func() {
		p.lifeCancel()

		p.mu.Lock()
		handle := p.handle
		unlisten := p.unlistenCanPlay
		p.handle = nil
		p.content = nil
		p.opts = nil
		p.pending = nil
		p.unlistenCanPlay = nil
		p.mu.Unlock()

		if unlisten != nil {
			unlisten()
		}
		if handle != nil {
			if err := handle.Close(); err != nil {
				p.logf("widget close: %v", err)
			}
		}
		p.Base.Dispose()
	})
}

func randomToken(bytesLen int) string {
	if bytesLen <= 0 {
		bytesLen = 8
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "fallback"
	}
	return hex.EncodeToString(buf)
}
