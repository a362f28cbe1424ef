// Package go2tvcast backs the widget contract with a Chromecast
// renderer driven through go2tv. The "embedded player" is the cast
// session: setup connects and loads the source, readiness tracks the
// first status report from the device, and resize requests are recorded
// against the session (the renderer owns its physical surface).
package go2tvcast

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go2tv.app/embedplayer/internal/dom"
	"go2tv.app/embedplayer/internal/domain"
	"go2tv.app/embedplayer/internal/widget"
	"go2tv.app/go2tv/v2/castprotocol"
)

const (
	// AddrAttr is the content-element attribute naming the renderer the
	// widget is instantiated against.
	AddrAttr = "data-renderer-addr"

	defaultStatusEvery    = time.Second
	defaultConnectRetries = 3
	connectBaseBackoff    = 120 * time.Millisecond
	connectMaxBackoff     = 800 * time.Millisecond
	monitorStopWait       = 500 * time.Millisecond
	maxStatusFailures     = 3
)

// castClient mirrors the subset of the go2tv cast protocol client the
// widget drives.
type castClient interface {
	Connect() error
	Load(mediaURL, contentType string, startTime int, duration float64, subtitleURL string, live bool) error
	Stop() error
	GetStatus() (*castprotocol.CastStatus, error)
	Close(stopMedia bool) error
}

// Factory instantiates cast-backed widget handles. The zero value uses
// the real go2tv client.
type Factory struct {
	NewClient   func(addr string) (castClient, error)
	StatusEvery time.Duration
	Logf        func(format string, args ...any)
}

func (f Factory) Instantiate(content dom.Element) (widget.Handle, error) {
	if content == nil {
		return nil, errors.New("content element is nil")
	}
	addr := strings.TrimSpace(content.Attr(AddrAttr))
	if addr == "" {
		return nil, fmt.Errorf("content element %q carries no %s attribute", content.ID(), AddrAttr)
	}

	newClient := f.NewClient
	if newClient == nil {
		newClient = func(addr string) (castClient, error) {
			return castprotocol.NewCastClient(addr)
		}
	}
	client, err := newClient(addr)
	if err != nil {
		return nil, fmt.Errorf("create cast client: %w", err)
	}

	statusEvery := f.StatusEvery
	if statusEvery <= 0 {
		statusEvery = defaultStatusEvery
	}
	logf := f.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	return &Handle{
		client:      client,
		statusEvery: statusEvery,
		logf:        logf,
	}, nil
}

// Handle is a live cast session behind the widget contract.
type Handle struct {
	client      castClient
	statusEvery time.Duration
	logf        func(format string, args ...any)

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
	closeOnce     sync.Once

	mu    sync.Mutex
	ready bool
	size  domain.Size
}

// Setup connects to the renderer, loads the media source and starts the
// readiness monitor. OnReady fires on the device's first status report;
// OnError fires when the session stops responding.
func (h *Handle) Setup(opts widget.Options) error {
	source := strings.TrimSpace(opts.Source)
	if source == "" {
		return errors.New("media source is empty")
	}

	if err := connectWithRetry(h.client, defaultConnectRetries); err != nil {
		return fmt.Errorf("connect to renderer: %w", err)
	}

	mediaType, live := classifySource(source)
	if err := h.client.Load(source, mediaType, 0, 0, "", live); err != nil {
		return fmt.Errorf("load media: %w", err)
	}

	h.mu.Lock()
	h.size = domain.Size{Width: opts.Width, Height: opts.Height}
	h.mu.Unlock()

	monitorCtx, cancel := context.WithCancel(context.Background())
	h.monitorCancel = cancel
	h.monitorDone = make(chan struct{})
	go h.runStatusMonitor(monitorCtx, opts.OnReady, opts.OnError)
	return nil
}

// Width reports the session's rendered width. Undefined until the
// renderer has reported status at least once.
func (h *Handle) Width() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ready {
		return 0, false
	}
	return h.size.Width, true
}

// Resize records the requested size. While the session is still
// initializing the call is a silent no-op, matching the embed widget
// behavior the adapter is written against.
func (h *Handle) Resize(width, height int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ready {
		return nil
	}
	h.size = domain.Size{Width: width, Height: height}
	h.logf("cast session resized to %dx%d", width, height)
	return nil
}

// Close stops the monitor and tears the cast session down. Safe to call
// repeatedly.
func (h *Handle) Close() error {
	var closeErr error
	h.closeOnce.Do(func() {
		if h.monitorCancel != nil {
			h.monitorCancel()
		}
		if h.monitorDone != nil {
			select {
			case <-h.monitorDone:
			case <-time.After(monitorStopWait):
			}
		}

		var errs []string
		if err := h.client.Stop(); err != nil {
			errs = append(errs, fmt.Sprintf("stop: %v", err))
		}
		if err := h.client.Close(true); err != nil {
			errs = append(errs, fmt.Sprintf("close: %v", err))
		}
		if len(errs) > 0 {
			closeErr = errors.New(strings.Join(errs, "; "))
		}
	})
	return closeErr
}

func (h *Handle) runStatusMonitor(ctx context.Context, onReady func(), onError func(error)) {
	defer close(h.monitorDone)

	ticker := time.NewTicker(h.statusEvery)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := h.client.GetStatus()
		if err != nil {
			h.mu.Lock()
			wasReady := h.ready
			h.mu.Unlock()
			// A session that has not reported yet is still initializing,
			// not broken; only a session that stops responding is fatal.
			if !wasReady {
				continue
			}
			failures++
			if failures >= maxStatusFailures {
				h.logf("cast session unresponsive after %d status failures: %v", failures, err)
				if onError != nil {
					onError(fmt.Errorf("cast session unresponsive: %w", err))
				}
				return
			}
			continue
		}
		failures = 0

		h.mu.Lock()
		first := !h.ready
		h.ready = true
		h.mu.Unlock()

		if first {
			h.logf("cast session ready state=%s", status.PlayerState)
			if onReady != nil {
				onReady()
			}
		}
	}
}

func connectWithRetry(client castClient, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = client.Connect()
		if lastErr == nil {
			return nil
		}
		if attempt >= attempts {
			break
		}
		backoff := connectBaseBackoff << (attempt - 1)
		if backoff > connectMaxBackoff {
			backoff = connectMaxBackoff
		}
		time.Sleep(backoff)
	}
	return lastErr
}

func classifySource(source string) (mediaType string, live bool) {
	ext := ""
	if parsed, err := url.Parse(source); err == nil && parsed.Path != "" {
		ext = strings.ToLower(path.Ext(parsed.Path))
	}
	if ext == ".m3u8" {
		return "application/vnd.apple.mpegurl", true
	}
	if ext != "" {
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			return strings.TrimSpace(strings.Split(guessed, ";")[0]), false
		}
	}
	return "application/octet-stream", false
}

var _ widget.Factory = Factory{}
