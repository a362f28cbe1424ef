package go2tvcast

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go2tv.app/embedplayer/internal/dom/memdom"
	"go2tv.app/embedplayer/internal/widget"
	"go2tv.app/go2tv/v2/castprotocol"
)

type fakeCastClient struct {
	mu sync.Mutex

	connectErrs []error
	statusErrs  []error
	loadErr     error

	// statusBlocked simulates a session that has not produced a status
	// report yet; release it to let the widget become ready.
	statusBlocked bool

	connectCalls int
	loadCalls    int
	stopCalls    int
	closeCalls   int
	statusCalls  int

	loadURL  string
	loadType string
	loadLive bool
}

func (f *fakeCastClient) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	idx := f.connectCalls - 1
	if idx < len(f.connectErrs) {
		return f.connectErrs[idx]
	}
	return nil
}

func (f *fakeCastClient) Load(mediaURL, contentType string, startTime int, duration float64, subtitleURL string, live bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	f.loadURL = mediaURL
	f.loadType = contentType
	f.loadLive = live
	return f.loadErr
}

func (f *fakeCastClient) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeCastClient) GetStatus() (*castprotocol.CastStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	idx := f.statusCalls - 1
	if idx < len(f.statusErrs) && f.statusErrs[idx] != nil {
		return nil, f.statusErrs[idx]
	}
	if f.statusBlocked {
		return nil, errors.New("no status yet")
	}
	return &castprotocol.CastStatus{PlayerState: "PLAYING"}, nil
}

func (f *fakeCastClient) releaseStatus() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusBlocked = false
}

func (f *fakeCastClient) Close(stopMedia bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeCastClient) counts() (connect, load, stop, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls, f.loadCalls, f.stopCalls, f.closeCalls
}

func newTestHandle(t *testing.T, client *fakeCastClient) widget.Handle {
	t.Helper()
	doc := memdom.New()
	content := doc.CreateElement("div")
	content.SetID("player_content")
	content.SetAttr(AddrAttr, "http://192.168.1.40:8009")
	doc.Body().AppendChild(content)

	factory := Factory{
		NewClient:   func(addr string) (castClient, error) { return client, nil },
		StatusEvery: 2 * time.Millisecond,
	}
	handle, err := factory.Instantiate(content)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })
	return handle
}

func TestInstantiateRequiresRendererAddress(t *testing.T) {
	doc := memdom.New()
	content := doc.CreateElement("div")
	content.SetID("player_content")

	factory := Factory{NewClient: func(string) (castClient, error) { return &fakeCastClient{}, nil }}
	if _, err := factory.Instantiate(content); err == nil {
		t.Fatal("expected instantiation to fail without a renderer address")
	}
	if _, err := factory.Instantiate(nil); err == nil {
		t.Fatal("expected instantiation to fail for a nil content element")
	}
}

func TestSetupConnectsLoadsAndBecomesReady(t *testing.T) {
	client := &fakeCastClient{statusBlocked: true}
	handle := newTestHandle(t, client)

	ready := make(chan struct{}, 1)
	err := handle.Setup(widget.Options{
		Source:  "http://example.com/movie.mp4",
		Width:   1280,
		Height:  720,
		OnReady: func() { ready <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, ok := handle.Width(); ok {
		t.Fatal("width must be undefined before the first status report")
	}

	client.releaseStatus()
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("widget never became ready")
	}

	width, ok := handle.Width()
	if !ok || width != 1280 {
		t.Fatalf("Width() = %d,%v after readiness", width, ok)
	}

	connect, load, _, _ := client.counts()
	if connect != 1 || load != 1 {
		t.Fatalf("connect=%d load=%d, want 1/1", connect, load)
	}
	client.mu.Lock()
	loadType, loadLive := client.loadType, client.loadLive
	client.mu.Unlock()
	if loadType != "video/mp4" || loadLive {
		t.Fatalf("load classified as %s live=%v", loadType, loadLive)
	}
}

func TestSetupRetriesTransientConnectFailures(t *testing.T) {
	client := &fakeCastClient{connectErrs: []error{errors.New("connection refused"), nil}}
	handle := newTestHandle(t, client)

	if err := handle.Setup(widget.Options{Source: "http://example.com/movie.mp4"}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if connect, _, _, _ := client.counts(); connect != 2 {
		t.Fatalf("expected a second connect attempt, got %d", connect)
	}
}

func TestSetupReportsExhaustedConnectRetries(t *testing.T) {
	refused := errors.New("connection refused")
	client := &fakeCastClient{connectErrs: []error{refused, refused, refused}}
	handle := newTestHandle(t, client)

	if err := handle.Setup(widget.Options{Source: "http://example.com/movie.mp4"}); err == nil {
		t.Fatal("expected setup to fail after retry exhaustion")
	}
	if connect, load, _, _ := client.counts(); connect != 3 || load != 0 {
		t.Fatalf("connect=%d load=%d, want 3/0", connect, load)
	}
}

func TestResizeIsSilentNoOpWhileInitializing(t *testing.T) {
	client := &fakeCastClient{statusBlocked: true}
	handle := newTestHandle(t, client)

	ready := make(chan struct{}, 1)
	if err := handle.Setup(widget.Options{
		Source:  "http://example.com/movie.mp4",
		Width:   640,
		Height:  360,
		OnReady: func() { ready <- struct{}{} },
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := handle.Resize(1920, 1080); err != nil {
		t.Fatalf("initializing resize must no-op, got %v", err)
	}

	client.releaseStatus()
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("widget never became ready")
	}

	if width, ok := handle.Width(); !ok || width != 640 {
		t.Fatalf("pre-ready resize leaked through: width=%d ok=%v", width, ok)
	}

	if err := handle.Resize(1920, 1080); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if width, _ := handle.Width(); width != 1920 {
		t.Fatalf("post-ready resize not recorded, width=%d", width)
	}
}

func TestMonitorSurfacesUnresponsiveSession(t *testing.T) {
	down := errors.New("device gone")
	// First report succeeds, then the device stops answering.
	client := &fakeCastClient{statusErrs: []error{nil, down, down, down}}
	handle := newTestHandle(t, client)

	errCh := make(chan error, 1)
	if err := handle.Setup(widget.Options{
		Source:  "http://example.com/movie.mp4",
		OnError: func(err error) { errCh <- err },
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, down) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("unresponsive session never reported")
	}
}

func TestCloseStopsSessionOnce(t *testing.T) {
	client := &fakeCastClient{}
	handle := newTestHandle(t, client)
	if err := handle.Setup(widget.Options{Source: "http://example.com/movie.mp4"}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := handle.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	_, _, stop, closed := client.counts()
	if stop != 1 || closed != 1 {
		t.Fatalf("stop=%d close=%d, want 1/1", stop, closed)
	}
}

func TestClassifySource(t *testing.T) {
	cases := []struct {
		source   string
		wantType string
		wantLive bool
	}{
		{"http://example.com/a.mp4", "video/mp4", false},
		{"http://example.com/live/stream.m3u8", "application/vnd.apple.mpegurl", true},
		{"http://example.com/stream", "application/octet-stream", false},
	}
	for _, tc := range cases {
		gotType, gotLive := classifySource(tc.source)
		if gotType != tc.wantType || gotLive != tc.wantLive {
			t.Fatalf("classifySource(%q) = %s,%v want %s,%v", tc.source, gotType, gotLive, tc.wantType, tc.wantLive)
		}
	}
}
