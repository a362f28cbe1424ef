package discovery

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go2tv.app/embedplayer/internal/domain"
	"go2tv.app/go2tv/v2/devices"
)

type fakeLoader struct {
	mu            sync.Mutex
	loopStarts    int
	loadCalls     int
	devicesByCall [][]devices.Device
	errsByCall    []error
}

func (f *fakeLoader) StartChromecastDiscoveryLoop(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loopStarts++
}

func (f *fakeLoader) LoadAllDevices(delaySeconds int) ([]devices.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.loadCalls
	f.loadCalls++

	if idx < len(f.errsByCall) && f.errsByCall[idx] != nil {
		return nil, f.errsByCall[idx]
	}
	if len(f.devicesByCall) == 0 {
		return []devices.Device{}, nil
	}
	if idx >= len(f.devicesByCall) {
		idx = len(f.devicesByCall) - 1
	}
	return append([]devices.Device{}, f.devicesByCall[idx]...), nil
}

func TestRenderersNormalizesAndSorts(t *testing.T) {
	loader := &fakeLoader{devicesByCall: [][]devices.Device{{
		{Name: "Office TV", Addr: "http://192.168.1.51:8009", Type: "Chromecast"},
		{Name: "Bedroom", Addr: "http://192.168.1.50:8009", Type: "Chromecast", IsAudioOnly: true},
	}}}
	svc := NewService(loader, context.Background())

	renderers, err := svc.Renderers(context.Background(), 1000)
	if err != nil {
		t.Fatalf("renderers: %v", err)
	}
	if len(renderers) != 2 {
		t.Fatalf("expected 2 renderers, got %d", len(renderers))
	}
	if renderers[0].Name != "Bedroom" || renderers[1].Name != "Office TV" {
		t.Fatalf("renderers not sorted by name: %+v", renderers)
	}
	for _, dev := range renderers {
		if !strings.HasPrefix(dev.ID, "dev_") {
			t.Fatalf("unexpected id %q", dev.ID)
		}
		if dev.Protocol != "chromecast" {
			t.Fatalf("unexpected protocol %q", dev.Protocol)
		}
	}
	if !renderers[0].IsAudioOnly {
		t.Fatal("audio-only flag lost in normalization")
	}
}

func TestRenderersStableIDsAcrossCalls(t *testing.T) {
	loader := &fakeLoader{devicesByCall: [][]devices.Device{{
		{Name: "Office TV", Addr: "http://192.168.1.51:8009/", Type: "Chromecast"},
	}}}
	svc := NewService(loader, context.Background())

	first, err := svc.Renderers(context.Background(), 1000)
	if err != nil {
		t.Fatalf("renderers: %v", err)
	}
	second, err := svc.Renderers(context.Background(), 1000)
	if err != nil {
		t.Fatalf("renderers: %v", err)
	}
	if first[0].ID != second[0].ID {
		t.Fatalf("ids differ across discoveries: %s vs %s", first[0].ID, second[0].ID)
	}
	loader.mu.Lock()
	starts := loader.loopStarts
	loader.mu.Unlock()
	if starts != 1 {
		t.Fatalf("discovery loop started %d times, want once", starts)
	}
}

func TestRenderersEmptyWhenNothingDiscovered(t *testing.T) {
	loader := &fakeLoader{errsByCall: []error{
		devices.ErrNoDeviceAvailable,
		devices.ErrNoDeviceAvailable,
		devices.ErrNoDeviceAvailable,
	}}
	svc := NewService(loader, context.Background())

	renderers, err := svc.Renderers(context.Background(), 10)
	if err != nil {
		t.Fatalf("expected empty result, got error %v", err)
	}
	if len(renderers) != 0 {
		t.Fatalf("expected no renderers, got %d", len(renderers))
	}
}

func TestRenderersRecoversAfterInitialMiss(t *testing.T) {
	loader := &fakeLoader{
		errsByCall: []error{devices.ErrNoDeviceAvailable},
		devicesByCall: [][]devices.Device{
			{},
			{{Name: "Late TV", Addr: "http://192.168.1.60:8009", Type: "Chromecast"}},
		},
	}
	svc := NewService(loader, context.Background())

	renderers, err := svc.Renderers(context.Background(), 2000)
	if err != nil {
		t.Fatalf("renderers: %v", err)
	}
	if len(renderers) != 1 || renderers[0].Name != "Late TV" {
		t.Fatalf("late device not picked up: %+v", renderers)
	}
}

func TestRenderersHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(&fakeLoader{}, context.Background())
	if _, err := svc.Renderers(ctx, 1000); err == nil {
		t.Fatal("expected context error")
	}
}

func TestResolve(t *testing.T) {
	all := []domain.Device{
		{ID: "dev_1", Name: "Office TV"},
		{ID: "dev_2", Name: "Bedroom"},
	}

	if got := Resolve(all, "dev_2"); got == nil || got.Name != "Bedroom" {
		t.Fatalf("id match failed: %+v", got)
	}
	if got := Resolve(all, "Office TV"); got == nil || got.ID != "dev_1" {
		t.Fatalf("name match failed: %+v", got)
	}
	if got := Resolve(all, "office tv"); got == nil || got.ID != "dev_1" {
		t.Fatalf("case-insensitive name match failed: %+v", got)
	}
	if got := Resolve(all, "Kitchen"); got != nil {
		t.Fatalf("unexpected match %+v", got)
	}
	if got := Resolve(all, ""); got != nil {
		t.Fatalf("empty target must not match, got %+v", got)
	}
}
