// Package discovery lists LAN media renderers the embed host can point
// the cast widget at.
package discovery

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go2tv.app/embedplayer/internal/domain"
	"go2tv.app/go2tv/v2/devices"
)

const (
	defaultTimeoutMS       = 2500
	maxPerAttemptTimeoutMS = 3000
)

// Loader provides the raw device discovery primitives.
type Loader interface {
	StartChromecastDiscoveryLoop(ctx context.Context)
	LoadAllDevices(delaySeconds int) ([]devices.Device, error)
}

// Go2TVLoader wires Loader to the go2tv devices package.
type Go2TVLoader struct{}

func (Go2TVLoader) StartChromecastDiscoveryLoop(ctx context.Context) {
	devices.StartChromecastDiscoveryLoop(ctx)
}

func (Go2TVLoader) LoadAllDevices(delaySeconds int) ([]devices.Device, error) {
	return devices.LoadAllDevices(delaySeconds)
}

type Service struct {
	loader  Loader
	loopCtx context.Context
	once    sync.Once
}

func NewService(loader Loader, loopCtx context.Context) *Service {
	if loopCtx == nil {
		loopCtx = context.Background()
	}
	return &Service{loader: loader, loopCtx: loopCtx}
}

// Renderers discovers devices for up to timeoutMS, normalizes them and
// returns them sorted by name. An empty result is not an error.
func (s *Service) Renderers(ctx context.Context, timeoutMS int) ([]domain.Device, error) {
	if s.loader == nil {
		return nil, errors.New("discovery loader is not configured")
	}
	if timeoutMS <= 0 {
		timeoutMS = defaultTimeoutMS
	}

	s.once.Do(func() {
		s.loader.StartChromecastDiscoveryLoop(s.loopCtx)
	})

	loaded, err := s.loadUntilTimeout(ctx, timeoutMS)
	if err != nil {
		return nil, err
	}

	normalized := normalizeDevices(loaded)
	sortDevices(normalized)
	return normalized, nil
}

// Resolve matches a target against renderer ids and names, exact id
// first, then exact name, then case-insensitive name.
func Resolve(all []domain.Device, target string) *domain.Device {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}
	for i := range all {
		if all[i].ID == target {
			return &all[i]
		}
	}
	for i := range all {
		if strings.TrimSpace(all[i].Name) == target {
			return &all[i]
		}
	}
	for i := range all {
		if strings.EqualFold(strings.TrimSpace(all[i].Name), target) {
			return &all[i]
		}
	}
	return nil
}

func (s *Service) loadUntilTimeout(ctx context.Context, timeoutMS int) ([]devices.Device, error) {
	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		remainingMS := int(time.Until(deadline).Milliseconds())
		if remainingMS <= 0 {
			if lastErr == nil || errors.Is(lastErr, devices.ErrNoDeviceAvailable) {
				return []devices.Device{}, nil
			}
			return nil, lastErr
		}

		attemptTimeoutMS := remainingMS
		if attemptTimeoutMS > maxPerAttemptTimeoutMS {
			attemptTimeoutMS = maxPerAttemptTimeoutMS
		}

		loaded, err := s.loader.LoadAllDevices(timeoutToDelaySeconds(attemptTimeoutMS))
		if err == nil {
			if len(loaded) > 0 {
				return loaded, nil
			}
			return []devices.Device{}, nil
		}
		if !errors.Is(err, devices.ErrNoDeviceAvailable) {
			return nil, err
		}
		lastErr = err
	}
}

func timeoutToDelaySeconds(timeoutMS int) int {
	seconds := timeoutMS / 1000
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func normalizeDevices(discovered []devices.Device) []domain.Device {
	result := make([]domain.Device, 0, len(discovered))
	for _, raw := range discovered {
		protocol := normalizeProtocol(raw.Type)
		address := strings.TrimSpace(raw.Addr)
		result = append(result, domain.Device{
			ID:          stableID(protocol, address),
			Name:        strings.TrimSpace(raw.Name),
			Type:        strings.TrimSpace(raw.Type),
			Address:     address,
			IsAudioOnly: raw.IsAudioOnly,
			Protocol:    protocol,
		})
	}
	return result
}

func sortDevices(all []domain.Device) {
	sort.Slice(all, func(i, j int) bool {
		nameI := strings.ToLower(all[i].Name)
		nameJ := strings.ToLower(all[j].Name)
		if nameI != nameJ {
			return nameI < nameJ
		}
		return all[i].ID < all[j].ID
	})
}

func stableID(protocol, address string) string {
	canonical := fmt.Sprintf("%s|%s", protocol, canonicalAddress(address))
	sum := sha1.Sum([]byte(canonical))
	return "dev_" + hex.EncodeToString(sum[:8])
}

func canonicalAddress(address string) string {
	parsed, err := url.Parse(address)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(address))
	}

	host := strings.ToLower(parsed.Hostname())
	port := parsed.Port()
	if port == "" {
		if strings.EqualFold(parsed.Scheme, "https") {
			port = "443"
		} else {
			port = "80"
		}
	}

	pathPart := strings.TrimSpace(strings.ToLower(parsed.EscapedPath()))
	if pathPart == "" {
		pathPart = "/"
	}

	return fmt.Sprintf("%s://%s:%s%s", strings.ToLower(parsed.Scheme), host, port, pathPart)
}

func normalizeProtocol(kind string) string {
	lower := strings.ToLower(strings.TrimSpace(kind))
	if strings.Contains(lower, "chrome") {
		return "chromecast"
	}
	if strings.Contains(lower, "dlna") {
		return "dlna"
	}
	return lower
}
