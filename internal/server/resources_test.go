package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"settleflow/config"
	"settleflow/logger"
)

func stubCollectors(t *testing.T, cpuErr error) *atomic.Int32 {
	t.Helper()
	originalCPU, originalMem, originalDisk := cpuPercentFn, memoryStatsFn, diskUsageFn
	t.Cleanup(func() {
		cpuPercentFn, memoryStatsFn, diskUsageFn = originalCPU, originalMem, originalDisk
	})

	calls := &atomic.Int32{}
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		calls.Add(1)
		if cpuErr != nil {
			return nil, cpuErr
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		return []float64{42.5}, nil
	}
	memoryStatsFn = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Used: 1024, Total: 2048, UsedPercent: 50}, nil
	}
	diskUsageFn = func(_ context.Context, path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Path: path, Free: 4096, Total: 8192, UsedPercent: 50}, nil
	}
	return calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestResourceSamplerCollectsSamples(t *testing.T) {
	stubCollectors(t, nil)
	sampler := newResourceSampler(2, 5*time.Millisecond, "data", logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sampler.start(ctx)
	waitFor(t, func() bool { return len(sampler.snapshot()) == 2 })
	cancel()
	sampler.stop()

	snaps := sampler.snapshot()
	if len(snaps) == 0 || len(snaps) > 2 {
		t.Fatalf("expected 1..2 retained samples, got %d", len(snaps))
	}
	latest := snaps[len(snaps)-1]
	if latest.CPUPercent != 42.5 || latest.MemoryPct != 50 || latest.DiskFree != 4096 || latest.DiskPath != "data" {
		t.Fatalf("unexpected snapshot: %#v", latest)
	}
}

func TestResourceSamplerKeepsRunningOnErrors(t *testing.T) {
	calls := stubCollectors(t, errors.New("no cpu stats"))
	sampler := newResourceSampler(5, 2*time.Millisecond, "", logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	sampler.start(ctx)
	waitFor(t, func() bool { return calls.Load() >= 2 })
	cancel()
	sampler.stop()

	if got := len(sampler.snapshot()); got != 0 {
		t.Fatalf("expected no samples, got %d", got)
	}
}

func TestSystemEndpoint(t *testing.T) {
	stubCollectors(t, nil)

	cfg := config.ServerConfig{Resources: config.ResourcesConfig{Enabled: true, Interval: 2 * time.Millisecond, DiskPath: "data"}}
	s := NewServer(cfg, &fakeRunner{}, nil, logger.Logger())
	t.Cleanup(s.Close)

	if rec := do(t, s, http.MethodGet, "/api/v1/system", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.resources.start(ctx)
	waitFor(t, func() bool { return len(s.resources.snapshot()) > 0 })
	cancel()
	s.resources.stop()

	rec := do(t, s, http.MethodGet, "/api/v1/system", "")
	var body struct {
		Resources []resourceSnapshot `json:"resources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Resources) == 0 || body.Resources[0].DiskTotal != 8192 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestSystemEndpointDisabled(t *testing.T) {
	s := NewServer(config.ServerConfig{}, &fakeRunner{}, nil, logger.Logger())
	t.Cleanup(s.Close)
	rec := do(t, s, http.MethodGet, "/api/v1/system", "")
	if rec.Code != http.StatusOK || rec.Body.String() != `{"resources":[]}` {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
