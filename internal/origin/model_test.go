package origin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRequest_ServesUnderCapacity(t *testing.T) {
	m := New(4, []byte("data"), "text/plain")
	res, err := m.Request(context.Background())
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if !res.Success {
		t.Fatal("want Success=true")
	}
	if res.LatencyMs != DefaultBaseLatencyMs {
		t.Fatalf("LatencyMs = %v, want base %v (no degradation under light load)", res.LatencyMs, DefaultBaseLatencyMs)
	}
}

func TestFetch_ReturnsConfiguredContent(t *testing.T) {
	m := New(4, []byte("origin-bytes"), "application/octet-stream")
	content, mimeType, err := m.Fetch(context.Background(), "anyhash", "/path")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if string(content) != "origin-bytes" || mimeType != "application/octet-stream" {
		t.Fatalf("got (%q, %q)", content, mimeType)
	}
}

func TestRequest_QueueFullRejectsImmediately(t *testing.T) {
	m := New(1, []byte("x"), "text/plain").WithMaxQueueSize(0)

	var wg sync.WaitGroup
	wg.Add(1)
	blocking := make(chan struct{})
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-blocking
			cancel()
		}()
		m.Request(ctx)
	}()

	// Give the blocking request time to occupy the only slot.
	time.Sleep(5 * time.Millisecond)

	res, err := m.Request(context.Background())
	close(blocking)
	wg.Wait()

	if !errors.Is(err, ErrOriginRejected) {
		t.Fatalf("got err=%v, want ErrOriginRejected", err)
	}
	if res.Success {
		t.Fatal("want Success=false on immediate rejection")
	}
	if res.LatencyMs != immediateRejectionLatencyMs {
		t.Fatalf("LatencyMs = %v, want %v", res.LatencyMs, immediateRejectionLatencyMs)
	}
}

func TestRequest_WaitTimeoutInQueue(t *testing.T) {
	m := New(1, []byte("x"), "text/plain").WithRequestTimeout(20 * time.Millisecond)

	holdCtx, holdCancel := context.WithCancel(context.Background())
	defer holdCancel()
	go m.Request(holdCtx)
	time.Sleep(5 * time.Millisecond) // let the holder acquire the only slot

	res, err := m.Request(context.Background())
	if !errors.Is(err, ErrOriginTimeout) {
		t.Fatalf("got err=%v, want ErrOriginTimeout", err)
	}
	if res.Success {
		t.Fatal("want Success=false on queue timeout")
	}
}

func TestRequest_ConcurrencyNeverExceedsMax(t *testing.T) {
	const maxConcurrent = 3
	m := New(maxConcurrent, []byte("x"), "text/plain").WithMaxQueueSize(50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	peak := int64(0)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Request(context.Background())
			mu.Lock()
			if a := m.ActiveCount(); a > peak {
				peak = a
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if peak > maxConcurrent {
		t.Fatalf("observed active=%d, want <= %d", peak, maxConcurrent)
	}
}
