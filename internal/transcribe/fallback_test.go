package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type fakeProvider struct {
	result Result
	err    error
	calls  int
}

func (f *fakeProvider) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	f.calls++
	if f.err != nil {
		return Result{}, f.err
	}
	return f.result, nil
}

func TestFallbackUsesEnhancedWhenItWorks(t *testing.T) {
	enhanced := &fakeProvider{result: Result{Text: "hello", Method: MethodEnhanced}}
	baseline := &fakeProvider{result: Result{Text: "hello", Method: MethodBaseline}}

	f := NewFallback(enhanced, baseline)
	got, err := f.Transcribe(context.Background(), "a.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Method != MethodEnhanced {
		t.Errorf("Method = %q, want enhanced", got.Method)
	}
	if baseline.calls != 0 {
		t.Errorf("baseline called %d times, want 0", baseline.calls)
	}
}

func TestFallbackOnUnavailable(t *testing.T) {
	enhanced := &fakeProvider{err: fmt.Errorf("sidecar down: %w", ErrUnavailable)}
	baseline := &fakeProvider{result: Result{Text: "hello", Method: MethodBaseline}}

	f := NewFallback(enhanced, baseline)
	got, err := f.Transcribe(context.Background(), "a.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Method != MethodBaseline {
		t.Errorf("Method = %q, want baseline", got.Method)
	}
	if enhanced.calls != 1 || baseline.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", enhanced.calls, baseline.calls)
	}
}

func TestFallbackOnProcessingError(t *testing.T) {
	enhanced := &fakeProvider{err: errors.New("diarization crashed")}
	baseline := &fakeProvider{result: Result{Text: "hello", Method: MethodBaseline}}

	f := NewFallback(enhanced, baseline)
	got, err := f.Transcribe(context.Background(), "a.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Method != MethodBaseline {
		t.Errorf("Method = %q, want baseline", got.Method)
	}
}

func TestFallbackDoubleFailure(t *testing.T) {
	enhanced := &fakeProvider{err: errors.New("enhanced broke")}
	baseline := &fakeProvider{err: errors.New("baseline broke")}

	f := NewFallback(enhanced, baseline)
	_, err := f.Transcribe(context.Background(), "a.mp3")
	if err == nil {
		t.Fatal("expected error when both providers fail")
	}
	if !strings.Contains(err.Error(), "baseline broke") {
		t.Errorf("error should carry baseline cause, got: %v", err)
	}
}

func TestFallbackWithoutEnhanced(t *testing.T) {
	baseline := &fakeProvider{result: Result{Text: "hello", Method: MethodBaseline}}

	f := NewFallback(nil, baseline)
	got, err := f.Transcribe(context.Background(), "a.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Method != MethodBaseline {
		t.Errorf("Method = %q, want baseline", got.Method)
	}
}

// TestRegistryProbesOnce verifies the probe runs exactly once even under
// concurrent first access.
func TestRegistryProbesOnce(t *testing.T) {
	r := NewRegistry()

	var mu sync.Mutex
	probes := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := r.Once("backend", func() bool {
				mu.Lock()
				probes++
				mu.Unlock()
				return true
			})
			if !ok {
				t.Error("probe result should be true")
			}
		}()
	}
	wg.Wait()

	if probes != 1 {
		t.Errorf("probe ran %d times, want 1", probes)
	}
}

func TestRegistryCachesNegativeResult(t *testing.T) {
	r := NewRegistry()

	probes := 0
	for i := 0; i < 3; i++ {
		if r.Once("down", func() bool { probes++; return false }) {
			t.Error("expected false")
		}
	}
	if probes != 1 {
		t.Errorf("probe ran %d times, want 1", probes)
	}
}
