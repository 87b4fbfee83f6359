package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestNew_FillsDefaults(t *testing.T) {
	r := New(&Config{JitterFactor: 3})

	if r.config.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want 1s", r.config.InitialInterval)
	}
	if r.config.MaxInterval != 30*time.Second {
		t.Errorf("MaxInterval = %v, want 30s", r.config.MaxInterval)
	}
	if r.config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", r.config.Multiplier)
	}
	if r.config.JitterFactor != 1 {
		t.Errorf("JitterFactor = %f, want clamped to 1", r.config.JitterFactor)
	}

	if New(nil).config.MaxRetries != 5 {
		t.Error("New(nil) should use DefaultConfig")
	}
}

func TestRetrier_Do(t *testing.T) {
	errFlaky := errors.New("gateway timeout")

	tests := []struct {
		name         string
		maxRetries   int
		failures     int
		permanent    bool
		wantErr      error
		wantAttempts int
	}{
		{name: "first try", maxRetries: 3, failures: 0, wantAttempts: 1},
		{name: "succeeds after retries", maxRetries: 3, failures: 2, wantAttempts: 3},
		{name: "exhausted", maxRetries: 2, failures: 10, wantErr: ErrMaxRetriesExceeded, wantAttempts: 3},
		{name: "permanent stops loop", maxRetries: 5, failures: 10, permanent: true, wantErr: errFlaky, wantAttempts: 1},
		{name: "no retries", maxRetries: 0, failures: 1, wantErr: ErrMaxRetriesExceeded, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			res := New(fastConfig(tt.maxRetries)).Do(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					if tt.permanent {
						return Permanent(errFlaky)
					}
					return errFlaky
				}
				return nil
			})

			if !errors.Is(res.Err, tt.wantErr) && res.Err != tt.wantErr {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
			if res.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", res.Attempts, tt.wantAttempts)
			}
			if tt.wantErr != nil && res.LastError != errFlaky {
				t.Errorf("LastError = %v, want %v", res.LastError, errFlaky)
			}
		})
	}
}

func TestRetrier_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialInterval: time.Hour, MaxInterval: time.Hour, Multiplier: 1}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := New(cfg).Do(ctx, func(ctx context.Context) error { return errors.New("down") })
	if res.Err != ErrContextCanceled {
		t.Errorf("Err = %v, want ErrContextCanceled", res.Err)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
}

func TestRetrier_DoWithCallback(t *testing.T) {
	var seen []int
	res := New(fastConfig(2)).DoWithCallback(context.Background(),
		func(ctx context.Context) error { return errors.New("down") },
		func(attempt int, err error, next time.Duration) { seen = append(seen, attempt) },
	)

	if res.Err != ErrMaxRetriesExceeded {
		t.Fatalf("Err = %v", res.Err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("callback attempts = %v, want [1 2]", seen)
	}
}

func TestRetrier_Backoff(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2})

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for i, w := range want {
		if got := r.Backoff(i); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i, got, w)
		}
	}

	jittered := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2, JitterFactor: 0.5})
	for i := 0; i < 50; i++ {
		got := jittered.Backoff(0)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("Backoff with jitter = %v, outside [50ms,150ms]", got)
		}
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}

	base := errors.New("card declined")
	err := Permanent(base)
	if !IsPermanent(err) {
		t.Error("IsPermanent() = false")
	}
	if !errors.Is(err, base) {
		t.Error("Permanent should unwrap to the original error")
	}
	if IsPermanent(base) {
		t.Error("plain error reported as permanent")
	}
}
