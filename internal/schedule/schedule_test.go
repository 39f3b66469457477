package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNew_InvalidSpec(t *testing.T) {
	for _, spec := range []string{"", "every 5 minutes", "* * * *"} {
		if _, err := New(spec); err == nil {
			t.Errorf("%q: expected error", spec)
		}
	}
}

func TestRunOnce_Order(t *testing.T) {
	r, err := New("*/15 * * * *")
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	r.Add("refresh", func(context.Context) error { got = append(got, "refresh"); return nil })
	r.Add("capture", func(context.Context) error { got = append(got, "capture"); return errors.New("no chromium") })
	r.Add("after", func(context.Context) error { got = append(got, "after"); return nil })

	if !r.RunOnce(context.Background()) {
		t.Fatal("expected run")
	}
	if len(got) != 2 || got[0] != "refresh" || got[1] != "capture" {
		t.Errorf("got %v, want refresh then capture", got)
	}
	if r.Runs() != 1 {
		t.Errorf("got %d runs, want 1", r.Runs())
	}
}

func TestRunOnce_SkipsOverlap(t *testing.T) {
	r, err := New("@every 1h")
	if err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	started := make(chan struct{})
	r.Add("slow", func(context.Context) error {
		close(started)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.RunOnce(context.Background())
	}()

	<-started
	if r.RunOnce(context.Background()) {
		t.Error("overlapping run should be skipped")
	}
	close(release)
	wg.Wait()

	if r.Runs() != 1 {
		t.Errorf("got %d runs, want 1", r.Runs())
	}
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	r, err := New("0 0 1 1 *")
	if err != nil {
		t.Fatal(err)
	}
	ran := make(chan struct{}, 1)
	r.Add("refresh", func(context.Context) error {
		ran <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run on start")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
