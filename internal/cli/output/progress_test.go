package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestProgressBar_Render(t *testing.T) {
	buf := &bytes.Buffer{}
	bar := NewProgressBar(buf, "bench", 100)

	bar.Increment(50)

	out := buf.String()
	if !strings.Contains(out, "bench") {
		t.Errorf("output %q should contain title", out)
	}
	if !strings.Contains(out, " 50%") {
		t.Errorf("output %q should contain percentage", out)
	}
	if !strings.Contains(out, "(50/100 ops)") {
		t.Errorf("output %q should contain counts", out)
	}
}

func TestProgressBar_Finish(t *testing.T) {
	buf := &bytes.Buffer{}
	bar := NewProgressBar(buf, "bench", 10)

	for i := 0; i < 10; i++ {
		bar.Increment(1)
	}
	bar.Finish()

	out := buf.String()
	if !strings.Contains(out, "100%") {
		t.Errorf("output %q should contain 100%%", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish should end the line")
	}
}

func TestProgressBar_UnknownTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	bar := NewProgressBar(buf, "bench", 0)

	bar.Increment(7)

	if !strings.Contains(buf.String(), "bench 7 ops") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestProgressBar_ClampsOverflow(t *testing.T) {
	buf := &bytes.Buffer{}
	bar := NewProgressBar(buf, "bench", 1)

	bar.Increment(5)
	bar.Finish()

	if strings.Contains(buf.String(), "500%") {
		t.Errorf("percentage should be clamped: %q", buf.String())
	}
}

func TestProgressBar_Concurrent(t *testing.T) {
	bar := NewProgressBar(&bytes.Buffer{}, "bench", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bar.Increment(1)
			}
		}()
	}
	wg.Wait()

	if got := bar.Current(); got != 1000 {
		t.Errorf("Current() = %d, want 1000", got)
	}
}
