package progress

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"jpg2png/models"
)

func outcome(name string, ok bool) models.JobOutcome {
	o := models.JobOutcome{Spec: models.JobSpec{InputPath: "/photos/" + name}, Success: ok}
	if !ok {
		o.ErrorKind = models.KindNonRecoverable
	}
	return o
}

func TestInlineCounter(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriter(&buf, true, 4)

	r.Observe(outcome("a.jpg", true))
	if got := buf.String(); !strings.HasPrefix(got, "\rConverting [1/4] 25% a.jpg") {
		t.Fatalf("first line = %q", got)
	}

	buf.Reset()
	r.Observe(outcome("b.jpg", false))
	got := buf.String()
	if !strings.Contains(got, "[2/4] 50% (1 failed) b.jpg") {
		t.Errorf("second line = %q", got)
	}
	if len(got) != 1+lineWidth {
		t.Errorf("line should be padded to %d columns, got %d", lineWidth, len(got)-1)
	}

	buf.Reset()
	r.Finish()
	if got := buf.String(); got != "\r"+strings.Repeat(" ", lineWidth)+"\r" {
		t.Errorf("finish = %q", got)
	}
	if done, failed := r.Counts(); done != 2 || failed != 1 {
		t.Errorf("counts = %d/%d", done, failed)
	}
}

func TestInlineCounterTruncatesLongNames(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriter(&buf, true, 1)
	r.Observe(outcome(strings.Repeat("x", 60)+".jpg", true))
	if !strings.Contains(buf.String(), "…") {
		t.Errorf("long name not truncated: %q", buf.String())
	}
}

func TestPeriodicLogWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriter(&buf, false, 3)
	var lines []string
	r.logf = func(format string, args ...interface{}) { lines = append(lines, fmt.Sprintf(format, args...)) }
	clock := time.Unix(1000, 0)
	r.now = func() time.Time { return clock }
	r.lastLog = clock

	r.Observe(outcome("a.jpg", true))
	if len(lines) != 0 {
		t.Fatalf("logged before the interval: %v", lines)
	}

	clock = clock.Add(DefaultLogInterval)
	r.Observe(outcome("b.jpg", false))
	if len(lines) != 1 || lines[0] != "Converting: 2/3 files (66%), 1 failed" {
		t.Fatalf("lines = %v", lines)
	}

	r.Observe(outcome("c.jpg", true))
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "Converting: 3/3 files (100%)") {
		t.Errorf("last outcome should always be logged: %v", lines)
	}

	r.Finish()
	if buf.Len() != 0 {
		t.Errorf("nothing should be drawn without a terminal: %q", buf.String())
	}
}
