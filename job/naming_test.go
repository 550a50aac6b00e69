package job

import (
	"errors"
	"path/filepath"
	"testing"

	"jpg2png/models"
)

func TestOutputPath(t *testing.T) {
	root := filepath.FromSlash("/photos")
	cases := []struct {
		in, out, want string
	}{
		{"/photos/a.jpg", "", "/photos/a.png"},
		{"/photos/trip/b.JPG", "", "/photos/trip/b.png"},
		{"/photos/trip/b.jpg", "/converted", "/converted/trip/b.png"},
		{"/elsewhere/c.jpg", "/converted", "/converted/c.png"},
	}
	for _, tc := range cases {
		got := OutputPath(filepath.FromSlash(tc.in), root, filepath.FromSlash(tc.out), "png")
		if got != filepath.FromSlash(tc.want) {
			t.Errorf("OutputPath(%s, %s) = %s, want %s", tc.in, tc.out, got, tc.want)
		}
	}
}

func TestBuildSpecs(t *testing.T) {
	opts := models.ConversionOptions{Retries: 3, Format: "png"}
	inputs := []string{"/p/a.jpg", "/p/sub/a.jpg"}
	specs, err := BuildSpecs(inputs, "/p", "", opts)
	if err != nil {
		t.Fatalf("BuildSpecs: %v", err)
	}
	if len(specs) != 2 || specs[1].OutputPath != filepath.Join("/p", "sub", "a.png") {
		t.Fatalf("specs = %+v", specs)
	}
	if specs[0].Options.Retries != 3 {
		t.Error("options must be shared")
	}
}

func TestPublishKey(t *testing.T) {
	specs, err := BuildSpecs([]string{"/p/a/x.jpg", "/p/b/x.jpg"}, "/p", "/out", models.ConversionOptions{Format: "png"})
	if err != nil {
		t.Fatalf("BuildSpecs: %v", err)
	}
	if specs[0].PublishKey != "a/x.png" || specs[1].PublishKey != "b/x.png" {
		t.Fatalf("keys = %q, %q", specs[0].PublishKey, specs[1].PublishKey)
	}

	next, err := BuildSpecs([]string{"/p/c.jpg"}, "/p", "", models.ConversionOptions{Format: "png"})
	if err != nil {
		t.Fatalf("BuildSpecs: %v", err)
	}
	if next[0].PublishKey != "c.png" {
		t.Errorf("key next to input = %q, want c.png", next[0].PublishKey)
	}
	if got := PublishKey("/elsewhere/d.png", "/out"); got != "d.png" {
		t.Errorf("PublishKey outside root = %q, want d.png", got)
	}
}

func TestBuildSpecsRejectsCollisions(t *testing.T) {
	opts := models.ConversionOptions{Format: "png"}
	if _, err := BuildSpecs([]string{"/p/a.jpg", "/p/a.JPG"}, "/p", "", opts); !errors.Is(err, ErrOutputCollision) {
		t.Fatalf("err = %v, want collision", err)
	}
	opts.Format = "jpg"
	if _, err := BuildSpecs([]string{"/p/a.jpg"}, "/p", "", opts); !errors.Is(err, ErrOutputCollision) {
		t.Fatalf("err = %v, want self-overwrite collision", err)
	}
}

func TestTrackerCounts(t *testing.T) {
	tr := NewTracker()
	tr.Add("a")
	tr.Add("b")
	tr.Add("c")
	tr.Start("b")
	tr.Finish(models.JobOutcome{Spec: models.JobSpec{InputPath: "c"}, ErrorKind: models.KindCancelled})

	got := tr.Counts()
	if got["pending"] != 1 || got["processing"] != 1 || got["cancelled"] != 1 {
		t.Fatalf("counts = %v", got)
	}
	if in := tr.InState(JobStateCancelled); len(in) != 1 || in[0] != "c" {
		t.Errorf("InState = %v", in)
	}
	if s, err := ParseState("failed"); err != nil || s != JobStateFailed {
		t.Errorf("ParseState = %v, %v", s, err)
	}
}
