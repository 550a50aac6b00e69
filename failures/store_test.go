package failures

import (
	"path/filepath"
	"testing"
	"time"

	"jpg2png/models"
)

func openTemp(t *testing.T) {
	t.Helper()
	if err := Init(filepath.Join(t.TempDir(), "failures.db")); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { Close() })
}

func failed(in string, kind models.ErrorKind) models.JobOutcome {
	return models.JobOutcome{
		Spec:      models.JobSpec{InputPath: in},
		Attempts:  3,
		ErrorKind: kind,
		Detail:    "open " + in + ": device busy",
	}
}

func TestStoreGetDelete(t *testing.T) {
	openTemp(t)
	if err := StoreFailure("run-1", failed("/p/a.jpg", models.KindRetriesExhausted)); err != nil {
		t.Fatalf("StoreFailure: %v", err)
	}
	rec, err := GetFailure("/p/a.jpg")
	if err != nil || rec == nil {
		t.Fatalf("GetFailure = %v, %v", rec, err)
	}
	if rec.Kind != "retries_exhausted" || rec.Attempts != 3 || rec.Error == "" {
		t.Errorf("record = %+v", rec)
	}

	if err := DeleteFailure("/p/a.jpg"); err != nil {
		t.Fatalf("DeleteFailure: %v", err)
	}
	if rec, _ := GetFailure("/p/a.jpg"); rec != nil {
		t.Error("record should be gone")
	}
	if err := CheckHealth(); err != nil {
		t.Errorf("CheckHealth: %v", err)
	}
}

func TestListFilters(t *testing.T) {
	openTemp(t)
	StoreFailure("run-1", failed("/p/a.jpg", models.KindNonRecoverable))
	StoreFailure("run-1", failed("/p/b.jpg", models.KindCancelled))
	StoreFailure("run-2", failed("/p/c.jpg", models.KindCancelled))

	all, err := ListFailures("", "")
	if err != nil || len(all) != 3 {
		t.Fatalf("all = %d, %v", len(all), err)
	}
	cancelled, _ := ListFailures("run-1", "cancelled")
	if len(cancelled) != 1 || cancelled[0].Input != "/p/b.jpg" {
		t.Errorf("filtered = %+v", cancelled)
	}
}

func TestCleanupOldRecords(t *testing.T) {
	openTemp(t)
	StoreFailure("run-1", failed("/p/a.jpg", models.KindTransient))
	StoreFailure("run-1", failed("/p/b.jpg", models.KindTransient))

	if n, err := CleanupOldRecords(-time.Minute); err != nil || n != 2 {
		t.Fatalf("cleanup = %d, %v", n, err)
	}
	if all, _ := ListFailures("", ""); len(all) != 0 {
		t.Errorf("left = %d", len(all))
	}
}
