package batch

import (
	"errors"

	"jpg2png/failures"
	"jpg2png/models"
	"jpg2png/success"
)

// Ledger records outcomes in the success and failure stores. A success
// clears any failure left by an earlier run for the same input. Dry-run
// outcomes converted nothing and are not recorded.
type Ledger struct{}

func (Ledger) Record(runID string, o models.JobOutcome) error {
	if o.Spec.Options.DryRun {
		return nil
	}
	if o.Success {
		return errors.Join(
			success.StoreSuccess(runID, o),
			failures.DeleteFailure(o.Spec.InputPath),
		)
	}
	return failures.StoreFailure(runID, o)
}
