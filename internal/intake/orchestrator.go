// Package intake sequences the material-intake flow for one delivery:
// upload photos, extract invoice line items, review and edit the records,
// then confirm, which marks the delivery received and persists the
// confirmed materials.
package intake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/buildlens/delivery-intake/internal/delivery"
	"github.com/buildlens/delivery-intake/internal/extract"
	"github.com/buildlens/delivery-intake/internal/photo"
	"github.com/buildlens/delivery-intake/internal/staging"
)

// State is the intake sub-flow position. Failures during extraction or
// submission return the flow to the prior state with the user's input intact.
type State string

const (
	StateUpload     State = "upload"
	StateExtracting State = "extracting"
	StateReview     State = "review"
	StateSubmitting State = "submitting"
	StateDone       State = "done"
)

// Backend is the subset of the delivery backend the flow commits through.
type Backend interface {
	Receive(ctx context.Context, deliveryID, objectID string) error
	ConfirmMaterials(ctx context.Context, deliveryID string, materials []delivery.MaterialRecord) error
}

// PartialConfirmError reports the accepted inconsistency window: the delivery
// was marked received but persisting the material list failed. The status is
// not rolled back; re-running the confirm step completes the intake.
type PartialConfirmError struct {
	Err error
}

func (e *PartialConfirmError) Error() string {
	return fmt.Sprintf("delivery marked received but materials not confirmed: %v", e.Err)
}

func (e *PartialConfirmError) Unwrap() error { return e.Err }

// Flow drives one delivery's intake. Each delivery has at most one flow per
// session; the flow is a session-scoped singleton for its delivery.
type Flow struct {
	// ID correlates log lines across the flow's steps.
	ID string

	deliveryID string
	objectID   string
	kind       delivery.FlowKind

	backend   Backend
	extractor extract.Extractor
	store     staging.Store

	mu       sync.Mutex
	state    State
	received bool // step 1 of confirm already succeeded
	photos   []*photo.Captured
	records  []delivery.MaterialRecord
}

// NewFlow creates an intake flow in the upload state.
func NewFlow(deliveryID, objectID string, kind delivery.FlowKind, backend Backend, extractor extract.Extractor, store staging.Store) *Flow {
	return &Flow{
		ID:         uuid.NewString(),
		deliveryID: deliveryID,
		objectID:   objectID,
		kind:       kind,
		backend:    backend,
		extractor:  extractor,
		store:      store,
		state:      StateUpload,
	}
}

// State returns the flow's current position.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// AttachPhotos adds captured photos. Only allowed while uploading;
// back-navigation re-enters upload before more photos are attached.
func (f *Flow) AttachPhotos(photos ...*photo.Captured) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateUpload {
		return fmt.Errorf("cannot attach photos in state %s", f.state)
	}
	f.photos = append(f.photos, photos...)
	return nil
}

// RemovePhoto drops the photo at index i.
func (f *Flow) RemovePhoto(i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateUpload {
		return fmt.Errorf("cannot remove photos in state %s", f.state)
	}
	if i < 0 || i >= len(f.photos) {
		return fmt.Errorf("photo index %d out of range", i)
	}
	f.photos = append(f.photos[:i], f.photos[i+1:]...)
	return nil
}

// Photos returns the attached photos.
func (f *Flow) Photos() []*photo.Captured {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*photo.Captured(nil), f.photos...)
}

// Process sends the attached photos for extraction, stages the normalized
// records and moves to review. Zero attached photos fail validation with no
// state change. On gateway failure the photos stay attached, nothing is
// staged and the flow returns to upload.
func (f *Flow) Process(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateUpload {
		f.mu.Unlock()
		return fmt.Errorf("cannot process in state %s", f.state)
	}
	if len(f.photos) == 0 {
		f.mu.Unlock()
		return &delivery.ValidationError{Reason: "no photos attached"}
	}
	f.state = StateExtracting
	images := make([][]byte, len(f.photos))
	for i, p := range f.photos {
		images[i] = p.Data
	}
	date := photo.EarliestCapture(f.photos, time.Now())
	f.mu.Unlock()

	log.Info().
		Str("flowId", f.ID).
		Str("deliveryId", f.deliveryID).
		Int("photos", len(images)).
		Msg("Extracting invoice photos")

	results, err := f.extractor.Extract(ctx, images, f.objectID, f.deliveryID, date)
	if err != nil {
		f.mu.Lock()
		f.state = StateUpload
		f.mu.Unlock()
		log.Warn().Err(err).Str("flowId", f.ID).Msg("Extraction failed, photos kept")
		return fmt.Errorf("extract invoices: %w", err)
	}

	records := extract.Normalize(results, f.kind)
	if err := f.store.Put(ctx, staging.DeliveryID(f.deliveryID), records); err != nil {
		f.mu.Lock()
		f.state = StateUpload
		f.mu.Unlock()
		return fmt.Errorf("stage records: %w", err)
	}

	f.mu.Lock()
	f.records = records
	f.state = StateReview
	f.mu.Unlock()

	log.Info().
		Str("flowId", f.ID).
		Int("records", len(records)).
		Msg("Extraction staged for review")
	return nil
}

// ResumeReview re-enters review from staged records after navigation away.
// An absent staged set degrades to an empty record list, never an error.
func (f *Flow) ResumeReview(ctx context.Context) error {
	records, ok, err := f.store.Get(ctx, staging.DeliveryID(f.deliveryID))
	if err != nil {
		return fmt.Errorf("read staged records: %w", err)
	}
	if !ok {
		records = nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateUpload && f.state != StateReview {
		return fmt.Errorf("cannot resume review in state %s", f.state)
	}
	f.records = records
	f.state = StateReview
	return nil
}

// Records returns the editable material rows.
func (f *Flow) Records() []delivery.MaterialRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery.MaterialRecord(nil), f.records...)
}

// SetRecords replaces all rows. Rows need not trace back to an extraction
// result; fully manual rows are fine.
func (f *Flow) SetRecords(ctx context.Context, records []delivery.MaterialRecord) error {
	return f.editRecords(ctx, func() error {
		f.records = append([]delivery.MaterialRecord(nil), records...)
		return nil
	})
}

// AddRecord appends a manual row.
func (f *Flow) AddRecord(ctx context.Context, rec delivery.MaterialRecord) error {
	return f.editRecords(ctx, func() error {
		f.records = append(f.records, rec)
		return nil
	})
}

// RemoveRecord deletes the row at index i.
func (f *Flow) RemoveRecord(ctx context.Context, i int) error {
	return f.editRecords(ctx, func() error {
		if i < 0 || i >= len(f.records) {
			return fmt.Errorf("record index %d out of range", i)
		}
		f.records = append(f.records[:i], f.records[i+1:]...)
		return nil
	})
}

// editRecords applies an edit under the lock and mirrors the result to the
// staging store so a re-entered review sees current rows.
func (f *Flow) editRecords(ctx context.Context, edit func() error) error {
	f.mu.Lock()
	if f.state != StateReview {
		f.mu.Unlock()
		return fmt.Errorf("cannot edit records in state %s", f.state)
	}
	if err := edit(); err != nil {
		f.mu.Unlock()
		return err
	}
	records := append([]delivery.MaterialRecord(nil), f.records...)
	f.mu.Unlock()

	if err := f.store.Put(ctx, staging.DeliveryID(f.deliveryID), records); err != nil {
		log.Warn().Err(err).Str("flowId", f.ID).Msg("Failed to mirror edit to staging store")
	}
	return nil
}

// Back returns from review to upload, keeping photos and staged records.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateReview {
		return fmt.Errorf("cannot go back in state %s", f.state)
	}
	f.state = StateUpload
	return nil
}

// Confirm commits the intake: (1) mark the delivery received, (2) persist the
// reviewed materials, (3) clear staging. Step 1 is not rolled back when step 2
// fails; the flow returns to review with a PartialConfirmError and a repeated
// Confirm skips straight to step 2.
func (f *Flow) Confirm(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateReview {
		f.mu.Unlock()
		return fmt.Errorf("cannot confirm in state %s", f.state)
	}
	if len(f.records) == 0 {
		f.mu.Unlock()
		return &delivery.ValidationError{Reason: "no material records to confirm"}
	}
	f.state = StateSubmitting
	records := append([]delivery.MaterialRecord(nil), f.records...)
	alreadyReceived := f.received
	f.mu.Unlock()

	if !alreadyReceived {
		if err := f.backend.Receive(ctx, f.deliveryID, f.objectID); err != nil {
			f.mu.Lock()
			f.state = StateReview
			f.mu.Unlock()
			return fmt.Errorf("mark delivery received: %w", err)
		}
		f.mu.Lock()
		f.received = true
		f.mu.Unlock()
	}

	if err := f.backend.ConfirmMaterials(ctx, f.deliveryID, records); err != nil {
		f.mu.Lock()
		f.state = StateReview
		f.mu.Unlock()
		log.Error().Err(err).
			Str("flowId", f.ID).
			Str("deliveryId", f.deliveryID).
			Msg("Delivery received but materials not confirmed, re-run confirm")
		return &PartialConfirmError{Err: err}
	}

	if err := f.store.Clear(ctx, staging.DeliveryID(f.deliveryID)); err != nil {
		// Stale staging is harmless; the flow still completed.
		log.Warn().Err(err).Str("flowId", f.ID).Msg("Failed to clear staging store")
	}

	f.mu.Lock()
	f.photos = nil
	f.state = StateDone
	f.mu.Unlock()

	log.Info().
		Str("flowId", f.ID).
		Str("deliveryId", f.deliveryID).
		Int("records", len(records)).
		Msg("Intake confirmed")
	return nil
}

// Cancel discards attached photos and staged records. Permitted from upload
// or review; it has no effect once submitting has begun. Returns whether the
// flow was cancelled.
func (f *Flow) Cancel(ctx context.Context) bool {
	f.mu.Lock()
	if f.state != StateUpload && f.state != StateReview {
		f.mu.Unlock()
		return false
	}
	f.photos = nil
	f.records = nil
	f.state = StateUpload
	f.mu.Unlock()

	if err := f.store.Clear(ctx, staging.DeliveryID(f.deliveryID)); err != nil {
		log.Warn().Err(err).Str("flowId", f.ID).Msg("Failed to clear staging store on cancel")
	}
	log.Info().Str("flowId", f.ID).Str("deliveryId", f.deliveryID).Msg("Intake cancelled")
	return true
}
