/*
	Vestry
	Copyright (c) 2025 The Vestry Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package upload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vestryhq/vestry/cms"
	"github.com/vestryhq/vestry/media"
)

// fakeAPI scripts both phases of the submission.
type fakeAPI struct {
	uploadIDs []int64
	uploadErr error
	createErr error

	uploadedFiles []cms.File
	createdBatch  *cms.PhotoBatch
}

func (f *fakeAPI) UploadPhotoFiles(_ context.Context, files []cms.File) ([]int64, error) {
	f.uploadedFiles = files
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if f.uploadIDs != nil {
		return f.uploadIDs, nil
	}
	ids := make([]int64, len(files))
	for i := range ids {
		ids[i] = int64(100 + i)
	}
	return ids, nil
}

func (f *fakeAPI) CreatePhotos(_ context.Context, batch cms.PhotoBatch) error {
	f.createdBatch = &batch
	return f.createErr
}

func readySession(t *testing.T, n int) *Session {
	t.Helper()
	s := NewSession(media.Passthrough{}, nil)
	if _, err := s.AddFiles(testFiles(n)); err != nil {
		t.Fatalf("AddFiles: %v", err)
	}
	s.AddTag("choir")
	return s
}

// blockingAPI parks the upload phase until released, so a test can
// observe the session while a submission is in flight.
type blockingAPI struct {
	fakeAPI
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAPI) UploadPhotoFiles(ctx context.Context, files []cms.File) ([]int64, error) {
	close(b.entered)
	<-b.release
	return b.fakeAPI.UploadPhotoFiles(ctx, files)
}

func TestSubmitSingleFlight(t *testing.T) {
	s := readySession(t, 2)
	api := &blockingAPI{entered: make(chan struct{}), release: make(chan struct{})}

	firstErr := make(chan error, 1)
	go func() { firstErr <- Submit(context.Background(), s, api, 1) }()

	<-api.entered // the first submission is now inside its upload phase

	if err := Submit(context.Background(), s, api, 1); !errors.Is(err, ErrSubmitInFlight) {
		t.Errorf("expected ErrSubmitInFlight from a concurrent submit, got %v", err)
	}
	draftID := s.State().Drafts[0].ID
	if err := s.UpdateDraft(draftID, FieldTitle, "changed"); !errors.Is(err, ErrSubmitInFlight) {
		t.Errorf("expected ErrSubmitInFlight from an edit mid-submit, got %v", err)
	}

	close(api.release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if got := s.State().Phase; got != Done {
		t.Errorf("expected phase %s, got %s", Done, got)
	}
}

func TestSubmitSuccessPairsIDsByPosition(t *testing.T) {
	s := readySession(t, 3)
	api := &fakeAPI{uploadIDs: []int64{7, 8, 9}}

	if err := Submit(context.Background(), s, api, 42); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if api.createdBatch == nil {
		t.Fatal("create phase never ran")
	}
	batch := *api.createdBatch
	if batch.CreatorMemberID != 42 {
		t.Errorf("creator member ID: got %d", batch.CreatorMemberID)
	}
	if len(batch.Photos) != 3 {
		t.Fatalf("expected 3 photos, got %d", len(batch.Photos))
	}
	for i, p := range batch.Photos {
		if p.FileID != batch.FileIDs[i] {
			t.Errorf("photo %d: file ID %d does not match position %d (%d)", i, p.FileID, i, batch.FileIDs[i])
		}
	}
	if batch.Photos[0].FileID != 7 || batch.Photos[1].FileID != 8 || batch.Photos[2].FileID != 9 {
		t.Errorf("file IDs not zipped in order: %+v", batch.FileIDs)
	}
	if len(batch.CommonTagNames) != 1 || batch.CommonTagNames[0] != "choir" {
		t.Errorf("shared tags not carried: %v", batch.CommonTagNames)
	}

	// success clears the session
	state := s.State()
	if len(state.Drafts) != 0 || len(state.Shared.Tags) != 0 {
		t.Error("session was not cleared after success")
	}
	if state.Phase != Done {
		t.Errorf("expected phase %s, got %s", Done, state.Phase)
	}
}

func TestSubmitCountMismatchIsFatal(t *testing.T) {
	s := readySession(t, 3)
	api := &fakeAPI{uploadIDs: []int64{7, 8}} // one short

	err := Submit(context.Background(), s, api, 1)
	if !errors.Is(err, ErrCountMismatch) {
		t.Fatalf("expected ErrCountMismatch, got %v", err)
	}
	if api.createdBatch != nil {
		t.Error("create phase must not run after a count mismatch")
	}

	state := s.State()
	if state.Phase != Failed {
		t.Errorf("expected phase %s, got %s", Failed, state.Phase)
	}
	if len(state.Drafts) != 3 {
		t.Errorf("drafts must be preserved on failure, got %d", len(state.Drafts))
	}
	if state.LastErr == "" {
		t.Error("expected the failure to be recorded")
	}
}

func TestSubmitUploadFailurePreservesState(t *testing.T) {
	s := readySession(t, 2)
	if err := s.UpdateDraft(s.State().Drafts[0].ID, FieldDescription, "keep me"); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	api := &fakeAPI{uploadErr: errors.New("server exploded")}

	if err := Submit(context.Background(), s, api, 1); err == nil {
		t.Fatal("expected an error")
	}
	if api.createdBatch != nil {
		t.Error("create phase must not run when the upload fails")
	}

	state := s.State()
	if state.Phase != Failed {
		t.Errorf("expected phase %s, got %s", Failed, state.Phase)
	}
	if len(state.Drafts) != 2 || state.Drafts[0].Description != "keep me" {
		t.Error("draft state not preserved after upload failure")
	}
	if len(state.Shared.Tags) != 1 {
		t.Error("shared fields not preserved after upload failure")
	}
}

func TestSubmitCreateFailurePreservesState(t *testing.T) {
	s := readySession(t, 2)
	api := &fakeAPI{createErr: errors.New("records rejected")}

	if err := Submit(context.Background(), s, api, 1); err == nil {
		t.Fatal("expected an error")
	}

	state := s.State()
	if state.Phase != Failed {
		t.Errorf("expected phase %s, got %s", Failed, state.Phase)
	}
	if len(state.Drafts) != 2 {
		t.Errorf("drafts must be preserved, got %d", len(state.Drafts))
	}
}

func TestSubmitAfterFailureSucceeds(t *testing.T) {
	s := readySession(t, 2)

	failing := &fakeAPI{uploadErr: errors.New("transient")}
	if err := Submit(context.Background(), s, failing, 1); err == nil {
		t.Fatal("expected first submission to fail")
	}

	// session must still be editable while Failed
	if err := s.UpdateDraft(s.State().Drafts[0].ID, FieldTitle, "fixed up"); err != nil {
		t.Fatalf("editing after failure: %v", err)
	}

	working := &fakeAPI{}
	if err := Submit(context.Background(), s, working, 1); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if working.createdBatch == nil {
		t.Fatal("retry never reached the create phase")
	}
	if working.createdBatch.Photos[0].Title != "fixed up" {
		t.Errorf("edit between attempts was lost: %q", working.createdBatch.Photos[0].Title)
	}
}

func TestSubmitNotReady(t *testing.T) {
	s := NewSession(media.Passthrough{}, nil)
	s.AddTag("tag") // tags but no drafts
	err := Submit(context.Background(), s, &fakeAPI{}, 1)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestSubmitValidationFailure(t *testing.T) {
	s := readySession(t, 2)
	badID := s.State().Drafts[1].ID
	if err := s.UpdateDraft(badID, FieldTitle, "ab"); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	err := Submit(context.Background(), s, &fakeAPI{}, 1)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := ve.Result.Drafts[badID]; !ok {
		t.Error("validation error not keyed by the offending draft's ID")
	}

	// a validation failure never locks the session
	if got := s.State().Phase; got != Idle {
		t.Errorf("expected phase %s, got %s", Idle, got)
	}
}

func TestEffectiveCaptureTime(t *testing.T) {
	own := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fallback := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	for _, test := range []struct {
		name   string
		draft  *time.Time
		shared *time.Time
		want   *time.Time
	}{
		{"draft wins", &own, &fallback, &own},
		{"fallback used", nil, &fallback, &fallback},
		{"absent", nil, nil, nil},
	} {
		t.Run(test.name, func(t *testing.T) {
			d := &Draft{CapturedAt: test.draft}
			got := effectiveCaptureTime(d, SharedFields{CapturedAt: test.shared})
			if (got == nil) != (test.want == nil) {
				t.Fatalf("expected %v, got %v", test.want, got)
			}
			if got != nil && !got.Equal(*test.want) {
				t.Errorf("expected %v, got %v", test.want, got)
			}
		})
	}
}

func TestSubmitCarriesCaptureTimes(t *testing.T) {
	s := readySession(t, 2)
	state := s.State()

	own := "2025-03-01T09:00:00Z"
	if err := s.UpdateDraft(state.Drafts[0].ID, FieldCapturedAt, own); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	fallback := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	s.SetCapturedAt(&fallback)

	api := &fakeAPI{}
	if err := Submit(context.Background(), s, api, 1); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	photos := api.createdBatch.Photos
	if photos[0].TakenAt != own {
		t.Errorf("draft's own capture time lost: %q", photos[0].TakenAt)
	}
	if photos[1].TakenAt != fallback.Format(time.RFC3339) {
		t.Errorf("shared fallback not applied: %q", photos[1].TakenAt)
	}
}

func TestSubmitBatchSharedShape(t *testing.T) {
	files := testFiles(2)

	t.Run("count mismatch", func(t *testing.T) {
		err := SubmitBatch(context.Background(), files,
			func(context.Context, []cms.File) ([]int64, error) { return []int64{1}, nil },
			func(context.Context, []int64) error { t.Fatal("create must not run"); return nil },
		)
		if !errors.Is(err, ErrCountMismatch) {
			t.Errorf("expected ErrCountMismatch, got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		var gotIDs []int64
		err := SubmitBatch(context.Background(), files,
			func(context.Context, []cms.File) ([]int64, error) { return []int64{5, 6}, nil },
			func(_ context.Context, ids []int64) error { gotIDs = ids; return nil },
		)
		if err != nil {
			t.Fatalf("SubmitBatch: %v", err)
		}
		if len(gotIDs) != 2 || gotIDs[0] != 5 || gotIDs[1] != 6 {
			t.Errorf("IDs not passed through in order: %v", gotIDs)
		}
	})
}
