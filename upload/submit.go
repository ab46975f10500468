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
	"fmt"
	"time"

	"github.com/vestryhq/vestry/cms"
	"go.uber.org/zap"
)

// Phase is the submission state of a session.
type Phase string

const (
	Idle      Phase = "idle"
	Uploading Phase = "uploading"
	Creating  Phase = "creating"
	Done      Phase = "done"
	Failed    Phase = "failed"
)

// PhotoAPI is the slice of the external API the submitter needs.
// *cms.Client satisfies it.
type PhotoAPI interface {
	UploadPhotoFiles(ctx context.Context, files []cms.File) ([]int64, error)
	CreatePhotos(ctx context.Context, batch cms.PhotoBatch) error
}

// ValidationError is returned by Submit when the validator rejects the
// batch; the result carries the per-draft field errors for the UI.
type ValidationError struct {
	Result ValidationResult
}

func (e ValidationError) Error() string {
	if e.Result.TagsMissing {
		return "add at least one tag before submitting"
	}
	return fmt.Sprintf("%d draft(s) have errors", len(e.Result.Drafts))
}

// Submit runs the two-phase batch submission: upload every draft's file in
// one batched request, then create all records in one batched request. Only
// one submission may be in flight per session; edits are locked out for its
// duration. On any failure, in either phase, every draft and all shared
// fields are preserved unchanged so the user can retry without re-entering
// anything; nothing is retried automatically, and no draft is ever left
// holding a partial result. On success the session is cleared.
func Submit(ctx context.Context, s *Session, api PhotoAPI, creatorMemberID int64) error {
	s.mu.Lock()
	if s.phase == Uploading || s.phase == Creating {
		s.mu.Unlock()
		return ErrSubmitInFlight
	}

	if !s.ready() {
		s.mu.Unlock()
		return ErrNotReady
	}
	if result := s.validateLocked(); !result.OK() {
		s.mu.Unlock()
		return ValidationError{Result: result}
	}

	// snapshot everything the two network phases need, so the lock is not
	// held across them; editing is fenced off by the phase instead
	files := make([]cms.File, len(s.drafts))
	drafts := make([]*Draft, len(s.drafts))
	for i, d := range s.drafts {
		files[i] = d.file
		drafts[i] = d
	}
	shared := s.shared
	s.phase = Uploading
	s.lastErr = ""
	log := s.log
	s.mu.Unlock()

	fail := func(err error) error {
		s.mu.Lock()
		s.phase = Failed
		s.lastErr = err.Error()
		s.mu.Unlock()
		log.Error("batch submission failed", zap.Error(err))
		return err
	}

	// zip the returned IDs back onto the drafts by position and create
	// all records in one request
	create := func(ctx context.Context, fileIDs []int64) error {
		s.mu.Lock()
		s.phase = Creating
		s.mu.Unlock()

		batch := cms.PhotoBatch{
			CreatorMemberID: creatorMemberID,
			FileIDs:         fileIDs,
			CommonTagNames:  shared.Tags,
			Photos:          make([]cms.BatchPhoto, len(drafts)),
		}
		for i, d := range drafts {
			batch.Photos[i] = cms.BatchPhoto{
				Title:        d.Title,
				Description:  d.Description,
				Photographer: shared.Photographer,
				TakenAt:      formatTakenAt(effectiveCaptureTime(d, shared)),
				FileID:       fileIDs[i],
			}
		}
		return api.CreatePhotos(ctx, batch)
	}

	if err := SubmitBatch(ctx, files, api.UploadPhotoFiles, create); err != nil {
		return fail(err)
	}

	s.mu.Lock()
	s.phase = Done
	s.clearLocked()
	s.mu.Unlock()

	log.Info("batch submission complete", zap.Int("photos", len(files)))
	return nil
}

// effectiveCaptureTime resolves a draft's capture time: its own if set,
// else the session-wide fallback, else absent.
func effectiveCaptureTime(d *Draft, shared SharedFields) *time.Time {
	if d.CapturedAt != nil {
		return d.CapturedAt
	}
	return shared.CapturedAt
}

func formatTakenAt(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.Format(time.RFC3339)
}

// SubmitBatch is the two-phase shape shared by the photo pipeline and the
// archive's document create flow: upload all files in one batched call,
// check the returned identifier count against the submitted file count,
// then hand the identifiers to create. If the upload call fails, create is
// never attempted; an identifier-count mismatch is fatal for the attempt
// (no pairing is ever guessed).
func SubmitBatch(ctx context.Context, files []cms.File,
	uploadFiles func(context.Context, []cms.File) ([]int64, error),
	create func(context.Context, []int64) error,
) error {
	fileIDs, err := uploadFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("uploading files: %w", err)
	}
	if len(fileIDs) != len(files) {
		return fmt.Errorf("%w: %d files, %d IDs", ErrCountMismatch, len(files), len(fileIDs))
	}
	if err := create(ctx, fileIDs); err != nil {
		return fmt.Errorf("creating records: %w", err)
	}
	return nil
}
