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
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vestryhq/vestry/cms"
	"github.com/vestryhq/vestry/media"
	"go.uber.org/zap"
)

// SharedFields are entered once per session and applied to every draft at
// submission time. Tags are session-global: every photo in the batch gets
// the same tag set. CapturedAt is only a fallback, used for drafts that
// have no capture time of their own.
type SharedFields struct {
	Tags         []string   `json:"tags"` // unique, insertion-ordered, case-sensitive
	Photographer string     `json:"photographer"`
	CapturedAt   *time.Time `json:"capturedAt,omitempty"`
}

// Session is the client-side state of one batch upload: an ordered draft
// store, the shared fields, and the submission state machine. A Session is
// safe for concurrent use; all methods take the session lock.
type Session struct {
	ID string

	mu         sync.Mutex
	drafts     []*Draft
	shared     SharedFields
	phase      Phase
	lastErr    string
	normalizer media.Normalizer
	log        *zap.Logger
}

// NewSession starts an empty upload session. The normalizer decides how
// non-web-standard image formats are handled; pass media.Passthrough{}
// where no conversion capability exists.
func NewSession(normalizer media.Normalizer, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		ID:         uuid.NewString(),
		phase:      Idle,
		normalizer: normalizer,
		log:        logger,
	}
}

// Errors reported by session operations.
var (
	ErrDraftNotFound   = errors.New("no draft with that ID")
	ErrSubmitInFlight  = errors.New("a submission is already in flight")
	ErrUnknownField    = errors.New("unknown draft field")
	ErrNotReady        = errors.New("session is not ready to submit")
	ErrCountMismatch   = errors.New("upload returned a different number of file IDs than files submitted")
	ErrNothingSurvived = errors.New("no files survived format conversion")
)

// editable reports whether the session may be mutated right now.
// Editing is allowed before a submission and after a failed one,
// never while one is in flight.
func (s *Session) editable() bool {
	return s.phase == Idle || s.phase == Failed
}

// AddFiles runs the format normalizer and the metadata extractor over each
// file and appends one draft per surviving file to the end of the store.
// Per-file work runs concurrently, but results are reassembled in the
// original input order before any draft becomes visible: drafts never
// appear in completion order. Files that fail conversion are logged and
// dropped; extraction failures just leave the capture time unset.
func (s *Session) AddFiles(files []cms.File) ([]*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editable() {
		return nil, ErrSubmitInFlight
	}

	// slots are indexed by input position so output order is input order,
	// regardless of per-file latency; nil slots are dropped files
	slots := make([]*Draft, len(files))

	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f cms.File) {
			defer wg.Done()

			normalized, err := s.normalizer.Normalize(f)
			if err != nil {
				s.log.Warn("dropping file that failed conversion",
					zap.String("filename", f.Name),
					zap.Error(err))
				return
			}

			var capturedAt *time.Time
			if ts, ok := media.ExtractTimestamp(s.log, bytes.NewReader(normalized.Data)); ok {
				capturedAt = &ts
			}

			slots[i] = newDraft(normalized, capturedAt)
		}(i, f)
	}
	wg.Wait()

	added := make([]*Draft, 0, len(slots))
	for _, d := range slots {
		if d != nil {
			added = append(added, d)
		}
	}
	if len(files) > 0 && len(added) == 0 {
		return nil, ErrNothingSurvived
	}

	s.drafts = append(s.drafts, added...)
	return added, nil
}

// Draft field names accepted by UpdateDraft.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCapturedAt  = "capturedAt"
)

// UpdateDraft replaces exactly one field on exactly one draft. A capturedAt
// value must be RFC 3339, or empty to clear it. Setting the title marks it
// user-edited, which protects it from any later re-derivation.
func (s *Session) UpdateDraft(id, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editable() {
		return ErrSubmitInFlight
	}

	d := s.findDraft(id)
	if d == nil {
		return ErrDraftNotFound
	}

	switch field {
	case FieldTitle:
		d.Title = value
		d.titleEdited = true
	case FieldDescription:
		d.Description = value
	case FieldCapturedAt:
		if value == "" {
			d.CapturedAt = nil
			return nil
		}
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return fmt.Errorf("parsing capture time: %w", err)
		}
		d.CapturedAt = &ts
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

// ReextractMetadata re-runs the metadata extractor over a draft's retained
// file bytes, replacing its capture time with whatever the file's metadata
// says (or clearing it), and restoring the default filename-derived title.
// A title the user has edited is never overwritten.
func (s *Session) ReextractMetadata(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editable() {
		return ErrSubmitInFlight
	}

	d := s.findDraft(id)
	if d == nil {
		return ErrDraftNotFound
	}

	d.CapturedAt = nil
	if ts, ok := media.ExtractTimestamp(s.log, bytes.NewReader(d.file.Data)); ok {
		d.CapturedAt = &ts
	}
	if !d.titleEdited {
		d.Title = TitleFromFilename(d.FileName)
	}
	return nil
}

// RemoveDraft deletes one draft; all later drafts shift down one position.
// The removed draft's preview handle is released.
func (s *Session) RemoveDraft(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editable() {
		return ErrSubmitInFlight
	}

	for i, d := range s.drafts {
		if d.ID == id {
			d.release()
			s.drafts = append(s.drafts[:i], s.drafts[i+1:]...)
			return nil
		}
	}
	return ErrDraftNotFound
}

// AddTag appends a tag to the shared tag set, preserving insertion order.
// Duplicates (exact, case-sensitive) and blank tags are ignored.
func (s *Session) AddTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editable() {
		return
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	for _, existing := range s.shared.Tags {
		if existing == tag {
			return
		}
	}
	s.shared.Tags = append(s.shared.Tags, tag)
}

// RemoveTag deletes a tag from the shared tag set, if present.
func (s *Session) RemoveTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editable() {
		return
	}
	for i, existing := range s.shared.Tags {
		if existing == tag {
			s.shared.Tags = append(s.shared.Tags[:i], s.shared.Tags[i+1:]...)
			return
		}
	}
}

// SetPhotographer sets the shared attribution applied to every draft.
func (s *Session) SetPhotographer(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editable() {
		s.shared.Photographer = name
	}
}

// SetCapturedAt sets (or, with nil, clears) the session-wide capture time
// used as a fallback for drafts without one of their own.
func (s *Session) SetCapturedAt(ts *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editable() {
		s.shared.CapturedAt = ts
	}
}

// Ready reports whether the submit affordance should be enabled: there is
// at least one draft and at least one shared tag. This is necessary but
// not sufficient; Validate is the authoritative check at submit time.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready()
}

func (s *Session) ready() bool {
	return len(s.drafts) > 0 && len(s.shared.Tags) > 0
}

// State is a snapshot of the session for the UI: the ordered drafts, the
// shared fields, the readiness gate, and the submission phase.
type State struct {
	ID      string       `json:"id"`
	Drafts  []Draft      `json:"drafts"`
	Shared  SharedFields `json:"shared"`
	Ready   bool         `json:"ready"`
	Phase   Phase        `json:"phase"`
	LastErr string       `json:"lastError,omitempty"`
}

// State returns a copy of the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts := make([]Draft, len(s.drafts))
	for i, d := range s.drafts {
		drafts[i] = Draft{
			ID:          d.ID,
			FileName:    d.FileName,
			FileSize:    d.FileSize,
			Title:       d.Title,
			Description: d.Description,
			CapturedAt:  d.CapturedAt,
		}
	}
	shared := s.shared
	shared.Tags = append([]string(nil), s.shared.Tags...)

	return State{
		ID:      s.ID,
		Drafts:  drafts,
		Shared:  shared,
		Ready:   s.ready(),
		Phase:   s.phase,
		LastErr: s.lastErr,
	}
}

// Preview returns the draft's file bytes for display, or false if the
// draft does not exist (or its handle was already released).
func (s *Session) Preview(id string) (cms.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDraft(id)
	if d == nil || d.file.Data == nil {
		return cms.File{}, false
	}
	return d.file, true
}

// Close releases every draft's preview handle and empties the session.
// It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Session) clearLocked() {
	for _, d := range s.drafts {
		d.release()
	}
	s.drafts = nil
	s.shared = SharedFields{}
}

func (s *Session) findDraft(id string) *Draft {
	for _, d := range s.drafts {
		if d.ID == id {
			return d
		}
	}
	return nil
}
