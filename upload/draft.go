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

// Package upload implements the batch photo-upload pipeline: an ordered
// collection of per-file drafts, a set of session-wide shared fields, a
// validator, and a two-phase (upload files, then create records) submitter
// against the external CMS API. The pipeline holds all client-side state for
// one upload session; nothing here persists anything itself.
package upload

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vestryhq/vestry/cms"
)

// Draft is one in-progress, not-yet-submitted photo, paired with its source
// file. Drafts are identified by an opaque ID assigned at creation; positions
// are for display ordering only and shift when earlier drafts are removed,
// so nothing may be keyed by position.
type Draft struct {
	ID          string     `json:"id"`
	FileName    string     `json:"fileName"`
	FileSize    int64      `json:"fileSize"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CapturedAt  *time.Time `json:"capturedAt,omitempty"`

	// file bytes are exclusively owned by this draft until submission
	file cms.File

	// once a user edits the title, re-extraction must never overwrite it
	titleEdited bool

	// the preview handle (the retained file bytes served to the UI) is
	// released exactly once: on removal, or when the session closes
	releaseOnce sync.Once
}

func newDraft(f cms.File, capturedAt *time.Time) *Draft {
	return &Draft{
		ID:         uuid.NewString(),
		FileName:   f.Name,
		FileSize:   int64(len(f.Data)),
		Title:      TitleFromFilename(f.Name),
		CapturedAt: capturedAt,
		file:       f,
	}
}

// release drops the draft's file bytes. Safe to call more than once;
// only the first call has any effect.
func (d *Draft) release() {
	d.releaseOnce.Do(func() {
		d.file = cms.File{}
	})
}

// maxTitleLen is the longest default title derived from a filename;
// longer base names are cut to truncAt characters plus a marker.
const (
	maxTitleLen = 30
	truncAt     = 27
	truncMarker = "..."
)

// TitleFromFilename derives a draft's default title from its file's base
// name: the extension is stripped, and names longer than 30 characters are
// truncated to 27 plus a "..." marker.
func TitleFromFilename(filename string) string {
	base := path.Base(filename)
	base = strings.TrimSuffix(base, path.Ext(base))
	runes := []rune(base)
	if len(runes) > maxTitleLen {
		return string(runes[:truncAt]) + truncMarker
	}
	return base
}
