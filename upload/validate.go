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
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationResult maps draft IDs (never positions, which shift across
// removals) to field-level error messages, plus the one aggregate check:
// the shared tag set must not be empty. It is recomputed wholesale on
// every validation pass and never patched incrementally.
type ValidationResult struct {
	Drafts      map[string]map[string]string `json:"drafts,omitempty"` // draft ID -> field -> message
	TagsMissing bool                         `json:"tagsMissing,omitempty"`
}

// OK reports whether the batch may be submitted.
func (v ValidationResult) OK() bool {
	return len(v.Drafts) == 0 && !v.TagsMissing
}

// draftRules are the structural per-draft checks. String min/max count
// characters, matching the title-derivation limit.
type draftRules struct {
	Title string `validate:"required,min=3,max=30"`
}

var validate = validator.New()

// Validate runs every per-draft check in position order plus the aggregate
// tag check. Validation is advisory until submission: it never blocks
// edits, only the submit action, and Submit always re-runs it in full.
func (s *Session) Validate() ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked()
}

func (s *Session) validateLocked() ValidationResult {
	result := ValidationResult{
		TagsMissing: len(s.shared.Tags) == 0,
	}

	for _, d := range s.drafts {
		err := validate.Struct(draftRules{Title: strings.TrimSpace(d.Title)})
		if err == nil {
			continue
		}
		fieldErrs := make(map[string]string)
		for _, fe := range err.(validator.ValidationErrors) {
			switch fe.Tag() {
			case "required":
				fieldErrs["title"] = "Please enter a title."
			default:
				fieldErrs["title"] = "Titles must be between 3 and 30 characters."
			}
		}
		if result.Drafts == nil {
			result.Drafts = make(map[string]map[string]string)
		}
		result.Drafts[d.ID] = fieldErrs
	}

	return result
}
