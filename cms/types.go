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

// Package cms implements the client side of the external content management
// API that stores the organization's documents, photos, tags, and events.
// This program is only a presentation and client-state layer; all persistence
// and authority over the data lives behind this API.
package cms

import "time"

// Photo is one photo record in the gallery.
type Photo struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Photographer string    `json:"photographer"`
	TakenAt      time.Time `json:"takenAt"`
	TagNames     []string  `json:"tagNames"`
	FileURL      string    `json:"fileUrl"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// Document is one record in the document archive. A document may
// be backed by more than one stored file.
type Document struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AuthorName  string    `json:"authorName"`
	Tags        []string  `json:"tags"`
	FileURLs    []string  `json:"fileUrls"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

// Tag labels photos and documents. Tag namespaces are separate
// per resource type on the API side.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Event is one calendar event.
type Event struct {
	ID    int64  `json:"id"`
	Date  string `json:"date"` // "2006-01-02"
	Title string `json:"title"`
	Time  string `json:"time,omitempty"` // display string, e.g. "09:00 ~ 10:00"
}

// PhotoBatch is the create-records request of the two-phase photo upload.
// FileIDs are the storage identifiers returned by the upload phase, in the
// same order as the files were submitted; each entry of Photos references
// one of them.
type PhotoBatch struct {
	CreatorMemberID int64        `json:"creatorMemberId"`
	FileIDs         []int64      `json:"fileIds"`
	CommonTagNames  []string     `json:"commonTagNames"`
	Photos          []BatchPhoto `json:"photos"`
}

// BatchPhoto is one photo record inside a PhotoBatch.
type BatchPhoto struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Photographer string `json:"photographer"`
	TakenAt      string `json:"takenAt,omitempty"` // RFC 3339; empty if unknown
	FileID       int64  `json:"fileId"`
}

// PhotoUpdate carries the editable fields of a photo record.
type PhotoUpdate struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Photographer string   `json:"photographer"`
	TagNames     []string `json:"tagNames"`
}

// DocumentCreate is the create-record request of the document flow.
// Like PhotoBatch, it is preceded by a batch file upload whose returned
// identifiers populate FileIDs.
type DocumentCreate struct {
	CreatorMemberID int64    `json:"creatorMemberId"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	AuthorName      string   `json:"authorName"`
	TagNames        []string `json:"tagNames"`
	FileIDs         []int64  `json:"fileIds"`
}

// DocumentUpdate carries the editable fields of a document record.
type DocumentUpdate struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	AuthorName  string   `json:"authorName"`
	TagNames    []string `json:"tagNames"`
}

// SearchParams filters list endpoints. Zero values mean "no filter".
type SearchParams struct {
	Title string   `json:"title,omitempty"` // substring match on title
	Tags  []string `json:"tags,omitempty"`  // must have all of these tags
}

// File is a named byte payload destined for a batch upload. The bytes are
// owned by whoever holds the File; they are never shared between drafts.
type File struct {
	Name string
	Data []byte
}
