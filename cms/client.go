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

package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to the external CMS API. All methods treat any non-2xx
// response uniformly as an error; the response body is parsed for a
// human-readable "message" field which, if absent or unparsable, is
// replaced by a generic message.
type Client struct {
	base string // e.g. "http://localhost:8080/api/v1"
	hc   *http.Client
	log  *zap.Logger
}

// NewClient makes a client for the API rooted at base. The path prefix
// (usually "/api/v1") must be included in base.
func NewClient(base string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		hc:   &http.Client{Timeout: 1 * time.Minute},
		log:  logger,
	}
}

// APIError is the error returned for any non-success response status.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string // from the response body, or a generic fallback
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s %s: %s (HTTP %d)", e.Method, e.Path, e.Message, e.Status)
}

const genericErrMessage = "the server could not complete the request"

// checkResponse turns a non-success response into an APIError.
// It consumes the body in that case.
func (c *Client) checkResponse(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := genericErrMessage
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		msg = body.Message
	}
	return APIError{Method: method, Path: path, Status: resp.StatusCode, Message: msg}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if err := c.checkResponse(resp, method, path); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
		}
	}
	return nil
}

// uploadFiles POSTs files as one multipart request to path and returns the
// storage identifiers the API assigned, in the same order the files were
// written into the request body.
func (c *Client) uploadFiles(ctx context.Context, path string, files []File) ([]int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("creating form file %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("writing form file %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := c.checkResponse(resp, http.MethodPost, path); err != nil {
		return nil, err
	}

	var ids []int64
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("POST %s: decoding file IDs: %w", path, err)
	}
	return ids, nil
}

// searchQuery renders params as a query string, or "" if params is empty.
func searchQuery(params SearchParams) string {
	q := url.Values{}
	if params.Title != "" {
		q.Set("title", params.Title)
	}
	for _, tag := range params.Tags {
		q.Add("tag", tag)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// UploadPhotoFiles is the first phase of the photo batch upload.
func (c *Client) UploadPhotoFiles(ctx context.Context, files []File) ([]int64, error) {
	return c.uploadFiles(ctx, "/files/photos/batch", files)
}

// CreatePhotos is the second phase of the photo batch upload.
func (c *Client) CreatePhotos(ctx context.Context, batch PhotoBatch) error {
	return c.doJSON(ctx, http.MethodPost, "/photos/batch", batch, nil)
}

// ListPhotos returns photos matching params (all photos if params is empty).
func (c *Client) ListPhotos(ctx context.Context, params SearchParams) ([]Photo, error) {
	var photos []Photo
	err := c.doJSON(ctx, http.MethodGet, "/photos"+searchQuery(params), nil, &photos)
	return photos, err
}

// GetPhoto returns one photo by ID.
func (c *Client) GetPhoto(ctx context.Context, id int64) (Photo, error) {
	var photo Photo
	err := c.doJSON(ctx, http.MethodGet, "/photos/"+strconv.FormatInt(id, 10), nil, &photo)
	return photo, err
}

// UpdatePhoto replaces the editable fields of one photo.
func (c *Client) UpdatePhoto(ctx context.Context, id int64, update PhotoUpdate) error {
	return c.doJSON(ctx, http.MethodPut, "/photos/"+strconv.FormatInt(id, 10), update, nil)
}

// DeletePhoto deletes one photo.
func (c *Client) DeletePhoto(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/photos/"+strconv.FormatInt(id, 10), nil, nil)
}

// DeletePhotos deletes several photos in one call.
func (c *Client) DeletePhotos(ctx context.Context, ids []int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/photos/batch", ids, nil)
}

// ListPhotoTags returns the tags known to the gallery.
func (c *Client) ListPhotoTags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	err := c.doJSON(ctx, http.MethodGet, "/tags/photos", nil, &tags)
	return tags, err
}

// UploadDocumentFiles is the first phase of the document create flow;
// it has the same two-phase shape as the photo batch upload.
func (c *Client) UploadDocumentFiles(ctx context.Context, files []File) ([]int64, error) {
	return c.uploadFiles(ctx, "/files/documents/batch", files)
}

// CreateDocument is the second phase of the document create flow.
func (c *Client) CreateDocument(ctx context.Context, doc DocumentCreate) error {
	return c.doJSON(ctx, http.MethodPost, "/documents", doc, nil)
}

// ListDocuments returns archive documents matching params.
func (c *Client) ListDocuments(ctx context.Context, params SearchParams) ([]Document, error) {
	var docs []Document
	err := c.doJSON(ctx, http.MethodGet, "/documents"+searchQuery(params), nil, &docs)
	return docs, err
}

// GetDocument returns one document by ID.
func (c *Client) GetDocument(ctx context.Context, id int64) (Document, error) {
	var doc Document
	err := c.doJSON(ctx, http.MethodGet, "/documents/"+strconv.FormatInt(id, 10), nil, &doc)
	return doc, err
}

// UpdateDocument replaces the editable fields of one document.
func (c *Client) UpdateDocument(ctx context.Context, id int64, update DocumentUpdate) error {
	return c.doJSON(ctx, http.MethodPut, "/documents/"+strconv.FormatInt(id, 10), update, nil)
}

// DeleteDocument deletes one document.
func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/documents/"+strconv.FormatInt(id, 10), nil, nil)
}

// ListDocumentTags returns the tags known to the archive.
func (c *Client) ListDocumentTags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	err := c.doJSON(ctx, http.MethodGet, "/tags/documents", nil, &tags)
	return tags, err
}

// ListEvents returns calendar events between from and to, inclusive,
// where both are "2006-01-02" date strings.
func (c *Client) ListEvents(ctx context.Context, from, to string) ([]Event, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	var events []Event
	err := c.doJSON(ctx, http.MethodGet, "/events?"+q.Encode(), nil, &events)
	return events, err
}

// CreateEvent adds one calendar event.
func (c *Client) CreateEvent(ctx context.Context, ev Event) error {
	return c.doJSON(ctx, http.MethodPost, "/events", ev, nil)
}

// DeleteEvent deletes one calendar event.
func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/events/"+strconv.FormatInt(id, 10), nil, nil)
}
