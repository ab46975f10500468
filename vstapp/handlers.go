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

package vstapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vestryhq/vestry/calendar"
	"github.com/vestryhq/vestry/cms"
	"github.com/vestryhq/vestry/upload"
)

// upload sessions

func (s *server) handleNewUploadSession(w http.ResponseWriter, _ *http.Request) error {
	sess := s.app.sessions.open()
	return jsonResponse(w, sess.State(), nil)
}

type sessionPayload struct {
	SessionID string `json:"session_id"`
}

func (s *server) handleUploadSessionState(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*sessionPayload)
	sess, err := s.session(payload.SessionID)
	if err != nil {
		return err
	}
	return jsonResponse(w, sess.State(), nil)
}

func (s *server) handleCloseUploadSession(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*sessionPayload)
	s.app.sessions.close(payload.SessionID)
	return jsonResponse(w, nil, nil)
}

// generous; photo batches can be big
const maxUploadBytes = 512 << 20

func (s *server) handleAddPhotos(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return Error{
			Err:        err,
			HTTPStatus: http.StatusBadRequest,
			Log:        "parsing multipart form",
			Message:    "Invalid multipart request body.",
		}
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	sess, err := s.session(r.FormValue("session_id"))
	if err != nil {
		return err
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		return Error{
			Err:        errors.New("no files in request"),
			HTTPStatus: http.StatusBadRequest,
			Message:    "No files were attached.",
		}
	}

	files := make([]cms.File, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			return Error{
				Err:        err,
				HTTPStatus: http.StatusBadRequest,
				Log:        "opening uploaded file",
				Message:    fmt.Sprintf("Could not read the file %s.", fh.Filename),
			}
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return Error{
				Err:        err,
				HTTPStatus: http.StatusBadRequest,
				Log:        "reading uploaded file",
				Message:    fmt.Sprintf("Could not read the file %s.", fh.Filename),
			}
		}
		files = append(files, cms.File{Name: fh.Filename, Data: data})
	}

	if _, err := sess.AddFiles(files); err != nil {
		return uploadError(err)
	}
	return jsonResponse(w, sess.State(), nil)
}

type updateDraftPayload struct {
	SessionID string `json:"session_id"`
	DraftID   string `json:"draft_id"`
	Field     string `json:"field"`
	Value     string `json:"value"`
}

func (s *server) handleUpdatePhotoDraft(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*updateDraftPayload)
	sess, err := s.session(payload.SessionID)
	if err != nil {
		return err
	}
	if err := sess.UpdateDraft(payload.DraftID, payload.Field, payload.Value); err != nil {
		return uploadError(err)
	}
	return jsonResponse(w, sess.State(), nil)
}

type draftPayload struct {
	SessionID string `json:"session_id"`
	DraftID   string `json:"draft_id"`
}

func (s *server) handleRemovePhotoDraft(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*draftPayload)
	sess, err := s.session(payload.SessionID)
	if err != nil {
		return err
	}
	if err := sess.RemoveDraft(payload.DraftID); err != nil {
		return uploadError(err)
	}
	return jsonResponse(w, sess.State(), nil)
}

func (s *server) handleReextractPhotoDraft(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*draftPayload)
	sess, err := s.session(payload.SessionID)
	if err != nil {
		return err
	}
	if err := sess.ReextractMetadata(payload.DraftID); err != nil {
		return uploadError(err)
	}
	return jsonResponse(w, sess.State(), nil)
}

type sessionTagPayload struct {
	SessionID string `json:"session_id"`
	Tag       string `json:"tag"`
}

func (s *server) handleAddUploadTag(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*sessionTagPayload)
	sess, err := s.session(payload.SessionID)
	if err != nil {
		return err
	}
	sess.AddTag(payload.Tag)
	return jsonResponse(w, sess.State(), nil)
}

func (s *server) handleRemoveUploadTag(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*sessionTagPayload)
	sess, err := s.session(payload.SessionID)
	if err != nil {
		return err
	}
	sess.RemoveTag(payload.Tag)
	return jsonResponse(w, sess.State(), nil)
}

type sharedFieldPayload struct {
	SessionID string `json:"session_id"`
	Field     string `json:"field"`
	Value     string `json:"value"`
}

func (s *server) handleSetUploadField(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*sharedFieldPayload)
	sess, err := s.session(payload.SessionID)
	if err != nil {
		return err
	}

	switch payload.Field {
	case "photographer":
		sess.SetPhotographer(payload.Value)
	case "capturedAt":
		if payload.Value == "" {
			sess.SetCapturedAt(nil)
			break
		}
		ts, err := time.Parse(time.RFC3339, payload.Value)
		if err != nil {
			return Error{
				Err:        err,
				HTTPStatus: http.StatusBadRequest,
				Log:        "parsing shared capture time",
				Message:    "The capture time must be an RFC 3339 timestamp.",
			}
		}
		sess.SetCapturedAt(&ts)
	default:
		return Error{
			Err:        fmt.Errorf("unknown shared field '%s'", payload.Field),
			HTTPStatus: http.StatusBadRequest,
			Message:    "That field cannot be set on the session.",
		}
	}
	return jsonResponse(w, sess.State(), nil)
}

func (s *server) handleSubmitUpload(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*sessionPayload)
	sess, err := s.session(payload.SessionID)
	if err != nil {
		return err
	}
	if err := upload.Submit(r.Context(), sess, s.app.client, s.app.cfg.creatorMemberID()); err != nil {
		return uploadError(err)
	}
	return jsonResponse(w, sess.State(), nil)
}

const previewBasePath = "/preview/"

// handlePhotoPreview serves a draft's image bytes for display in the
// session view. The URI is /preview/{session_id}/{draft_id}.
func (s *server) handlePhotoPreview(w http.ResponseWriter, r *http.Request) error {
	rest := strings.TrimPrefix(r.URL.Path, previewBasePath)
	sessionID, draftID, ok := strings.Cut(rest, "/")
	if !ok {
		return Error{
			Err:        fmt.Errorf("malformed preview path '%s'", r.URL.Path),
			HTTPStatus: http.StatusBadRequest,
		}
	}
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	f, found := sess.Preview(draftID)
	if !found {
		return Error{
			Err:        upload.ErrDraftNotFound,
			HTTPStatus: http.StatusNotFound,
			Message:    "No such photo in this session.",
		}
	}
	ctype := mime.TypeByExtension(path.Ext(f.Name))
	if ctype == "" {
		ctype = http.DetectContentType(f.Data)
	}
	w.Header().Set("Content-Type", ctype)
	_, err = w.Write(f.Data)
	return err
}

// session resolves a session ID or returns a structured 404.
func (s *server) session(id string) (*upload.Session, error) {
	sess, ok := s.app.sessions.get(id)
	if !ok {
		return nil, Error{
			Err:        fmt.Errorf("no upload session with ID '%s'", id),
			HTTPStatus: http.StatusNotFound,
			Message:    "That upload session does not exist (it may have been closed).",
		}
	}
	return sess, nil
}

// uploadError maps upload package errors onto HTTP statuses.
func uploadError(err error) error {
	var ve upload.ValidationError
	if errors.As(err, &ve) {
		return Error{
			Err:        err,
			HTTPStatus: http.StatusUnprocessableEntity,
			Message:    "Some photos need attention before submitting.",
			Data:       ve.Result,
		}
	}
	switch {
	case errors.Is(err, upload.ErrDraftNotFound):
		return Error{
			Err:        err,
			HTTPStatus: http.StatusNotFound,
			Message:    "No such photo in this session.",
		}
	case errors.Is(err, upload.ErrSubmitInFlight):
		return Error{
			Err:        err,
			HTTPStatus: http.StatusConflict,
			Message:    "A submission is in progress; wait for it to finish.",
		}
	case errors.Is(err, upload.ErrNotReady):
		return Error{
			Err:        err,
			HTTPStatus: http.StatusConflict,
			Message:    "Add at least one photo and one tag before submitting.",
		}
	case errors.Is(err, upload.ErrNothingSurvived):
		return Error{
			Err:        err,
			HTTPStatus: http.StatusUnprocessableEntity,
			Message:    "None of those files could be converted to a usable format.",
		}
	case errors.Is(err, upload.ErrUnknownField):
		return Error{
			Err:        err,
			HTTPStatus: http.StatusBadRequest,
			Message:    "That field cannot be set on a photo draft.",
		}
	}
	return err
}

// photos

func (s *server) handleSearchPhotos(w http.ResponseWriter, r *http.Request) error {
	params := r.Context().Value(ctxKeyPayload).(*cms.SearchParams)
	photos, err := s.app.client.ListPhotos(r.Context(), *params)
	return jsonResponse(w, photos, err)
}

type idPayload struct {
	ID int64 `json:"id"`
}

func (s *server) handleGetPhoto(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*idPayload)
	photo, err := s.app.client.GetPhoto(r.Context(), payload.ID)
	return jsonResponse(w, photo, err)
}

type updatePhotoPayload struct {
	ID int64 `json:"id"`
	cms.PhotoUpdate
}

func (s *server) handleUpdatePhoto(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*updatePhotoPayload)
	err := s.app.client.UpdatePhoto(r.Context(), payload.ID, payload.PhotoUpdate)
	return jsonResponse(w, nil, err)
}

type idsPayload struct {
	IDs []int64 `json:"ids"`
}

func (s *server) handleDeletePhotos(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*idsPayload)
	if len(payload.IDs) == 0 {
		return Error{
			Err:        errors.New("no photo IDs given"),
			HTTPStatus: http.StatusBadRequest,
		}
	}
	var err error
	if len(payload.IDs) == 1 {
		err = s.app.client.DeletePhoto(r.Context(), payload.IDs[0])
	} else {
		err = s.app.client.DeletePhotos(r.Context(), payload.IDs)
	}
	return jsonResponse(w, nil, err)
}

func (s *server) handlePhotoTags(w http.ResponseWriter, r *http.Request) error {
	tags, err := s.app.client.ListPhotoTags(r.Context())
	return jsonResponse(w, tags, err)
}

// documents

func (s *server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) error {
	params := r.Context().Value(ctxKeyPayload).(*cms.SearchParams)
	docs, err := s.app.client.ListDocuments(r.Context(), *params)
	return jsonResponse(w, docs, err)
}

func (s *server) handleGetDocument(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*idPayload)
	doc, err := s.app.client.GetDocument(r.Context(), payload.ID)
	return jsonResponse(w, doc, err)
}

// handleCreateDocument uploads the attached files and creates the document
// record referencing them, using the same two-phase flow as photo batches.
func (s *server) handleCreateDocument(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return Error{
			Err:        err,
			HTTPStatus: http.StatusBadRequest,
			Log:        "parsing multipart form",
			Message:    "Invalid multipart request body.",
		}
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		return Error{
			Err:        errors.New("document title is empty"),
			HTTPStatus: http.StatusUnprocessableEntity,
			Message:    "Please enter a title.",
		}
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		return Error{
			Err:        errors.New("no files in request"),
			HTTPStatus: http.StatusBadRequest,
			Message:    "Attach at least one file.",
		}
	}

	files := make([]cms.File, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			return Error{
				Err:        err,
				HTTPStatus: http.StatusBadRequest,
				Log:        "opening uploaded file",
				Message:    fmt.Sprintf("Could not read the file %s.", fh.Filename),
			}
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return Error{
				Err:        err,
				HTTPStatus: http.StatusBadRequest,
				Log:        "reading uploaded file",
				Message:    fmt.Sprintf("Could not read the file %s.", fh.Filename),
			}
		}
		files = append(files, cms.File{Name: fh.Filename, Data: data})
	}

	create := func(ctx context.Context, fileIDs []int64) error {
		return s.app.client.CreateDocument(ctx, cms.DocumentCreate{
			CreatorMemberID: s.app.cfg.creatorMemberID(),
			Title:           title,
			Description:     r.FormValue("description"),
			AuthorName:      r.FormValue("author_name"),
			TagNames:        r.Form["tags"],
			FileIDs:         fileIDs,
		})
	}

	err := upload.SubmitBatch(r.Context(), files, s.app.client.UploadDocumentFiles, create)
	return jsonResponse(w, nil, err)
}

type updateDocumentPayload struct {
	ID int64 `json:"id"`
	cms.DocumentUpdate
}

func (s *server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*updateDocumentPayload)
	err := s.app.client.UpdateDocument(r.Context(), payload.ID, payload.DocumentUpdate)
	return jsonResponse(w, nil, err)
}

func (s *server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*idPayload)
	err := s.app.client.DeleteDocument(r.Context(), payload.ID)
	return jsonResponse(w, nil, err)
}

func (s *server) handleDocumentTags(w http.ResponseWriter, r *http.Request) error {
	tags, err := s.app.client.ListDocumentTags(r.Context())
	return jsonResponse(w, tags, err)
}

// calendar

type calendarPayload struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *server) handleCalendar(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*calendarPayload)
	if payload.Month < 1 || payload.Month > 12 {
		return Error{
			Err:        fmt.Errorf("month %d out of range", payload.Month),
			HTTPStatus: http.StatusBadRequest,
			Message:    "The month must be between 1 and 12.",
		}
	}
	from, to := calendar.Bounds(payload.Year, time.Month(payload.Month))
	events, err := s.app.client.ListEvents(r.Context(), from, to)
	if err != nil {
		return jsonResponse(w, nil, err)
	}
	return jsonResponse(w, calendar.MonthGrid(payload.Year, time.Month(payload.Month), events), nil)
}

type eventRangePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*eventRangePayload)
	events, err := s.app.client.ListEvents(r.Context(), payload.From, payload.To)
	return jsonResponse(w, events, err)
}

func (s *server) handleCreateEvent(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*cms.Event)
	if _, err := time.Parse("2006-01-02", payload.Date); err != nil {
		return Error{
			Err:        err,
			HTTPStatus: http.StatusBadRequest,
			Log:        "parsing event date",
			Message:    "The event date must look like 2006-01-02.",
		}
	}
	if strings.TrimSpace(payload.Title) == "" {
		return Error{
			Err:        errors.New("event title is empty"),
			HTTPStatus: http.StatusUnprocessableEntity,
			Message:    "Please enter a title.",
		}
	}
	err := s.app.client.CreateEvent(r.Context(), *payload)
	return jsonResponse(w, nil, err)
}

func (s *server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*idPayload)
	err := s.app.client.DeleteEvent(r.Context(), payload.ID)
	return jsonResponse(w, nil, err)
}

// misc

type BuildInfo struct {
	GoOS   string `json:"go_os"`
	GoArch string `json:"go_arch"`
}

func (s *server) handleBuildInfo(w http.ResponseWriter, _ *http.Request) error {
	return jsonResponse(w, BuildInfo{GoOS: runtime.GOOS, GoArch: runtime.GOARCH}, nil)
}

func (s *server) handleConfig(w http.ResponseWriter, _ *http.Request) error {
	s.app.cfg.RLock()
	defer s.app.cfg.RUnlock()
	return jsonResponse(w, s.app.cfg, nil)
}

func (server) handleLogs(w http.ResponseWriter, r *http.Request) error {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return Error{
			Err:        err,
			HTTPStatus: http.StatusBadRequest,
			Log:        "upgrading request to websocket",
			Message:    "This endpoint expects a WebSocket client.",
		}
	}
	defer conn.Close()

	// while the client is connected, broadcast the logs to it
	cms.AddLogConn(conn)
	defer cms.RemoveLogConn(conn)

	// simply keep the connection open until the client closes it
	for {
		_, _, err = conn.ReadMessage()
		if err != nil {
			break
		}
	}

	return nil
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true }, // we check Origin earlier
}
