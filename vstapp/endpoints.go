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
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/vestryhq/vestry/cms"
)

func (a *App) registerCommands() {
	a.commands = map[string]Endpoint{
		"add-photos": {
			Handler:     a.server.handleAddPhotos,
			Method:      http.MethodPost,
			ContentType: Multipart,
			Help:        "Adds photo files to an upload session; repeat --files with a path for each file.",
		},
		"add-upload-tag": {
			Handler: a.server.handleAddUploadTag,
			Method:  http.MethodPost,
			Payload: sessionTagPayload{},
			Help:    "Adds a tag shared by all photos in an upload session.",
		},
		"build-info": {
			Handler: a.server.handleBuildInfo,
			Method:  http.MethodGet,
			Help:    "Displays information about this build.",
		},
		"calendar": {
			Handler:     a.server.handleCalendar,
			Method:      methodQuery,
			Payload:     calendarPayload{},
			ContentType: JSON,
			Help:        "Returns the event calendar grid for a month.",
		},
		"close-upload-session": {
			Handler: a.server.handleCloseUploadSession,
			Method:  http.MethodPost,
			Payload: sessionPayload{},
			Help:    "Discards an upload session and all its drafts.",
		},
		"config": {
			Handler: a.server.handleConfig,
			Method:  http.MethodGet,
			Help:    "Displays the current configuration.",
		},
		"create-document": {
			Handler:     a.server.handleCreateDocument,
			Method:      http.MethodPost,
			ContentType: Multipart,
			Help:        "Uploads files and creates a document entry; repeat --files with a path for each file.",
		},
		"create-event": {
			Handler: a.server.handleCreateEvent,
			Method:  http.MethodPost,
			Payload: cms.Event{},
			Help:    "Creates a calendar event.",
		},
		"delete-document": {
			Handler: a.server.handleDeleteDocument,
			Method:  http.MethodDelete,
			Payload: idPayload{},
			Help:    "Deletes a document from the archive.",
		},
		"delete-event": {
			Handler: a.server.handleDeleteEvent,
			Method:  http.MethodDelete,
			Payload: idPayload{},
			Help:    "Deletes a calendar event.",
		},
		"delete-photos": {
			Handler: a.server.handleDeletePhotos,
			Method:  http.MethodDelete,
			Payload: idsPayload{},
			Help:    "Deletes photos from the gallery.",
		},
		"document": {
			Handler: a.server.handleGetDocument,
			Method:  http.MethodPost,
			Payload: idPayload{},
			Help:    "Returns a single document.",
		},
		"document-tags": {
			Handler: a.server.handleDocumentTags,
			Method:  http.MethodGet,
			Help:    "Returns all tags in use by documents.",
		},
		"documents": {
			Handler:     a.server.handleSearchDocuments,
			Method:      methodQuery,
			Payload:     cms.SearchParams{},
			ContentType: JSON,
			Help:        "Finds and filters documents in the archive.",
		},
		"events": {
			Handler:     a.server.handleEvents,
			Method:      methodQuery,
			Payload:     eventRangePayload{},
			ContentType: JSON,
			Help:        "Returns events in a date range.",
		},
		"logs": {
			Handler: a.server.handleLogs,
			Method:  http.MethodGet,
			Help:    "Initiates a WebSocket connection to send logs.",
		},
		"new-upload-session": {
			Handler: a.server.handleNewUploadSession,
			Method:  http.MethodPost,
			Payload: "",
			Help:    "Begins a new photo upload session.",
		},
		"photo": {
			Handler: a.server.handleGetPhoto,
			Method:  http.MethodPost,
			Payload: idPayload{},
			Help:    "Returns a single photo.",
		},
		"photo-tags": {
			Handler: a.server.handlePhotoTags,
			Method:  http.MethodGet,
			Help:    "Returns all tags in use by photos.",
		},
		"photos": {
			Handler:     a.server.handleSearchPhotos,
			Method:      methodQuery,
			Payload:     cms.SearchParams{},
			ContentType: JSON,
			Help:        "Finds and filters photos in the gallery.",
		},
		"reextract-photo-draft": {
			Handler: a.server.handleReextractPhotoDraft,
			Method:  http.MethodPost,
			Payload: draftPayload{},
			Help:    "Reseeds a draft's capture time from its file's metadata.",
		},
		"remove-photo-draft": {
			Handler: a.server.handleRemovePhotoDraft,
			Method:  http.MethodPost,
			Payload: draftPayload{},
			Help:    "Removes a photo draft from an upload session.",
		},
		"remove-upload-tag": {
			Handler: a.server.handleRemoveUploadTag,
			Method:  http.MethodPost,
			Payload: sessionTagPayload{},
			Help:    "Removes a shared tag from an upload session.",
		},
		"set-upload-field": {
			Handler: a.server.handleSetUploadField,
			Method:  http.MethodPost,
			Payload: sharedFieldPayload{},
			Help:    "Sets a field shared by all photos in an upload session.",
		},
		"submit-upload": {
			Handler: a.server.handleSubmitUpload,
			Method:  http.MethodPost,
			Payload: sessionPayload{},
			Help:    "Uploads the session's photos and creates gallery entries.",
		},
		"update-photo": {
			Handler: a.server.handleUpdatePhoto,
			Method:  http.MethodPost,
			Payload: updatePhotoPayload{},
			Help:    "Updates a photo's metadata and tags.",
		},
		"update-document": {
			Handler: a.server.handleUpdateDocument,
			Method:  http.MethodPost,
			Payload: updateDocumentPayload{},
			Help:    "Updates a document's metadata and tags.",
		},
		"update-photo-draft": {
			Handler: a.server.handleUpdatePhotoDraft,
			Method:  http.MethodPost,
			Payload: updateDraftPayload{},
			Help:    "Updates a field on a photo draft in an upload session.",
		},
		"upload-session": {
			Handler:     a.server.handleUploadSessionState,
			Method:      methodQuery,
			Payload:     sessionPayload{},
			ContentType: JSON,
			Help:        "Returns the current state of an upload session.",
		},
	}
}

type Endpoint struct {
	Method      string
	ContentType ContentType
	Payload     any
	Handler     handlerFunc
	Help        string
}

// GetContentType returns the Content-Type of the endpoint
// considering its default of JSON if method is POST, PUT, PATCH, or DELETE.
func (e Endpoint) GetContentType() ContentType {
	if e.ContentType == None && e.Payload != nil &&
		(e.Method == http.MethodPost || e.Method == http.MethodPut ||
			e.Method == http.MethodPatch || e.Method == http.MethodDelete ||
			e.Method == methodQuery) {
		return JSON
	}
	return e.ContentType
}

// GET but officially supports a request body.
const methodQuery = "QUERY"

type ctxKey string

var ctxKeyPayload ctxKey = "payload"

func (e Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) error {
	switch e.GetContentType() {
	case JSON:
		payload := reflect.New(reflect.TypeOf(e.Payload)).Interface()
		if r.ContentLength > 0 {
			err := json.NewDecoder(r.Body).Decode(&payload)
			if err != nil {
				return Error{
					Err:        err,
					HTTPStatus: http.StatusBadRequest,
					Log:        "decoding request body as JSON",
					Message:    "Invalid JSON in request body.",
				}
			}
		}
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyPayload, payload))
	case Form, Multipart, None:
		// the handler parses these bodies itself
	}

	return e.Handler(w, r)
}

func (a *App) CommandLineHelp() string {
	// alphabetize the commands list
	type commandEndpoint struct {
		command  string
		endpoint Endpoint
	}
	commands := make([]commandEndpoint, 0, len(a.commands))
	for command, endpoint := range a.commands {
		commands = append(commands, commandEndpoint{command, endpoint})
	}
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].command < commands[j].command
	})

	var sb strings.Builder

	sb.WriteString(`Vestry is the administration console for a parish website: it manages
the document archive, the photo gallery, and the event calendar.

It consists of a server, command line client, and web client. Vestry can be used via a web
page / GUI, command line (CLI), or HTTP JSON API. The CLI and API have symmetric commands
(inputs and outputs).

Usage:
  vestry [command] [args...]

Examples:
  $ vestry
  $ vestry serve
  $ vestry photos --title ... --tags ...

Available Commands:`)

	for _, pair := range commands {
		sb.WriteString("\n  ")
		sb.WriteString(pair.command)

		if pair.endpoint.Payload != nil {
			val := reflect.ValueOf(pair.endpoint.Payload)
			kind := val.Kind()

			switch kind { //nolint:exhaustive
			case reflect.Slice:
				sb.WriteString(" <")
				sb.WriteString(val.Type().Elem().String())
				sb.WriteString("...>")
			case reflect.Struct:
				fields := nestedFields(pair.endpoint.Payload)

				for i, field := range fields {
					jsonStructTag := field.Tag.Get("json")
					if jsonStructTag == "" {
						continue
					}
					dataType := field.Type
					argName, omitEmpty, cut := strings.Cut(jsonStructTag, ",")
					if argName == "-" {
						continue
					}
					if argName != "" {
						argName = strings.ReplaceAll(argName, "_", "-")
					}
					if i > 0 && i%3 == 0 {
						sb.WriteString("\n\t\t")
					}
					optional := cut && omitEmpty == "omitempty"
					if optional {
						sb.WriteString(fmt.Sprintf(" [--%s <%s>]", argName, dataType))
					} else {
						sb.WriteString(fmt.Sprintf(" --%s <%s>", argName, dataType))
					}
				}
			default:
				sb.WriteString(" <")
				sb.WriteString(kind.String())
				sb.WriteRune('>')
			}
		}

		sb.WriteString("\n      ")
		sb.WriteString(pair.endpoint.Help)
		sb.WriteRune('\n')
	}

	return sb.String()
}

// nestedFields flattens the struct fields from embedded structs of thing,
// which must be a struct.
func nestedFields(thing any) []reflect.StructField {
	val := reflect.ValueOf(thing)
	typ := reflect.TypeOf(thing)

	var fields []reflect.StructField

	for i := range typ.NumField() {
		typf := typ.Field(i)
		valf := val.Field(i)

		if valf.Kind() == reflect.Struct && typf.Anonymous {
			fields = append(fields, nestedFields(valf.Interface())...)
		} else {
			fields = append(fields, typf)
		}
	}

	return fields
}

// ContentType is an HTTP Content-Type value.
type ContentType string

// Content types that are supported.
const (
	JSON      ContentType = "application/json"
	Form      ContentType = "application/x-www-form-urlencoded"
	Multipart ContentType = "multipart/form-data"
	None      ContentType = ""
)

const apiBasePath = "/api/"
