package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
)

// maxBodyBytes caps request bodies; the largest documents are job postings.
const maxBodyBytes = 1 << 20

// envelope is the response shape shared by every endpoint.
type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	Field      string      `json:"field,omitempty"`
	Count      *int        `json:"count,omitempty"`
	Total      *int        `json:"total,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type pagination struct {
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
	Next  *pageRef `json:"next,omitempty"`
	Prev  *pageRef `json:"prev,omitempty"`
}

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is required")
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// writeData wraps data in a success envelope.
func writeData(w http.ResponseWriter, code int, data any) {
	WriteJSON(w, code, envelope{Success: true, Data: data})
}

// writeMessage writes a success envelope carrying a message and optional data.
func writeMessage(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

// writeCount writes a success envelope for bulk operations.
func writeCount(w http.ResponseWriter, message string, n int) {
	WriteJSON(w, http.StatusOK, envelope{Success: true, Message: message, Count: &n})
}

// writeList writes an unpaged collection with its length.
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	WriteJSON(w, http.StatusOK, envelope{Success: true, Data: items, Count: &n})
}

// writePage writes one page with count, total and next/prev descriptors.
func writePage[T any](w http.ResponseWriter, res model.PageResult[T]) {
	items := res.Items
	if items == nil {
		items = []T{}
	}
	count, total := len(items), res.Total
	p := &pagination{Page: res.Page.Page, Limit: res.Page.Limit}
	if res.HasNext() {
		p.Next = &pageRef{Page: res.Page.Page + 1, Limit: res.Page.Limit}
	}
	if res.HasPrev() {
		p.Prev = &pageRef{Page: res.Page.Page - 1, Limit: res.Page.Limit}
	}
	WriteJSON(w, http.StatusOK, envelope{
		Success:    true,
		Data:       items,
		Count:      &count,
		Total:      &total,
		Pagination: p,
	})
}

// ErrorParams groups parameters for WriteError to adhere to the ≤3 params guideline.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

// WriteError writes a failure envelope using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, envelope{Success: false, Error: p.ErrCode, Message: p.Err.Error(), Field: p.Field})
}
