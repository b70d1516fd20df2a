package api

import (
	"log/slog"
	"mime"
	"net/http"

	"github.com/goccy/go-json"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// isJSON reports whether the request body is JSON rather than a form post.
func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// decodeBody fills dst from a JSON body, or from the form fields named in
// form (field name to target) for urlencoded and multipart posts.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, form map[string]*string) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if isJSON(r) {
		return json.NewDecoder(r.Body).Decode(dst)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	for name, target := range form {
		*target = r.PostForm.Get(name)
	}
	return nil
}
