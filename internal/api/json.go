package api

import (
	"encoding/json"
	"net/http"

	"spot-exchange/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps a returned error through apperr.HTTPStatus, the
// generalized replacement for the teacher's strings.Contains dispatch
// in handleOrderByID.
func writeErr(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
