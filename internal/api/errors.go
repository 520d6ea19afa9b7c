// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response with the given status code.
// Every error body carries success:false so clients can branch on the
// payload without inspecting the status code.
func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"success": false, "error": err.Error()})
}
