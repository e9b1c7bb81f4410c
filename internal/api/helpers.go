package api

import (
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strconv"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
    Error     string `json:"error"`
    Message   string `json:"message,omitempty"`
    Retryable *bool  `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
    writeJSON(w, status, errorResponse{Error: code})
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
    writeJSON(w, status, errorResponse{Error: code, Message: message})
}

var errTrailingData = errors.New("unexpected data after JSON body")

// decodeJSON reads exactly one JSON object with no unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
    dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
    dec.DisallowUnknownFields()
    if err := dec.Decode(dst); err != nil {
        return err
    }
    if err := dec.Decode(&struct{}{}); err != io.EOF {
        return errTrailingData
    }
    return nil
}

func queryLimit(r *http.Request) int {
    raw := r.URL.Query().Get("limit")
    if raw == "" {
        return 0
    }
    n, err := strconv.Atoi(raw)
    if err != nil || n < 0 {
        return 0
    }
    return n
}
