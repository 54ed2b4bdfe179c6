package utils

import (
	"encoding/json"
	"net/http"
)

// Stable messages for the error taxonomy. Handlers pick the status code,
// these keep the wording consistent across endpoints.
const (
	MsgNotFound    = "Not Found"
	MsgForbidden   = "Forbidden"
	MsgServerError = "Internal Server Error"
	MsgTooMany     = "Too many requests, please try again later"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// GetStringValue returns the value of a nullable string pointer or empty string if nil
func GetStringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
