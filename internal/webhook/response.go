package webhook

import (
	"encoding/json"
	"net/http"

	logx "mediabot/pkg/logx"
)

// Envelope is the JSON shape of every webhook response.
type Envelope struct {
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, env Envelope, log logx.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	env.Success = status < 400
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Warn("write response failed", logx.Err(err))
	}
}

func success(w http.ResponseWriter, data any, log logx.Logger) {
	writeJSON(w, http.StatusOK, Envelope{Data: data}, log)
}

func fail(w http.ResponseWriter, status int, msg string, log logx.Logger) {
	writeJSON(w, status, Envelope{Error: msg}, log)
}
