package rest

import (
	"log/slog"
	"net/http"

	"teamtask/tasks/core"
	"teamtask/tasks/pkg/res"
)

var kindStatus = map[string]int{
	core.KindUnauthorized: http.StatusUnauthorized,
	core.KindForbidden:    http.StatusForbidden,
	core.KindNotFound:     http.StatusNotFound,
	core.KindValidation:   http.StatusBadRequest,
	core.KindConflict:     http.StatusConflict,
	core.KindStore:        http.StatusInternalServerError,
	core.KindInternal:     http.StatusInternalServerError,
}

func WriteErr(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := core.Kind(err)
	code := kindStatus[kind]

	msg := err.Error()
	if code >= http.StatusInternalServerError {
		log.Error("request failed", "kind", kind, "error", err)
		msg = "internal error"
	}
	res.Error(w, msg, kind, code)
}

// BadRequest reports malformed input detected before the service is called.
func BadRequest(w http.ResponseWriter, msg string) {
	res.Error(w, msg, core.KindValidation, http.StatusBadRequest)
}
