package api

import (
	"encoding/json"
	"net/http"

	"bookingsvc/internal/models"
)

type validationDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"detail": message})
}

func writeValidationError(w http.ResponseWriter, verr *models.ValidationError) {
	details := make([]validationDetail, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		loc := []string{"body"}
		if f.Field != "body" {
			loc = append(loc, f.Field)
		}
		details = append(details, validationDetail{Loc: loc, Msg: f.Message, Type: "value_error"})
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": details})
}
