package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	checker "github.com/NordCoder/Deadswitch/internal/services/inactivity-checker"
)

type checkInactiveResponse struct {
	Success bool `json:"success"`
	*checker.Summary
}

func (s *Server) checkInactive(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Job.Run(r.Context())
	switch {
	case errors.Is(err, checker.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error("inactivity check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, checkInactiveResponse{Success: true, Summary: sum})
}
