package domaincheck

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler serves v over the validation function's HTTP contract. Malformed
// bodies get 400; everything else gets 200 with a Result.
func Handler(v Validator, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil || req.Email == "" {
			writeResult(w, http.StatusBadRequest, &Result{Success: false, Message: "email is required"})
			return
		}

		result, err := v.ValidateEmailDomain(r.Context(), req.Email)
		if err != nil {
			logger.Error("validating email domain",
				slog.String("error", err.Error()),
			)
			writeResult(w, http.StatusInternalServerError, &Result{Success: false, Message: UnavailableMessage})
			return
		}

		writeResult(w, http.StatusOK, result)
	})
}

func writeResult(w http.ResponseWriter, status int, result *Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}
