package errors

import (
	"licensebot/lib/api/response"
	"licensebot/lib/sl"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

func NotAllowed(log *slog.Logger) http.HandlerFunc {
	logger := log.With(sl.Module("http.handlers.errors"))
	return func(w http.ResponseWriter, r *http.Request) {
		logger.With(
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		).Debug("method not allowed")

		render.Status(r, http.StatusMethodNotAllowed)
		render.JSON(w, r, response.Error("Method not allowed"))
	}
}
