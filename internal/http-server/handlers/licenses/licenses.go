package licenses

import (
	"context"
	"licensebot/entity"
	"licensebot/internal/entitlement"
	"licensebot/internal/http-server/handlers/failure"
	"licensebot/lib/api/response"
	"licensebot/lib/sl"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Core interface {
	GenerateLicenses(ctx context.Context, groupID int64, req *entity.GenerateRequest) (*entitlement.Batch, error)
	GroupLicenses(ctx context.Context, groupID, roleID int64, limit int) (*entity.Role, []*entity.License, error)
	DeleteLicense(ctx context.Context, groupID int64, code string) error
}

func requestLogger(logger *slog.Logger, r *http.Request) *slog.Logger {
	return logger.With(
		sl.Module("http.handlers.licenses"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("group", chi.URLParam(r, "group")),
	)
}

func groupID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "group"), 10, 64)
	return id, err == nil && id != 0
}

// List returns unused licenses of a role, the group default when ?role is absent.
func List(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(logger, r)

		group, ok := groupID(r)
		if !ok {
			failure.BadRequest(w, r, "Invalid group id")
			return
		}
		var roleID int64
		if v := r.URL.Query().Get("role"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				failure.BadRequest(w, r, "Invalid role id")
				return
			}
			roleID = id
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				failure.BadRequest(w, r, "Invalid limit")
				return
			}
			limit = n
		}

		_, list, err := handler.GroupLicenses(r.Context(), group, roleID, limit)
		if err != nil {
			failure.Render(w, r, log, err)
			return
		}
		render.JSON(w, r, response.List(list))
	}
}

// Generate issues a batch of licenses described by an entity.GenerateRequest body.
func Generate(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(logger, r)

		group, ok := groupID(r)
		if !ok {
			failure.BadRequest(w, r, "Invalid group id")
			return
		}
		var req entity.GenerateRequest
		if err := render.Bind(r, &req); err != nil {
			log.Debug("bad generate request", sl.Err(err))
			failure.BadRequest(w, r, "Invalid request: "+err.Error())
			return
		}

		batch, err := handler.GenerateLicenses(r.Context(), group, &req)
		if err != nil {
			failure.Render(w, r, log, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(batch))
	}
}

func Delete(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(logger, r)

		group, ok := groupID(r)
		if !ok {
			failure.BadRequest(w, r, "Invalid group id")
			return
		}
		code := chi.URLParam(r, "code")

		if err := handler.DeleteLicense(r.Context(), group, code); err != nil {
			failure.Render(w, r, log.With(sl.License(code)), err)
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}
