package grants

import (
	"context"
	"licensebot/entity"
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
	MemberGrants(ctx context.Context, groupID, memberID int64) ([]*entity.Grant, error)
	RevokeGrant(ctx context.Context, groupID, memberID, roleID int64) error
}

func pathIDs(r *http.Request, names ...string) ([]int64, bool) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
		if err != nil || id == 0 {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func List(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.With(
			sl.Module("http.handlers.grants"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ids, ok := pathIDs(r, "group", "member")
		if !ok {
			failure.BadRequest(w, r, "Invalid group or member id")
			return
		}

		list, err := handler.MemberGrants(r.Context(), ids[0], ids[1])
		if err != nil {
			failure.Render(w, r, log.With(sl.Group(ids[0]), sl.Member(ids[1])), err)
			return
		}
		render.JSON(w, r, response.List(list))
	}
}

// Revoke removes the member's role and then the stored grant.
func Revoke(logger *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.With(
			sl.Module("http.handlers.grants"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ids, ok := pathIDs(r, "group", "member", "role")
		if !ok {
			failure.BadRequest(w, r, "Invalid group, member or role id")
			return
		}

		err := handler.RevokeGrant(r.Context(), ids[0], ids[1], ids[2])
		if err != nil {
			failure.Render(w, r, log.With(sl.Group(ids[0]), sl.Member(ids[1]), sl.Role(ids[2])), err)
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}
