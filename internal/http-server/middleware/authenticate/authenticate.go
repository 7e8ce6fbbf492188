package authenticate

import (
	"errors"
	"licensebot/entity"
	"licensebot/lib/api/cont"
	"licensebot/lib/api/response"
	"licensebot/lib/sl"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

var (
	errNoHeader = errors.New("authorization header not found")
	errNoBearer = errors.New("bearer token not found")
)

type Authenticate interface {
	AuthenticateByToken(token string) (*entity.Operator, error)
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoHeader
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", errNoBearer
	}
	return token, nil
}

func remoteAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}

// New logs every API request and admits only callers presenting a known
// operator token. The operator is put into the request context for audit.
func New(log *slog.Logger, auth Authenticate) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.authenticate")
	log.With(mod).Info("authenticate middleware initialized")

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			id := middleware.GetReqID(r.Context())
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			operator := ""
			var failure error
			defer func() {
				logger := log.With(
					mod,
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", remoteAddr(r)),
					slog.String("request_id", id),
					slog.Int("status", ww.Status()),
					slog.Int("size", ww.BytesWritten()),
					slog.Float64("duration", time.Since(started).Seconds()),
				)
				if failure != nil {
					logger.With(sl.Err(failure)).Warn("request rejected")
					return
				}
				logger.With(slog.String("operator", operator)).Info("incoming request")
			}()

			token, err := bearerToken(r)
			if err != nil {
				failure = err
				unauthorized(ww, r, "Unauthorized: "+err.Error())
				return
			}
			if auth == nil {
				failure = errors.New("authentication not enabled")
				unauthorized(ww, r, "Unauthorized: authentication not enabled")
				return
			}
			op, err := auth.AuthenticateByToken(token)
			if err != nil {
				failure = err
				log.With(mod, sl.Secret("token", token)).Debug("unknown operator token")
				unauthorized(ww, r, "Unauthorized: unknown token")
				return
			}
			operator = op.Name

			ww.Header().Set("X-Request-ID", id)
			ww.Header().Set("X-Operator", op.Name)
			next.ServeHTTP(ww, r.WithContext(cont.PutOperator(r.Context(), op)))
		}
		return http.HandlerFunc(fn)
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.Error(message))
}
