package transport

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/maximiza/internal/forms"
	"github.com/pitabwire/maximiza/internal/guard"
	"github.com/pitabwire/maximiza/internal/metadata"
	"github.com/pitabwire/maximiza/internal/observability"
	"github.com/pitabwire/maximiza/model"
)

// handleLogin validates credentials, exchanges them with the backend and
// opens a session. The session token is returned in the body and set as
// an HttpOnly cookie.
func handleLogin(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := observability.LoggerFrom(r.Context(), deps.logger())

		raw, err := readBody(r)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		var form forms.LoginForm
		if err := json.Unmarshal(raw, &form); err != nil {
			writeRequestError(w, r, model.NewBadRequestError("Invalid request body"))
			return
		}
		form.Email = strings.TrimSpace(form.Email)
		if errs := form.Validate(); len(errs) > 0 {
			deps.Metrics.RecordLogin("invalid")
			writeRequestError(w, r, model.NewValidationError(errs))
			return
		}

		login, err := deps.Backend.Login(r.Context(), form.Email, form.Senha)
		if err != nil {
			deps.Metrics.RecordLogin("rejected")
			logger.Warn("login rejected", zap.String("email", form.Email), zap.Error(err))
			writeRequestError(w, r, err)
			return
		}

		token, sess, err := deps.Sessions.Open(r.Context(), login)
		if err != nil {
			deps.Metrics.RecordLogin("error")
			logger.Error("session open failed", zap.Error(err))
			writeRequestError(w, r, err)
			return
		}
		deps.Metrics.RecordLogin("success")
		logger.Info("session opened",
			zap.String("session_id", sess.ID),
			zap.String("subject_id", sess.User.ID),
			zap.String("role", string(sess.Role())),
		)

		setSessionCookie(w, deps, token, sess.ExpiresAt)
		WriteJSON(w, http.StatusOK, model.LoginResponse{
			Token:     token,
			ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
			User:      sess.User,
			Redirect:  guard.LandingPath(sess.Principal()),
		})
	}
}

// handleLogout revokes the session and drops everything cached for it.
func handleLogout(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFrom(r.Context())
		if !ok {
			writeRequestError(w, r, model.NewUnauthorizedError("missing session"))
			return
		}
		if err := deps.Sessions.Close(r.Context(), sess.ID); err != nil {
			writeRequestError(w, r, err)
			return
		}
		if deps.Views != nil {
			deps.Views.UnmountSession(sess.ID)
		}
		if deps.Store != nil {
			deps.Store.Forget(sess.ID)
		}
		if deps.CapabilityResolver != nil {
			deps.CapabilityResolver.Invalidate(sess.ID)
		}
		observability.LoggerFrom(r.Context(), deps.logger()).Info("session closed")

		setSessionCookie(w, deps, "", time.Unix(0, 0))
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleMe returns the caller, refreshed from the backend.
func handleMe(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFrom(r.Context())
		rctx := model.RequestContextFrom(r.Context())
		if !ok || rctx == nil {
			writeRequestError(w, r, model.NewUnauthorizedError("missing session"))
			return
		}

		user, err := deps.Backend.Me(r.Context(), rctx)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		if user.Perfil != sess.User.Perfil || user.Municipio() != sess.MunicipioID() {
			// Everything derived from the old perfil or scope is stale.
			if deps.CapabilityResolver != nil {
				deps.CapabilityResolver.Invalidate(sess.ID)
			}
			if deps.Views != nil {
				deps.Views.UnmountSession(sess.ID)
			}
			if deps.Store != nil {
				deps.Store.Forget(sess.ID)
			}
		}
		sess.User = user
		if err := deps.Sessions.Update(r.Context(), sess); err != nil {
			writeRequestError(w, r, err)
			return
		}

		WriteJSON(w, http.StatusOK, model.SessionInfo{
			User:        user,
			Role:        sess.Role(),
			MunicipioID: sess.MunicipioID(),
			Workspace:   metadata.Workspace(sess.RequestContext(""), ""),
		})
	}
}

// handleAuthorizeRoute answers whether the caller may open a console route.
// It is public: without a valid session the caller is an anonymous visitor.
func handleAuthorizeRoute(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("path")
		if target == "" {
			writeRequestError(w, r, model.NewBadRequestError("path is required"))
			return
		}

		var p model.Principal
		if token, err := sessionToken(r, deps.Config.Session.CookieName); err == nil {
			if sess, err := deps.Sessions.Resolve(r.Context(), token); err == nil {
				p = sess.Principal()
			}
		}

		d := deps.Guard.Authorize(p, target)
		deps.Metrics.RecordGuardDecision(string(d.Outcome))
		observability.LoggerFrom(r.Context(), deps.logger()).Debug("route decision",
			zap.String("path", target),
			zap.String("outcome", string(d.Outcome)),
			zap.String("location", d.Location),
		)
		WriteJSON(w, http.StatusOK, d)
	}
}

func setSessionCookie(w http.ResponseWriter, deps Dependencies, value string, expires time.Time) {
	name := deps.Config.Session.CookieName
	if name == "" {
		return
	}
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   deps.Config.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}
