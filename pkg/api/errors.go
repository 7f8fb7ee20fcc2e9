package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/entities"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/policy"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

var errInvalidPage = errors.New("limit must be between 1 and 500 and offset must not be negative")

// writeError maps a domain error onto its generic response. Unexpected errors
// are logged and answered with a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		httputil.WriteNotFound(w)
	case errors.Is(err, policy.ErrForbidden),
		errors.Is(err, tenant.ErrTenantMismatch),
		errors.Is(err, tenant.ErrNoTenantContext),
		errors.Is(err, tenant.ErrBypassReasonRequired),
		errors.Is(err, tenant.ErrTenantRequired):
		httputil.WriteForbidden(w, httputil.MsgForbidden)
	case errors.Is(err, entities.ErrInvalid):
		httputil.WriteBadRequest(w, validationMessage(err))
	case errors.Is(err, errInvalidPage), errors.Is(err, tenant.ErrUnknownColumn):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, entities.ErrInvalidTransition):
		httputil.WriteErrorMessage(w, http.StatusConflict, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		httputil.WriteInternalError(w)
	}
}

// validationMessage flattens an errors.Join of ErrInvalid and its detail
func validationMessage(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", ": ")
}
