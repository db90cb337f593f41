// Package apierr defines the error taxonomy shared by every core component.
// Errors are sentinel values tagged with a Kind so that a caller-supplied
// HTTP binding can map Kind to a status class without this package importing
// net/http.
package apierr

import "errors"

// Kind classifies an error for transport-layer mapping.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindNotFound       Kind = "not_found"
	KindForbidden      Kind = "forbidden"
	KindCapacity       Kind = "capacity"
	KindAuthentication Kind = "authentication"
	KindInfrastructure Kind = "infrastructure"
)

// Error is a taxonomy-tagged error. Code is the stable machine-readable
// string named throughout the configuration surface (e.g. "invalid_tenant_id").
type Error struct {
	Kind Kind
	Code string
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.err }

// Is matches on Code so errors.Is(err, apierr.ErrTenantNotFound) works even
// when the returned error has been wrapped with additional context.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

// Wrap attaches additional context to an existing taxonomy error while
// keeping it matchable via errors.Is.
func Wrap(e *Error, err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, msg: e.msg, err: err}
}

// Validation errors (400-class).
var (
	ErrInvalidTenantID     = newErr(KindValidation, "invalid_tenant_id", "invalid tenant id")
	ErrInvalidRequest      = newErr(KindValidation, "invalid_request", "invalid request")
	ErrInvalidScopeFormat  = newErr(KindValidation, "invalid_scope_format", "invalid scope format")
	ErrInvalidRedirectURI  = newErr(KindValidation, "invalid_redirect_uri", "invalid redirect uri")
)

// Conflict errors (409-class).
var (
	ErrDomainAlreadyExists    = newErr(KindConflict, "domain_already_exists", "domain already exists")
	ErrClientNameConflict     = newErr(KindConflict, "client_name_conflict", "client name already exists for tenant")
	ErrRoleAlreadyAssigned    = newErr(KindConflict, "role_already_assigned", "role already assigned to user")
	ErrIdentityAlreadyLinked  = newErr(KindConflict, "identity_already_linked", "identity already linked")
)

// Not-found errors (404-class).
var (
	ErrTenantNotFound      = newErr(KindNotFound, "tenant_not_found", "tenant not found")
	ErrClientNotFound      = newErr(KindNotFound, "client_not_found", "client not found")
	ErrRoleNotFound        = newErr(KindNotFound, "role_not_found", "role not found")
	ErrPermissionNotFound  = newErr(KindNotFound, "permission_not_found", "permission not found")
	ErrAccountNotFound     = newErr(KindNotFound, "account_not_found", "account not found")
	ErrSessionNotFound     = newErr(KindNotFound, "session_not_found", "session not found")
)

// Forbidden errors (403-class).
var (
	ErrTenantSuspended          = newErr(KindForbidden, "tenant_suspended", "tenant is suspended")
	ErrTenantDeleted            = newErr(KindForbidden, "tenant_deleted", "tenant is deleted")
	ErrCannotDeleteSystemRole   = newErr(KindForbidden, "cannot_delete_system_role", "cannot delete system role")
	ErrCannotModifySystemRole   = newErr(KindForbidden, "cannot_modify_system_role", "cannot modify system role")
	ErrPrivilegeEscalationDenied = newErr(KindForbidden, "privilege_escalation_denied", "privilege escalation denied")
	ErrSelfAssignmentDenied     = newErr(KindForbidden, "self_assignment_denied", "self assignment denied")
)

// Capacity errors (400-class, explicit code).
var (
	ErrMaxAccountsExceeded = newErr(KindCapacity, "max_accounts_exceeded", "maximum accounts per session exceeded")
)

// Authentication errors (401-class, OAuth2-shaped).
var (
	ErrMissingToken  = newErr(KindAuthentication, "missing_token", "missing token")
	ErrInvalidToken  = newErr(KindAuthentication, "invalid_token", "invalid token")
	ErrInvalidClient = newErr(KindAuthentication, "invalid_client", "invalid client")
	ErrClientDisabled = newErr(KindAuthentication, "client_disabled", "client is disabled")
)

// Infrastructure errors (5xx-equivalent; read paths may degrade instead of
// propagating these, per §4.9/§7).
var (
	ErrCircuitOpen    = newErr(KindInfrastructure, "circuit_open", "circuit breaker is open")
	ErrRetryExhausted = newErr(KindInfrastructure, "retry_exhausted", "retry attempts exhausted")
)

// OAuthBody renders the {error, error_description} shape required for
// authentication-kind errors on the wire.
func OAuthBody(e *Error) map[string]string {
	return map[string]string{
		"error":             e.Code,
		"error_description": e.Error(),
	}
}
