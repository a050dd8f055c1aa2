package portalguard

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSessionRehydrated     = "session_rehydrated"
	auditEventSessionExpired        = "session_expired"
	auditEventSessionCorrupt        = "session_corrupt"
	auditEventAccessUnauthenticated = "access_unauthenticated"
	auditEventAccessForbidden       = "access_forbidden"
	auditEventInvalidRole           = "invalid_role"
	auditEventTokenRejected         = "token_rejected"
	auditEventBackendUnavailable    = "backend_unavailable"
)

// AuditErrorCode is the stable error label written into [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrSessionExpired  AuditErrorCode = "session_expired"
	auditErrCorruptSession  AuditErrorCode = "corrupt_session"
	auditErrUnauthenticated AuditErrorCode = "unauthenticated"
	auditErrForbidden       AuditErrorCode = "forbidden"
	auditErrInvalidRole     AuditErrorCode = "invalid_role"
	auditErrTokenRejected   AuditErrorCode = "token_rejected"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (g *Guard) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	user *UserRecord,
	loc Location,
	err error,
	metadataBuilder func() map[string]string,
) {
	if g == nil || g.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		ClientID:  clientIDFromContext(ctx),
		Path:      loc.Path,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if user != nil {
		event.UserID = user.ID
		event.Role = string(user.UserType)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	g.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrCorruptSession):
		return auditErrCorruptSession
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrInvalidRole):
		return auditErrInvalidRole
	case errors.Is(err, ErrTokenRejected):
		return auditErrTokenRejected
	case errors.Is(err, ErrCacheUnavailable),
		errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
