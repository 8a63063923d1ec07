package worker

import (
	"github.com/CeoatNorthstar/qhub-auth/internal/service"
)

// StartAuditWorker registers the audit log handlers.
func StartAuditWorker(audit *service.AuditService) {
	if audit == nil {
		return
	}
	audit.RegisterHandlers()
}
