package service

import (
	"errors"

	"github.com/GoPolymarket/apiaudit/internal/pkg/apperrors"
)

var (
	// ErrRateLimited is the one audit-path error that blocks the business call.
	ErrRateLimited = apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil)

	ErrSettingsUnavailable = errors.New("audit settings unavailable")
	ErrAuditDisabled       = apperrors.New(apperrors.ErrAuditDisabled, "API Audit is disabled", nil)
	ErrArchiveUpload       = errors.New("archive upload failed")
	ErrAlertDispatch       = errors.New("alert dispatch failed")
)

// IsRateLimited matches any rate-limit rejection, including ones raised by
// limiter backends outside this package.
func IsRateLimited(err error) bool {
	return apperrors.IsType(err, apperrors.ErrRateLimited)
}
