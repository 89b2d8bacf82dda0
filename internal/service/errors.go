package service

import (
	"errors"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/database"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/repository"
)

// translate maps store errors onto the engine's error kinds. AppErrors pass
// through untouched. Infrastructure failures are logged with op and the
// given key/value context before becoming a generic StoreError.
func translate(log *logger.Logger, op string, err error, kv ...any) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case database.IsLockConflict(err):
		log.Warn("lock contention", append([]any{"op", op, "error", err}, kv...)...)
		return apperror.Conflict("concurrent update, retry the request").WithDetails(map[string]any{"op": op})
	case errors.Is(err, repository.ErrConflict):
		return apperror.Conflict("concurrent update, retry the request").WithDetails(map[string]any{"op": op})
	case errors.Is(err, repository.ErrForbidden):
		return apperror.Forbidden("not allowed")
	}
	log.Error("store failure", append([]any{"op", op, "error", err}, kv...)...)
	return apperror.Store(op, err)
}

func isNotFound(err error) bool { return errors.Is(err, repository.ErrNotFound) }
