package logging

import (
	"errors"
	"os"
	"syscall"

	"go.uber.org/zap"
)

type impl struct {
	*zap.SugaredLogger
}

func (imp *impl) Sublogger(subname string) Logger {
	return &impl{imp.SugaredLogger.Named(subname)}
}

// Sync flushes buffered entries. Syncing a terminal returns EINVAL or ENOTTY on some
// platforms, which is not an error worth reporting.
func (imp *impl) Sync() error {
	err := imp.SugaredLogger.Sync()
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && (errors.Is(pathErr.Err, syscall.EINVAL) || errors.Is(pathErr.Err, syscall.ENOTTY)) {
		return nil
	}
	return err
}
