//go:build !unix

package transport

import (
	"errors"
	"os"
)

func classifyBindError(err error) BindErrorKind {
	if errors.Is(err, os.ErrPermission) {
		return PermissionDenied
	}
	return BindOther
}
