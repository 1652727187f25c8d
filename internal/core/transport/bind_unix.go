//go:build unix

package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

func classifyBindError(err error) BindErrorKind {
	switch {
	case errors.Is(err, unix.EADDRINUSE):
		return AddressInUse
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return PermissionDenied
	case errors.Is(err, unix.EAFNOSUPPORT), errors.Is(err, unix.EADDRNOTAVAIL),
		errors.Is(err, unix.EPROTONOSUPPORT):
		return UnsupportedFamily
	}
	return BindOther
}
