package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig 所有配置错误均匹配该哨兵
var ErrInvalidConfig = errors.New("invalid config")

// Error 配置错误（启动前致命）
type Error struct {
	// Field 出错字段，形如 "transport.port"
	Field string
	// Reason 原因描述
	Reason string
}

// NewError 构造配置错误
func NewError(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Is 使 errors.Is(err, ErrInvalidConfig) 成立
func (e *Error) Is(target error) bool {
	return target == ErrInvalidConfig
}
