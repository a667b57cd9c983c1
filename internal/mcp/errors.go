// Package mcp exposes semsearch to AI clients over the Model Context
// Protocol.
package mcp

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/Aman-CERP/semsearch/internal/errors"
)

// MCP error codes. Negative values below -32000 are server defined.
const (
	ErrCodeIndexUnavailable = -32001
	ErrCodeEmbeddingFailed  = -32002
	ErrCodeTimeout          = -32003
	ErrCodeFileNotFound     = -32004
	ErrCodeFileTooLarge     = -32005
	ErrCodeIndexLocked      = -32006

	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is returned from tool handlers. The SDK reports it to the
// client as a tool result with IsError set.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError reports bad tool arguments.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts err to an MCPError. Application errors keep their
// message and suggestion.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if stderrors.As(err, &mcpErr) {
		return mcpErr
	}

	if ae, ok := errors.As(err); ok {
		return mapAppError(ae)
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case stderrors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

func mapAppError(ae *errors.AppError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ae.Message, ae.Suggestion)
	}

	code := ErrCodeInternalError
	switch ae.Code {
	case errors.ErrCodeFileNotFound:
		code = ErrCodeFileNotFound
	case errors.ErrCodeFileTooLarge:
		code = ErrCodeFileTooLarge
	case errors.ErrCodeCorruptIndex, errors.ErrCodeStoreFailed:
		code = ErrCodeIndexUnavailable
	case errors.ErrCodeIndexLocked:
		code = ErrCodeIndexLocked
	case errors.ErrCodeEmbeddingFailed:
		code = ErrCodeEmbeddingFailed
	default:
		switch ae.Category {
		case errors.CategoryValidation:
			code = ErrCodeInvalidParams
		case errors.CategoryNetwork:
			code = ErrCodeTimeout
		}
	}
	return &MCPError{Code: code, Message: message}
}
