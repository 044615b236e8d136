package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrLoanNotFound        = errors.New("loan not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrClientAlreadyExists = errors.New("client already exists")
	ErrLoanLimitExceeded   = errors.New("loan amount exceeds client limit")
	ErrLoanAlreadyDecided  = errors.New("loan already decided")
	ErrInvalidPhone        = errors.New("invalid phone number")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnauthorized        = errors.New("unauthorized")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeLoanNotFound        = "LOAN_NOT_FOUND"
	ErrCodeClientNotFound      = "CLIENT_NOT_FOUND"
	ErrCodeClientAlreadyExists = "CLIENT_ALREADY_EXISTS"
	ErrCodeLoanLimitExceeded   = "LOAN_LIMIT_EXCEEDED"
	ErrCodeLoanAlreadyDecided  = "LOAN_ALREADY_DECIDED"
	ErrCodeInvalidPhone        = "INVALID_PHONE"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
	ErrCodeCacheError          = "CACHE_ERROR"
)

// CodeOf returns the code of the first BusinessError in err's chain.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Wrap common errors with business context
func WrapLoanNotFound(loanID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %d not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapClientNotFound(clientID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeClientNotFound,
		fmt.Sprintf("Client with ID %d not found", clientID),
		ErrClientNotFound,
	)
}

func WrapClientAlreadyExists() *BusinessError {
	return NewBusinessError(
		ErrCodeClientAlreadyExists,
		"A client with this phone number or ID number is already enrolled",
		ErrClientAlreadyExists,
	)
}

func WrapLoanLimitExceeded(amount, limit string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanLimitExceeded,
		fmt.Sprintf("Loan amount %s exceeds the client's limit of %s", amount, limit),
		ErrLoanLimitExceeded,
	)
}

func WrapLoanAlreadyDecided(loanID int64, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanAlreadyDecided,
		fmt.Sprintf("Loan with ID %d is already %s", loanID, status),
		ErrLoanAlreadyDecided,
	)
}

func WrapInvalidPhone(phone string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidPhone,
		fmt.Sprintf("Invalid phone number: %s", phone),
		ErrInvalidPhone,
	)
}

func WrapInvalidRequest(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidRequest,
		"request validation failed",
		errors.Join(ErrInvalidRequest, err),
	)
}

func WrapUnauthorized() *BusinessError {
	return NewBusinessError(
		ErrCodeUnauthorized,
		"missing or invalid credentials",
		ErrUnauthorized,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
