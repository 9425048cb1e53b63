package errors

var (
	ErrValidation = &DomainError{
		Code:    "VALIDATION_ERROR",
		Message: "invalid request",
	}
	ErrInsufficientFunds = &DomainError{
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient wallet balance",
	}
	ErrMissingPayoutDestination = &DomainError{
		Code:    "MISSING_PAYOUT_DESTINATION",
		Message: "no payout bank account on file",
	}
	ErrProviderUnavailable = &DomainError{
		Code:    "PROVIDER_UNAVAILABLE",
		Message: "payment provider is unavailable, please retry",
	}
	ErrTimeout = &DomainError{
		Code:    "PROVIDER_TIMEOUT",
		Message: "payment provider timed out, please retry",
	}
	ErrProviderRejected = &DomainError{
		Code:    "PROVIDER_REJECTED",
		Message: "payment provider rejected the request",
	}
	ErrInvalidResponse = &DomainError{
		Code:    "INVALID_PROVIDER_RESPONSE",
		Message: "payment provider returned an unexpected response",
	}
	ErrInvalidSignature = &DomainError{
		Code:    "INVALID_SIGNATURE",
		Message: "invalid webhook signature",
	}
	ErrInconsistentState = &DomainError{
		Code:    "INCONSISTENT_STATE",
		Message: "settlement is held for manual reconciliation",
	}
	ErrSettlementNotFound = &DomainError{
		Code:    "SETTLEMENT_NOT_FOUND",
		Message: "settlement not found",
	}
	ErrUserNotFound = &DomainError{
		Code:    "USER_NOT_FOUND",
		Message: "user not found",
	}
	ErrDuplicateReference = &DomainError{
		Code:    "DUPLICATE_REFERENCE",
		Message: "reference already exists",
	}
	ErrUnsupportedProvider = &DomainError{
		Code:    "UNSUPPORTED_PROVIDER",
		Message: "unsupported payment provider",
	}
	ErrInvalidTransition = &DomainError{
		Code:    "INVALID_TRANSITION",
		Message: "settlement cannot move to the requested status",
	}
	ErrTransferNotFound = &DomainError{
		Code:    "TRANSFER_NOT_FOUND",
		Message: "provider has no record of this transfer",
	}
	ErrForbidden = &DomainError{
		Code:    "FORBIDDEN",
		Message: "insufficient permissions",
	}
)
