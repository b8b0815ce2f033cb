package service

import "errors"

var (
	ErrEmptyCart              = errors.New("cart is empty, nothing to checkout")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrUploadValidation       = errors.New("invalid receipt upload")
	ErrNotFound               = errors.New("not found")
	ErrDuplicateRequest       = errors.New("duplicate request")
)
