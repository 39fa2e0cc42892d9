package donation

import "errors"

// Errors returned by Contract and Resolver. They wrap the underlying cause,
// so test with errors.Is.
var (
	// ErrRemoteQuery means a read-only view or lookup failed upstream.
	ErrRemoteQuery = errors.New("remote query failed")

	// ErrRemoteCall means a state-changing call failed or was rejected.
	ErrRemoteCall = errors.New("remote call failed")

	// ErrAmountParse means a human NEAR amount could not be converted.
	ErrAmountParse = errors.New("invalid donation amount")

	// ErrTransactionNotFound means the transaction id is unknown upstream.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAmbiguousResult means the transaction produced no single numeric value.
	ErrAmbiguousResult = errors.New("transaction result is not a single amount")
)
