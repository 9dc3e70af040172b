package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrProposalNotPending = errors.New("proposal is not pending")
	ErrSelfReference      = errors.New("edge cannot reference the same node on both ends")
	ErrTransactionAborted = errors.New("transaction aborted")
)
