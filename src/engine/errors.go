package engine

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotCancelable = errors.New("order already in a terminal state")
)
