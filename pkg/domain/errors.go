package domain

import "errors"

// ErrMissingService is returned when a required collaborator is not supplied to the engine.
var ErrMissingService = errors.New("required service is missing")

// ErrCheckoutDenied is returned when the document cannot be checked out for editing.
// A denial raised while a unit is replaying cancels the replay's transaction.
var ErrCheckoutDenied = errors.New("checkout denied")

// ErrUnbalancedTransaction reports mismatched transaction open/close notifications.
var ErrUnbalancedTransaction = errors.New("unbalanced transaction")

// ErrComponentNotFound is returned when a component name cannot be resolved.
var ErrComponentNotFound = errors.New("component not found")

// ErrDuplicateName is returned when a component name is already taken.
var ErrDuplicateName = errors.New("component name already in use")
