package finisher

import "errors"

var (
	// ErrMalformed reports a contract violation by the producer of the
	// instruction list: a dangling branch target, an unknown family, an
	// operand no form can hold even after expansion.
	ErrMalformed = errors.New("malformed instruction list")

	// ErrUnitTooLarge reports a branch that no jump form can reach.
	ErrUnitTooLarge = errors.New("unit too large to encode")

	// ErrIndexTooLarge reports a pool index no form of its family can hold.
	ErrIndexTooLarge = errors.New("constant pool index too large to encode")

	// ErrNoConvergence reports an iteration cap being hit.
	ErrNoConvergence = errors.New("finisher did not converge")

	// ErrAlreadyFinished is returned by a second Finish and by edits after
	// the first.
	ErrAlreadyFinished = errors.New("unit already finished")
)
