package ctree

import "github.com/pkg/errors"

var (
	// ErrInvalidConfiguration is returned for bad hyper-parameters and for inputs that break
	// the engine's contract (zero features, mismatched shapes).
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNotTrained is returned by operations that need a grown tree.
	ErrNotTrained = errors.New("tree is not trained")

	// ErrSplitFailure signals that no column, value or groups could be chosen for a split.
	ErrSplitFailure = errors.New("split failure")
)
