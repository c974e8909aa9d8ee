// Package protoprune removes the parts of a protobuf schema that a selection does not need.
//
// Pruning runs in two phases. [Mark] walks the schema from the selected roots and records every type and member they
// reach, then [Retain] copies the schema keeping only what was marked. [Prune] does both.
//
// A [schema.Schema] is never modified, so one schema may be pruned concurrently with any number of selections.
package protoprune

import (
	"log/slog"

	"github.com/alecthomas/errors"

	"github.com/alecthomas/protoprune/internal/markset"
	"github.com/alecthomas/protoprune/internal/reach"
	"github.com/alecthomas/protoprune/internal/retain"
	"github.com/alecthomas/protoprune/schema"
)

// Selection decides which types and members were selected explicitly.
//
// A Selection may also implement Excludes(schema.Node) bool to prevent nodes from being retained even when they are
// reachable. identifier.Set implements both.
type Selection = reach.Selection

// MarkSet is the result of [Mark]: the types and members reachable from a selection.
type MarkSet = markset.MarkSet

// UnresolvedTypeError is returned when a reachable type is not declared in the schema.
type UnresolvedTypeError = reach.UnresolvedTypeError

// UnresolvedMemberError is returned when a reachable member is not declared on its owner.
type UnresolvedMemberError = reach.UnresolvedMemberError

type options struct {
	logger         *slog.Logger
	keepEmptyFiles bool
}

// Option configures [Mark], [Retain] and [Prune].
type Option func(*options) error

// WithLogger logs the progress of pruning at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.Errorf("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithKeepEmptyFiles keeps files whose declarations were all pruned, rather than dropping them.
func WithKeepEmptyFiles(keep bool) Option {
	return func(o *options) error {
		o.keepEmptyFiles = keep
		return nil
	}
}

func newOptions(opts []Option) (*options, error) {
	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Mark computes the types and members of s reachable from selection.
func Mark(s *schema.Schema, selection Selection, opts ...Option) (*MarkSet, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	return reach.Compute(s, selection, reach.WithLogger(o.logger))
}

// Retain returns a copy of s containing only the types and members in marks.
func Retain(s *schema.Schema, marks *MarkSet, opts ...Option) (*schema.Schema, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	pruned, err := retain.Retain(s, marks, retain.WithKeepEmptyFiles(o.keepEmptyFiles))
	if err != nil {
		return nil, err
	}
	o.logger.Debug("Retained schema", "files", len(pruned.Files))
	return pruned, nil
}

// Prune returns a copy of s containing only what selection reaches.
func Prune(s *schema.Schema, selection Selection, opts ...Option) (*schema.Schema, error) {
	marks, err := Mark(s, selection, opts...)
	if err != nil {
		return nil, err
	}
	return Retain(s, marks, opts...)
}
