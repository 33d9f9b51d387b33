// Package resolve implements the per-field conflict-resolution algebra
// that drives pull, push, and diff. Each transaction field is assigned
// one of five strategies; resolving a (local, remote) pair yields the
// desired state of both sides plus the mutation records needed to get
// there. Resolution is pure: no I/O, and identical inputs always produce
// identical outputs.
package resolve

// Strategy identifies one of the five per-field resolution contracts.
type Strategy int

const (
	// Immutable fields never mutate; a difference is a conflict warning.
	Immutable Strategy = iota
	// LocalWins writes the local value back to the remote, never the
	// other way around.
	LocalWins
	// RemoteOverwrite overwrites the local value with the remote one.
	// Used for system-set fields such as updated_at.
	RemoteOverwrite
	// RemoteWins is mechanically identical to RemoteOverwrite but marks
	// fields where the remote is semantically authoritative.
	RemoteWins
	// MergeSet unions both sides; whichever side lacks tokens is updated.
	MergeSet
)

func (s Strategy) String() string {
	switch s {
	case Immutable:
		return "immutable"
	case LocalWins:
		return "local-wins-writeback"
	case RemoteOverwrite:
		return "remote-wins-overwrite"
	case RemoteWins:
		return "remote-wins"
	case MergeSet:
		return "merge-set"
	}
	return "unknown"
}

// Direction selects pull-time or push-time strategies. Category is the
// only field whose strategy depends on it: pull keeps the remote
// category, push promotes the local one.
type Direction int

const (
	Pull Direction = iota
	Push
)

func (d Direction) String() string {
	if d == Push {
		return "push"
	}
	return "pull"
}

// Kind is the diagnostic attached to a single field resolution.
type Kind string

const (
	KindNone          Kind = "none"
	KindAppliedLocal  Kind = "applied-local"
	KindAppliedRemote Kind = "applied-remote"
	KindMerged        Kind = "merged"
	KindConflict      Kind = "conflict-warning"
)

// Target names the side a mutation applies to.
type Target int

const (
	TargetLocal Target = iota
	TargetRemote
)

func (t Target) String() string {
	if t == TargetRemote {
		return "remote"
	}
	return "local"
}

// Mutation is a single-field change record. Mutations are the only
// artifacts that cross from resolution into the store, the remote
// client, and the changelog.
type Mutation struct {
	TxnID  int64
	Field  string
	Old    string
	New    string
	Target Target
}
