package scheduler

import (
	"errors"
	"fmt"

	"github.com/vk/rulegrid/internal/nodes"
	"github.com/vk/rulegrid/internal/selectors"
	"github.com/vk/rulegrid/internal/types"
)

var (
	// ErrNoRootEdges is matched by every *ResolutionError.
	ErrNoRootEdges = errors.New("no execution edges")
	// ErrUnexpectedSubjectType is returned when a root's subject type is
	// not one of the expected root subject types of a Ready Core.
	ErrUnexpectedSubjectType = errors.New("unexpected root subject type")
)

// ResolutionError reports that no rule path produces the selector's product
// for subjects of SubjectType.
type ResolutionError struct {
	SubjectType types.TypeID
	Selector    selectors.Selector
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no execution edges for %s with subject type %s", e.Selector, e.SubjectType)
}

// Is makes errors.Is(err, ErrNoRootEdges) hold.
func (e *ResolutionError) Is(target error) bool { return target == ErrNoRootEdges }

// Root is a registered request bound to its execution edges. It is either
// RootSelect or RootSelectDependencies.
type Root interface {
	fmt.Stringer
	// NodeKey returns the graph node computing the root.
	NodeKey() nodes.NodeKey
	Subject() types.Key
	Product() types.TypeConstraint
	isRoot()
}

// RootSelect is a root for a direct selection.
type RootSelect struct {
	Node nodes.Select
}

func (RootSelect) isRoot() {}
func (r RootSelect) NodeKey() nodes.NodeKey { return r.Node }
func (r RootSelect) Subject() types.Key { return r.Node.Subject }
func (r RootSelect) Product() types.TypeConstraint { return r.Node.Selector.Product }
func (r RootSelect) String() string { return r.Node.String() }

// RootSelectDependencies is a root for a dependency fan-out.
type RootSelectDependencies struct {
	Node nodes.SelectDependencies
}

func (RootSelectDependencies) isRoot() {}
func (r RootSelectDependencies) NodeKey() nodes.NodeKey { return r.Node }
func (r RootSelectDependencies) Subject() types.Key { return r.Node.Subject }
func (r RootSelectDependencies) Product() types.TypeConstraint { return r.Node.Selector.Product }
func (r RootSelectDependencies) String() string { return r.Node.String() }

// RootState is the observable state of one root. Result is nil until the
// root's node has completed.
type RootState struct {
	Subject types.Key
	Product types.TypeConstraint
	Result  *types.Result
}

// ExecutionStat summarizes one Execute call. It is advisory.
type ExecutionStat struct {
	// RunnableCount is the number of graph nodes that ran during the call.
	RunnableCount uint64
	// SchedulingIterations is always zero: the graph drives execution
	// itself and there is no scheduling loop to count.
	SchedulingIterations uint64
}
