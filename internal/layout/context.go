package layout

import (
	"sync"

	"github.com/born-ml/relayout/internal/backend"
	"github.com/born-ml/relayout/internal/graph"
)

// Context carries the graph a rewrite pass is operating on.
type Context struct {
	Graph *graph.Graph
}

// HandlerArgs bundles everything a transform needs for one invocation:
// the pass context, the candidate node, its assigned execution provider,
// and the permutation of the transpose being pushed (with its inverse).
// A fresh HandlerArgs is built per invocation and never retained.
type HandlerArgs struct {
	Ctx     *Context
	Backend string // execution provider of Node, "" = unassigned
	Node    *graph.Node
	Perm    []int64
	PermInv []int64
}

// InputSelector returns the layout-sensitive input slot indices for a node.
// Selection is a property of the operator kind alone; it does not depend on
// whether a rewrite will succeed.
type InputSelector func(ctx *Context, node *graph.Node) []int

// TransformFunc attempts to push the pending transpose through args.Node.
//
// A true return means the rewrite was applied and the adjacent transpose has
// been consumed or relocated. A false return guarantees no mutation occurred
// at all, so the caller may safely try a generic fallback.
type TransformFunc func(args *HandlerArgs) bool

// HandlerEntry pairs an input selector with its transform.
type HandlerEntry struct {
	SelectInputs InputSelector
	Transform    TransformFunc
}

// HandlerTable maps qualified operator types (domain-prefixed for
// non-default domains) to their handlers.
type HandlerTable map[string]HandlerEntry

var (
	baseOnce     sync.Once
	baseTable    HandlerTable
	extOnce      sync.Once
	extTable     HandlerTable
	denyOnce     sync.Once
	denyResize   map[string]bool
)

// Handlers returns the base handler table: generic operators whose rewrite
// is conditional on the assigned execution provider. Built once; read-only.
func Handlers() HandlerTable {
	baseOnce.Do(func() {
		baseTable = HandlerTable{
			"Resize": {SelectInputs: FirstInput, Transform: handleResizeBackendAware},
		}
	})
	return baseTable
}

// ExtendedHandlers returns the extended handler table: vendor-specific and
// quantized-operator handlers, plus every base entry. On a key collision the
// extended entry wins. Built once; read-only.
func ExtendedHandlers() HandlerTable {
	extOnce.Do(func() {
		table := HandlerTable{
			"MaxPool":                              {SelectInputs: FirstInput, Transform: handleMaxPool},
			"com.microsoft.QLinearAdd":             {SelectInputs: QLinearBinaryOpInputs, Transform: handleQLinearBinaryOp},
			"com.microsoft.QLinearAveragePool":     {SelectInputs: FirstInput, Transform: handleQLinearPoolOp},
			"com.microsoft.QLinearConcat":          {SelectInputs: QLinearConcatInputs, Transform: handleQLinearConcat},
			"com.microsoft.QLinearGlobalAveragePool": {SelectInputs: FirstInput, Transform: handleQLinearPoolOp},
			"com.microsoft.QLinearLeakyRelu":       {SelectInputs: FirstInput, Transform: HandleSimpleNode},
			"com.microsoft.QLinearMul":             {SelectInputs: QLinearBinaryOpInputs, Transform: handleQLinearBinaryOp},
			"com.microsoft.QLinearReduceMean":      {SelectInputs: FirstInput, Transform: HandleReduceOps},
			"com.microsoft.QLinearSigmoid":         {SelectInputs: FirstInput, Transform: HandleSimpleNode},
		}
		for op, entry := range Handlers() {
			if _, ok := table[op]; !ok {
				table[op] = entry
			}
		}
		extTable = table
	})
	return extTable
}

// LayoutSensitiveResizeBackends returns the execution providers whose Resize
// kernels are implemented for a single fixed layout. A transpose must not be
// pushed through a Resize assigned to one of these. The set is fixed at
// build time; the internal-testing entry exists for test harness use.
func LayoutSensitiveResizeBackends() map[string]bool {
	denyOnce.Do(func() {
		denyResize = map[string]bool{
			backend.WebGPUExecutionProvider:          true,
			backend.InternalTestingExecutionProvider: true,
		}
	})
	return denyResize
}
