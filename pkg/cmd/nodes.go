package cmd

import (
	"log/slog"

	"github.com/stratumflow/stratum/pkg/canary"
	"github.com/stratumflow/stratum/pkg/nodes/action"
	"github.com/stratumflow/stratum/pkg/nodes/approval"
	"github.com/stratumflow/stratum/pkg/nodes/bi"
	"github.com/stratumflow/stratum/pkg/nodes/code"
	compnode "github.com/stratumflow/stratum/pkg/nodes/compensation"
	"github.com/stratumflow/stratum/pkg/nodes/data"
	"github.com/stratumflow/stratum/pkg/nodes/deploy"
	"github.com/stratumflow/stratum/pkg/nodes/judgment"
	"github.com/stratumflow/stratum/pkg/nodes/loop"
	"github.com/stratumflow/stratum/pkg/nodes/mcp"
	"github.com/stratumflow/stratum/pkg/nodes/parallel"
	"github.com/stratumflow/stratum/pkg/nodes/rollback"
	"github.com/stratumflow/stratum/pkg/nodes/simulate"
	switchnode "github.com/stratumflow/stratum/pkg/nodes/switch"
	"github.com/stratumflow/stratum/pkg/nodes/trigger"
	"github.com/stratumflow/stratum/pkg/nodes/wait"
	"github.com/stratumflow/stratum/pkg/protocol"
	"github.com/stratumflow/stratum/pkg/registry"
)

// Collaborators bundles the external integrations the node factories depend
// on. A deployment that never uses a node type may leave its collaborator
// nil.
type Collaborators struct {
	DataSource     protocol.DataSource
	JudgmentPolicy protocol.JudgmentPolicy
	ScriptRunner   protocol.ScriptRunner
	Performer      protocol.ActionPerformer
	Analytics      protocol.Analytics
	ToolCaller     protocol.ToolCaller
	Registrar      protocol.ScheduleRegistrar
	Router         approval.DecisionRouter
	Canary         *canary.Manager
}

// NewRegistry builds a node registry with every built-in node type wired to
// the provided collaborators.
func NewRegistry(logger *slog.Logger, collab Collaborators) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(data.NewDataNodeFactory(collab.DataSource))
	reg.Register(judgment.NewJudgmentNodeFactory(collab.JudgmentPolicy))
	reg.Register(code.NewCodeNodeFactory(collab.ScriptRunner))
	reg.Register(switchnode.NewSwitchNodeFactory())
	reg.Register(action.NewActionNodeFactory(collab.Performer))
	reg.Register(bi.NewBINodeFactory(collab.Analytics))
	reg.Register(mcp.NewMCPNodeFactory(collab.ToolCaller))
	reg.Register(trigger.NewTriggerNodeFactory(collab.Registrar))
	reg.Register(wait.NewWaitNodeFactory())
	reg.Register(approval.NewApprovalNodeFactory(collab.Router))
	reg.Register(parallel.NewParallelNodeFactory())
	reg.Register(compnode.NewCompensationNodeFactory(collab.Performer))
	reg.Register(deploy.NewDeployNodeFactory(collab.Canary))
	reg.Register(rollback.NewRollbackNodeFactory(collab.Canary))
	reg.Register(simulate.NewSimulateNodeFactory())
	reg.Register(loop.NewLoopNodeFactory())

	return reg
}
