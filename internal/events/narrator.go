package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"cartpilot/internal"
)

type stageLabel struct {
	name string
	icon string
}

var stageLabels = map[internal.StageID]stageLabel{
	internal.StagePlanner:   {name: "Planner Agent", icon: "🎯"},
	internal.StageSourcing:  {name: "Sourcing Agents", icon: "🔍"},
	internal.StageRanking:   {name: "Ranking Engine", icon: "📊"},
	internal.StageOptimizer: {name: "Optimizer Agent", icon: "💡"},
	internal.StageCart:      {name: "Cart Builder", icon: "🛒"},
	internal.StageCheckout:  {name: "Checkout Orchestrator", icon: "🚀"},
	internal.StageSystem:    {name: "System", icon: "⚠️"},
}

func StageName(id internal.StageID) string {
	if l, ok := stageLabels[id]; ok {
		return l.name
	}
	return string(id)
}

// Narrator stamps events with an ID, stage label and timestamp before
// handing them to the sink.
type Narrator struct {
	sink  Sink
	now   func() time.Time
	newID func() string
}

func NewNarrator(sink Sink, now func() time.Time) *Narrator {
	if sink == nil {
		sink = Discard{}
	}
	if now == nil {
		now = time.Now
	}
	return &Narrator{
		sink:  sink,
		now:   now,
		newID: func() string { return uuid.NewString() },
	}
}

func (n *Narrator) Emit(stage internal.StageID, kind internal.EventKind, format string, args ...any) internal.Event {
	label, ok := stageLabels[stage]
	if !ok {
		label = stageLabel{name: string(stage)}
	}
	ev := internal.Event{
		ID:        n.newID(),
		StageID:   stage,
		StageName: label.name,
		Icon:      label.icon,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: n.now(),
		Kind:      kind,
	}
	n.sink.Emit(ev)
	return ev
}

func (n *Narrator) Thinking(stage internal.StageID, format string, args ...any) {
	n.Emit(stage, internal.KindThinking, format, args...)
}

func (n *Narrator) Decision(stage internal.StageID, format string, args ...any) {
	n.Emit(stage, internal.KindDecision, format, args...)
}

func (n *Narrator) Action(stage internal.StageID, format string, args ...any) {
	n.Emit(stage, internal.KindAction, format, args...)
}

func (n *Narrator) Result(stage internal.StageID, format string, args ...any) {
	n.Emit(stage, internal.KindResult, format, args...)
}
