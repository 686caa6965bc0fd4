package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"cartpilot/internal"
	"cartpilot/internal/events"
	"cartpilot/internal/util"
)

// Interpreter turns a goal into an Intent. Implementations may call out to a
// model; any error makes the planner fall back to ParseGoal.
type Interpreter interface {
	Interpret(ctx context.Context, goal string) (Intent, error)
}

type Planner struct {
	interpreter Interpreter
	now         func() time.Time
	logger      *zap.Logger
}

type Option func(*Planner)

func WithInterpreter(i Interpreter) Option {
	return func(p *Planner) { p.interpreter = i }
}

func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(opts ...Option) *Planner {
	p := &Planner{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan interprets the goal and builds a procurement plan. It never fails.
func (p *Planner) Plan(ctx context.Context, goal string, n *events.Narrator) internal.ProcurementPlan {
	if n == nil {
		n = events.NewNarrator(nil, p.now)
	}
	started := p.now()
	n.Thinking(internal.StagePlanner, "Analyzing goal: %q", util.Truncate(goal, 50))

	intent := p.interpret(ctx, goal)
	n.Decision(internal.StagePlanner, "Detected: %s event, %d attendees, %s budget",
		intent.EventType, intent.Attendees, util.FormatMoney(intent.Budget))
	if len(intent.Mentioned) > 0 {
		n.Thinking(internal.StagePlanner, "Goal mentions: %s", strings.Join(intent.Mentioned, ", "))
	}

	plan := BuildPlan(intent)

	names := make([]string, 0, len(plan.Categories))
	for _, c := range plan.Categories {
		names = append(names, c.DisplayName)
	}
	n.Result(internal.StagePlanner, "Identified %d required categories: %s", len(plan.Categories), strings.Join(names, ", "))
	n.Result(internal.StagePlanner, "✓ Plan complete in %dms. Ready to source products.", p.now().Sub(started).Milliseconds())
	return plan
}

func (p *Planner) interpret(ctx context.Context, goal string) Intent {
	fallback := ParseGoal(goal, p.now())
	if p.interpreter == nil {
		return fallback
	}
	intent, err := p.interpreter.Interpret(ctx, goal)
	if err != nil {
		p.logger.Warn("goal interpreter failed, using heuristics", zap.Error(err))
		return fallback
	}
	return mergeIntent(intent, fallback)
}

func mergeIntent(primary, fallback Intent) Intent {
	out := primary
	if _, ok := templates[out.EventType]; !ok {
		out.EventType = fallback.EventType
	}
	if out.Attendees <= 0 {
		out.Attendees = fallback.Attendees
	}
	if out.Budget <= 0 {
		out.Budget = fallback.Budget
	}
	if out.Deadline == nil {
		out.Deadline = fallback.Deadline
	}
	if len(out.Mentioned) == 0 {
		out.Mentioned = fallback.Mentioned
	}
	return out
}

// BuildPlan expands an intent into categories sized for the head count.
func BuildPlan(intent Intent) internal.ProcurementPlan {
	eventType := intent.EventType
	if _, ok := templates[eventType]; !ok {
		eventType = EventHackathon
	}
	attendees := intent.Attendees
	if attendees <= 0 {
		attendees = DefaultAttendees
	}
	budget := intent.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	categories := templateFor(eventType)
	var mustHave, mustHaveNames []string
	for i := range categories {
		categories[i].EstimatedQuantity = EstimateQuantity(categories[i].Name, attendees)
		if categories[i].Priority == internal.PriorityHigh {
			mustHave = append(mustHave, categories[i].Name)
			mustHaveNames = append(mustHaveNames, categories[i].DisplayName)
		}
	}

	plan := internal.ProcurementPlan{
		Categories: categories,
		Constraints: internal.PlanConstraints{
			MaxBudget:          budget,
			MustHaveCategories: mustHave,
		},
		Reasoning: fmt.Sprintf(
			"Created procurement plan for %s with %d attendees. Budget allocated across %d categories with priority-based weighting. High-priority items (%s) will be fulfilled first.",
			eventType, attendees, len(categories), strings.Join(mustHaveNames, ", "),
		),
	}
	if intent.Deadline != nil {
		plan.Constraints.DeadlineDate = util.StringPtr(intent.Deadline.Format(dateLayout))
	}
	return plan
}
