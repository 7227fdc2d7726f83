package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/plancheck/internal/actions"
	"github.com/rendis/plancheck/pkg/schema"
)

func singleAgentWorld() *schema.World {
	return &schema.World{
		Name:         "single",
		Slots:        []string{"SlotX", "SlotY"},
		Poses:        []string{"DockX", "DockY"},
		Objects:      []string{"box"},
		Reachability: map[string]string{"SlotX": "DockX", "SlotY": "DockY"},
		Occupancy:    schema.Occupancy{"SlotX": "box"},
	}
}

func sharedWorld() *schema.World {
	return &schema.World{
		Name:    "shared",
		Slots:   []string{"Src1.slot", "Src2.slot", "Shared.slot", "Out.slot"},
		Poses:   []string{"Src1.dock", "Src2.dock", "Shared.dock", "Out.dock"},
		Objects: []string{"box1", "box2", "crate"},
		Agents:  []string{"robotA", "robotB"},
		Reachability: map[string]string{
			"Src1.slot":   "Src1.dock",
			"Src2.slot":   "Src2.dock",
			"Shared.slot": "Shared.dock",
			"Out.slot":    "Out.dock",
		},
		SharedSlots: []string{"Shared.slot"},
		Occupancy:   schema.Occupancy{"Src1.slot": "box1", "Src2.slot": "box2", "Out.slot": "crate"},
	}
}

func move(target string) schema.Step { return schema.NewStep("base.goto", "target", target) }
func pick(obj, from string) schema.Step {
	return schema.NewStep("arm.pick", "object", obj, "from", from)
}
func place(obj, to string) schema.Step {
	return schema.NewStep("arm.place", "object", obj, "to", to)
}
func waitFree(slot string) schema.Step { return schema.NewStep("wait_until_free", "target", slot) }

func plan(steps ...schema.Step) *schema.Plan { return &schema.Plan{Steps: steps} }

func goal(pairs ...string) *schema.Goal {
	g := &schema.Goal{Placements: map[string]string{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		g.Placements[pairs[i]] = pairs[i+1]
	}
	return g
}

func newValidator() *Validator {
	return New(actions.NewDefaultRegistry(), Config{})
}

func TestValidate_SingleAgentRelayAccepted(t *testing.T) {
	v := newValidator()
	verdict := v.Validate(context.Background(), Input{
		World: singleAgentWorld(),
		Plan:  plan(move("DockX"), pick("box", "SlotX"), move("DockY"), place("box", "SlotY")),
		Goal:  goal("box", "SlotY"),
	})

	assert.True(t, verdict.OK)
	assert.True(t, verdict.LogicOK)
	assert.True(t, verdict.GoalOK)
	assert.Equal(t, schema.PhaseAccepted, verdict.Phase)
	assert.Empty(t, verdict.Errors)
	assert.Equal(t, 4, verdict.StepsExecuted)
	assert.Equal(t, schema.NoStep, verdict.FailedStep)
	assert.False(t, verdict.PartialGoal)
	assert.Equal(t, map[string]string{"SlotY": "box"}, verdict.Final.Occupancy)
}

func TestValidate_PlaceWithoutMovingToDock(t *testing.T) {
	v := newValidator()
	verdict := v.Validate(context.Background(), Input{
		World: singleAgentWorld(),
		Plan:  plan(move("DockX"), pick("box", "SlotX"), waitFree("SlotY"), place("box", "SlotY")),
		Goal:  goal("box", "SlotY"),
	})

	assert.False(t, verdict.LogicOK)
	assert.False(t, verdict.OK)
	assert.Equal(t, schema.PhaseRejectedPrecondition, verdict.Phase)
	assert.Equal(t, 3, verdict.FailedStep)
	assert.Equal(t, 3, verdict.StepsExecuted)

	d := verdict.Errors[0]
	assert.Equal(t, 3, d.Step)
	assert.Equal(t, schema.ReasonPreconditionFailed, d.Code)
	assert.Equal(t, "at_reach", d.Predicate)
	assert.Equal(t, schema.DefaultAgent, d.Agent)
	assert.Equal(t, "DockY", d.Expected)
	assert.Equal(t, "DockX", d.Actual)
	assert.Equal(t, "[3] precondition_failed (robot): at_reach -> robot not at dock 'DockY' (at=DockX)", d.String())
}

func TestValidate_MoveOmittedBeforePlace(t *testing.T) {
	v := newValidator()
	verdict := v.Validate(context.Background(), Input{
		World: singleAgentWorld(),
		Plan:  plan(move("DockX"), pick("box", "SlotX"), place("box", "SlotY")),
	})

	require.False(t, verdict.LogicOK)
	assert.Equal(t, 2, verdict.FailedStep)
	assert.Equal(t, "at_reach", verdict.Errors[0].Predicate)
}

func TestValidate_SharedSlotHandoff(t *testing.T) {
	v := newValidator()
	steps := []schema.Step{
		move("Src1.dock").WithAgent("robotA"),
		pick("box1", "Src1.slot").WithAgent("robotA"),
		move("Src2.dock").WithAgent("robotB"),
		pick("box2", "Src2.slot").WithAgent("robotB"),
		move("Shared.dock").WithAgent("robotA"),
		waitFree("Shared.slot").WithAgent("robotA"),
		place("box1", "Shared.slot").WithAgent("robotA"),
		pick("box1", "Shared.slot").WithAgent("robotA"),
		move("Src1.dock").WithAgent("robotA"),
		place("box1", "Src1.slot").WithAgent("robotA"),
		move("Shared.dock").WithAgent("robotB"),
		waitFree("Shared.slot").WithAgent("robotB"),
		place("box2", "Shared.slot").WithAgent("robotB"),
	}
	verdict := v.Validate(context.Background(), Input{
		World: sharedWorld(),
		Plan:  plan(steps...),
		Goal:  goal("box2", "Shared.slot"),
	})

	require.True(t, verdict.OK, verdict.Messages())
	assert.Equal(t, "box2", verdict.Final.Occupancy["Shared.slot"])
	assert.Equal(t, "box1", verdict.Final.Occupancy["Src1.slot"])
}

func TestValidate_SharedSlotContention(t *testing.T) {
	v := newValidator()
	steps := []schema.Step{
		move("Src1.dock").WithAgent("robotA"),
		pick("box1", "Src1.slot").WithAgent("robotA"),
		move("Shared.dock").WithAgent("robotA"),
		place("box1", "Shared.slot").WithAgent("robotA"),
		move("Src2.dock").WithAgent("robotB"),
		pick("box2", "Src2.slot").WithAgent("robotB"),
		move("Shared.dock").WithAgent("robotB"),
		waitFree("Shared.slot").WithAgent("robotB"),
	}
	verdict := v.Validate(context.Background(), Input{World: sharedWorld(), Plan: plan(steps...)})

	require.False(t, verdict.LogicOK)
	d := verdict.Errors[0]
	assert.Equal(t, 7, d.Step)
	assert.Equal(t, "robotB", d.Agent)
	assert.Equal(t, "slot_free", d.Predicate)
	assert.Equal(t, "Shared.slot currently occupied by box1 (shared resource)", d.Message)
}

func TestValidate_SecondPlaceIntoSameSlot(t *testing.T) {
	w := sharedWorld()
	w.Occupancy["Out.slot"] = ""
	w.Objects = []string{"box1", "box2"}

	v := newValidator()
	steps := []schema.Step{
		move("Src1.dock").WithAgent("robotA"),
		pick("box1", "Src1.slot").WithAgent("robotA"),
		move("Src2.dock").WithAgent("robotB"),
		pick("box2", "Src2.slot").WithAgent("robotB"),
		move("Out.dock").WithAgent("robotA"),
		move("Out.dock").WithAgent("robotB"),
		place("box1", "Out.slot").WithAgent("robotA"),
		place("box2", "Out.slot").WithAgent("robotB"),
	}
	verdict := v.Validate(context.Background(), Input{World: w, Plan: plan(steps...)})

	require.False(t, verdict.LogicOK)
	d := verdict.Errors[0]
	assert.Equal(t, 7, d.Step)
	assert.Equal(t, schema.ReasonPreconditionFailed, d.Code)
	assert.Equal(t, "slot_free", d.Predicate)
	assert.Equal(t, "Out.slot occupied by box1", d.Message)
}

func TestValidate_UnknownObjectReference(t *testing.T) {
	v := newValidator()
	verdict := v.Validate(context.Background(), Input{
		World: singleAgentWorld(),
		Plan:  plan(pick("ghost", "SlotX"), move("DockX")),
	})

	assert.False(t, verdict.LogicOK)
	assert.Equal(t, schema.PhaseRejectedSchema, verdict.Phase)
	require.Len(t, verdict.Errors, 1)
	d := verdict.Errors[0]
	assert.Equal(t, 0, d.Step)
	assert.Equal(t, schema.ReasonSchemaError, d.Code)
	assert.Equal(t, "unknown object 'ghost'", d.Message)
	assert.Equal(t, 0, verdict.StepsExecuted)
}

func TestValidate_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		world   *schema.World
		step    schema.Step
		code    schema.ReasonCode
		message string
	}{
		{
			name: "unknown action", world: singleAgentWorld(),
			step: schema.NewStep("arm.throw", "object", "box"),
			code: schema.ReasonUnknownAction, message: "unknown action 'arm.throw'",
		},
		{
			name: "missing and extra fields", world: singleAgentWorld(),
			step: schema.NewStep("arm.place", "object", "box", "slot", "SlotY"),
			code: schema.ReasonSchemaError, message: "missing fields [to]; unknown fields [slot]",
		},
		{
			name: "unknown pose", world: singleAgentWorld(),
			step: move("Roof"),
			code: schema.ReasonSchemaError, message: "unknown pose 'Roof'",
		},
		{
			name: "unknown slot and object", world: singleAgentWorld(),
			step: place("ghost", "SlotZ"),
			code: schema.ReasonSchemaError, message: "unknown object 'ghost'; unknown slot 'SlotZ'",
		},
		{
			name: "wait on unknown slot", world: singleAgentWorld(),
			step: waitFree("SlotZ"),
			code: schema.ReasonSchemaError, message: "unknown slot 'SlotZ'",
		},
		{
			name: "non-string parameter", world: singleAgentWorld(),
			step: schema.Step{Action: "base.goto", Params: map[string]any{"target": 3.0}},
			code: schema.ReasonSchemaError, message: "field 'target' must be a string, got float64",
		},
		{
			name: "missing agent in multi-agent world", world: sharedWorld(),
			step: move("Src1.dock"),
			code: schema.ReasonSchemaError, message: "missing agent tag in multi-agent world (agents: robotA, robotB)",
		},
		{
			name: "undeclared agent", world: sharedWorld(),
			step: move("Src1.dock").WithAgent("robotZ"),
			code: schema.ReasonSchemaError, message: "unknown agent 'robotZ'",
		},
		{
			name: "tag in single-agent world must match", world: singleAgentWorld(),
			step: move("DockX").WithAgent("robotA"),
			code: schema.ReasonSchemaError, message: "unknown agent 'robotA'",
		},
	}
	v := newValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(context.Background(), Input{World: tt.world, Plan: plan(tt.step)})
			require.Len(t, verdict.Errors, 1)
			assert.Equal(t, tt.code, verdict.Errors[0].Code)
			assert.Equal(t, tt.message, verdict.Errors[0].Message)
			assert.Equal(t, schema.PhaseRejectedSchema, verdict.Phase)
			assert.False(t, verdict.LogicOK)
		})
	}
}

func TestValidate_FieldListsOnDiagnostic(t *testing.T) {
	v := newValidator()
	verdict := v.Validate(context.Background(), Input{
		World: singleAgentWorld(),
		Plan:  plan(schema.NewStep("arm.pick", "object", "box", "speed", "fast")),
	})
	d := verdict.Errors[0]
	assert.Equal(t, []string{"from"}, d.Missing)
	assert.Equal(t, []string{"speed"}, d.Extra)
}

func TestValidate_FailFast(t *testing.T) {
	v := newValidator()
	verdict := v.Validate(context.Background(), Input{
		World: singleAgentWorld(),
		Plan:  plan(pick("box", "SlotX"), schema.NewStep("fly")),
	})
	require.Len(t, verdict.Errors, 1, "steps after the first failure are never evaluated")
	assert.Equal(t, 0, verdict.FailedStep)
}

func TestValidate_EmptyPlan(t *testing.T) {
	v := newValidator()
	verdict := v.Validate(context.Background(), Input{
		World: singleAgentWorld(),
		Plan:  plan(),
		Goal:  goal("box", "SlotX"),
	})
	assert.True(t, verdict.LogicOK)
	assert.True(t, verdict.GoalOK)
	assert.True(t, verdict.OK)
	assert.Equal(t, schema.PhaseAccepted, verdict.Phase)
	assert.Equal(t, schema.NoStep, verdict.Final.Step)
}

func TestValidate_GoalIndependentOfLogic(t *testing.T) {
	v := newValidator()

	t.Run("logic ok, goal unmet", func(t *testing.T) {
		verdict := v.Validate(context.Background(), Input{
			World: singleAgentWorld(),
			Plan:  plan(move("DockX"), pick("box", "SlotX")),
			Goal:  goal("box", "SlotY"),
		})
		assert.True(t, verdict.LogicOK)
		assert.False(t, verdict.GoalOK)
		assert.False(t, verdict.OK)
		assert.Equal(t, schema.PhaseRejectedGoal, verdict.Phase)
		assert.Equal(t, []string{"goal_unsatisfied: box not in SlotY (in=none)"}, verdict.Messages())
	})

	t.Run("logic failed, partial state satisfies goal", func(t *testing.T) {
		verdict := v.Validate(context.Background(), Input{
			World: singleAgentWorld(),
			Plan:  plan(move("DockY"), pick("box", "SlotX")),
			Goal:  goal("box", "SlotX"),
		})
		assert.False(t, verdict.LogicOK)
		assert.True(t, verdict.GoalOK)
		assert.False(t, verdict.OK)
		assert.True(t, verdict.PartialGoal)
		assert.Equal(t, schema.PhaseRejectedPrecondition, verdict.Phase)
	})

	t.Run("logic failed and goal unmet", func(t *testing.T) {
		verdict := v.Validate(context.Background(), Input{
			World: singleAgentWorld(),
			Plan:  plan(schema.NewStep("teleport")),
			Goal:  goal("box", "SlotY"),
		})
		require.Len(t, verdict.Errors, 2)
		assert.Equal(t, schema.ReasonUnknownAction, verdict.Errors[0].Code)
		assert.Equal(t, schema.ReasonGoalUnsatisfied, verdict.Errors[1].Code)
		assert.Equal(t, schema.PhaseRejectedSchema, verdict.Phase)
	})
}

func TestValidate_GoalConditions(t *testing.T) {
	v := newValidator()
	g := goal("box", "SlotY")
	g.Conditions = []string{
		`agent_at["robot"] == "DockY"`,
		`holding["robot"] != ""`,
		`undefined_var`,
	}
	verdict := v.Validate(context.Background(), Input{
		World: singleAgentWorld(),
		Plan:  plan(move("DockX"), pick("box", "SlotX"), move("DockY"), place("box", "SlotY")),
		Goal:  g,
	})

	assert.True(t, verdict.LogicOK)
	assert.False(t, verdict.GoalOK)
	require.Len(t, verdict.Errors, 2)
	assert.Equal(t, `holding["robot"] != ""`, verdict.Errors[0].Predicate)
	assert.Equal(t, "condition not met", verdict.Errors[0].Message)
	assert.Contains(t, verdict.Errors[1].Message, "condition error")
}

func TestValidate_ConstraintViolation(t *testing.T) {
	v := newValidator()
	steps := []schema.Step{
		move("Out.dock").WithAgent("robotA"),
		pick("crate", "Out.slot").WithAgent("robotA"),
		move("Shared.dock").WithAgent("robotA"),
		place("crate", "Shared.slot").WithAgent("robotA"),
	}
	verdict := v.Validate(context.Background(), Input{
		World:       sharedWorld(),
		Plan:        plan(steps...),
		Constraints: &schema.Constraints{AllowedTargets: map[string][]string{"Shared.slot": {"box[12]", "[oops"}}},
	})

	require.False(t, verdict.LogicOK)
	d := verdict.Errors[0]
	assert.Equal(t, schema.ReasonConstraintViolation, d.Code)
	assert.Equal(t, 3, d.Step)
	assert.Equal(t, schema.PhaseRejectedPrecondition, verdict.Phase)
	assert.Contains(t, d.Message, "'crate' not allowed in 'Shared.slot'")
	assert.Contains(t, d.Message, "unterminated character class")
	assert.Equal(t, 3, verdict.StepsExecuted)
}

func TestValidate_ConstraintViolationKeepsPlaceEffects(t *testing.T) {
	v := newValidator()
	steps := []schema.Step{
		move("Out.dock").WithAgent("robotA"),
		pick("crate", "Out.slot").WithAgent("robotA"),
		move("Shared.dock").WithAgent("robotA"),
		place("crate", "Shared.slot").WithAgent("robotA"),
	}
	verdict := v.Validate(context.Background(), Input{
		World:       sharedWorld(),
		Plan:        plan(steps...),
		Constraints: &schema.Constraints{AllowedTargets: map[string][]string{"Shared.slot": {"box*"}}},
		Goal:        goal("crate", "Shared.slot"),
	})

	require.False(t, verdict.LogicOK)
	assert.Equal(t, schema.ReasonConstraintViolation, verdict.Errors[0].Code)
	assert.True(t, verdict.GoalOK, verdict.Messages())
	assert.True(t, verdict.PartialGoal)
	assert.False(t, verdict.OK)
	assert.Equal(t, map[string]string{
		"Src1.slot":   "box1",
		"Src2.slot":   "box2",
		"Shared.slot": "crate",
	}, verdict.Final.Occupancy)
	assert.Empty(t, verdict.Final.Holding["robotA"])
	assert.Len(t, verdict.Errors, 1)
}

func TestValidate_ConstraintAllowsMatchingObject(t *testing.T) {
	v := newValidator()
	steps := []schema.Step{
		move("Src1.dock").WithAgent("robotB"),
		pick("box1", "Src1.slot").WithAgent("robotB"),
		move("Shared.dock").WithAgent("robotB"),
		place("box1", "Shared.slot").WithAgent("robotB"),
	}
	verdict := v.Validate(context.Background(), Input{
		World:       sharedWorld(),
		Plan:        plan(steps...),
		Constraints: &schema.Constraints{AllowedTargets: map[string][]string{"Shared.slot": {"exact:crate", `expr:object startsWith "box"`}}},
	})
	assert.True(t, verdict.LogicOK, verdict.Messages())
}

func TestValidate_RoundTripRestoresOccupancy(t *testing.T) {
	v := newValidator()
	w := singleAgentWorld()
	verdict := v.Validate(context.Background(), Input{
		World: w,
		Plan: plan(
			move("DockX"), pick("box", "SlotX"), place("box", "SlotX"),
			pick("box", "SlotX"), move("DockY"), place("box", "SlotY"),
			pick("box", "SlotY"), move("DockX"), place("box", "SlotX"),
		),
	})
	require.True(t, verdict.LogicOK, verdict.Messages())
	assert.Equal(t, map[string]string{"SlotX": "box"}, verdict.Final.Occupancy)
	assert.Equal(t, "box", w.Occupancy["SlotX"], "world is never mutated")
}

func TestValidate_UniquenessAtEveryStep(t *testing.T) {
	v := newValidator()
	verdict := v.Validate(context.Background(), Input{
		World:       singleAgentWorld(),
		Plan:        plan(move("DockX"), pick("box", "SlotX"), move("DockY"), place("box", "SlotY")),
		RecordTrace: true,
	})
	require.True(t, verdict.LogicOK)
	require.Len(t, verdict.Trace, 4)

	for _, snap := range verdict.Trace {
		seen := map[string]int{}
		for _, obj := range snap.Occupancy {
			seen[obj]++
		}
		for _, obj := range snap.Holding {
			seen[obj]++
		}
		assert.Equal(t, map[string]int{"box": 1}, seen, "step %d", snap.Step)
	}
	assert.Equal(t, map[string]string{"robot": "box"}, verdict.Trace[1].Holding)
}

func TestValidate_Idempotent(t *testing.T) {
	v := newValidator()
	in := Input{
		World:       sharedWorld(),
		Plan:        plan(move("Src1.dock").WithAgent("robotA"), pick("box2", "Src1.slot").WithAgent("robotA")),
		Goal:        goal("box1", "Shared.slot", "box2", "Out.slot"),
		RecordTrace: true,
	}
	first := v.Validate(context.Background(), in)
	second := v.Validate(context.Background(), in)
	assert.Equal(t, first, second)
	assert.Len(t, first.Errors, 3)
}

func TestValidate_MalformedInputs(t *testing.T) {
	v := newValidator()

	verdict := v.Validate(context.Background(), Input{Plan: plan()})
	assert.Equal(t, []string{"schema_error: world is required"}, verdict.Messages())

	verdict = v.Validate(context.Background(), Input{World: singleAgentWorld()})
	assert.Equal(t, []string{"schema_error: plan missing 'steps' list"}, verdict.Messages())

	bad := singleAgentWorld()
	bad.Reachability = map[string]string{}
	verdict = v.Validate(context.Background(), Input{World: bad, Plan: plan()})
	assert.False(t, verdict.LogicOK)
	assert.Contains(t, verdict.Errors[0].Message, "invalid world")
}

func TestValidate_Hooks(t *testing.T) {
	var seen []schema.Phase
	v := New(nil, Config{Hooks: []TransitionHook{func(_, to schema.Phase, _ int) { seen = append(seen, to) }}})

	v.Validate(context.Background(), Input{World: singleAgentWorld(), Plan: plan(move("DockX"))})
	v.Validate(context.Background(), Input{World: singleAgentWorld(), Plan: plan(move("Nowhere"))})

	assert.Equal(t, []schema.Phase{schema.PhaseAccepted, schema.PhaseRejectedSchema}, seen)
}
