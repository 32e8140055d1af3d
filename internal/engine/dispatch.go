package engine

import (
	"context"
	"errors"
	"maps"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/stateengine/internal/mask"
)

// loop runs dispatch cycles until only Terminal or Idle states remain with
// no new transitions, or the run stalls.
//
// An idle workflow runs StallCycles more cycles so Idle states get a chance
// to emit. Terminal stops as soon as it has executed without transitions.
func (e *Engine) loop(ctx context.Context) error {
	var lastCycle int
	var stalled bool
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.dispatch(ctx); err != nil {
			return err
		}
		c := e.cycle
		idle := (e.deferred == 0 && e.ready == 0) ||
			maps.Equal(e.history[c], e.history[c-1]) ||
			e.workflowState&^e.model.StopStates == 0
		stalled = idle && e.workflowState&^e.model.StopStates != 0

		switch {
		case stalled:
			lastCycle = c
		case idle:
			if e.workflowState&^e.model.TerminalMask == 0 {
				if allZero(e.history[c]) {
					lastCycle = c
				} else {
					lastCycle = c + e.model.StallCycles
				}
			} else if lastCycle == 0 {
				lastCycle = c + e.model.StallCycles
			}
		default:
			lastCycle = 0
		}
		if lastCycle == c {
			break
		}
	}
	return e.checkEnd(stalled)
}

// checkEnd validates the state the loop stopped in.
func (e *Engine) checkEnd(stalled bool) error {
	ws := e.model.StateNamesFromMask(e.workflowState)
	last := e.formatLastTransitions(e.history[e.cycle])
	pending := e.pendingDump()

	if stalled {
		code, msg := ErrCodeStalledSameTransitions, "STALLED: Same state transitions!"
		if e.ready == 0 {
			code, msg = ErrCodeStalledNoReady, "STALLED: No ready states!"
		}
		err := e.fail(code, "%s DispatchCycle: %d WorkflowState(s): %s LastTransitions: %s", msg, e.cycle, ws, last)
		if pending != "" {
			err.Message = strings.ReplaceAll(err.Message+"\n"+pending, "| \n", ". ")
		}
		return err
	}
	// Unreachable while the loop only stops idle in Stop states.
	if e.workflowState&^e.model.StopStates != 0 {
		return e.fail(ErrCodeIdleInNonIdleState,
			"STALLED: Workflow is idle in non-idle state(s)! DispatchCycle: %d WorkflowState(s): %s LastTransitions: %s",
			e.cycle, ws, last)
	}
	// Idle states may stop with pending progress; they can be resumed.
	if e.workflowState == e.model.TerminalMask && pending != "" {
		err := e.fail(ErrCodePendingAtTerminal, "TERMINAL: Pending transitions! DispatchCycle: %d \n%s", e.cycle, pending)
		err.Message = strings.ReplaceAll(err.Message, "| \n", ". ")
		return err
	}
	return nil
}

// dispatch runs one cycle: every ready state executes once in model order.
func (e *Engine) dispatch(ctx context.Context) error {
	if err := e.quota.Check(e.runID); err != nil {
		e.cycle = e.quota.Current()
		re := e.fail(ErrCodeExcessCycles, "ABORTED: Excess Dispatch Cycles! %d EngineReadyStates: %s",
			e.cycle, e.model.StateNamesFromMask(e.ready))
		re.Err = err
		return re
	}
	e.cycle = e.quota.Current()
	e.preDispatch()

	run, err := e.makeExecReady()
	if err != nil {
		return err
	}
	for _, st := range e.model.States {
		if run&st.Mask == 0 {
			continue
		}
		if err := e.execState(ctx, st.Mask); err != nil {
			return err
		}
	}
	e.ready |= e.scanMergeProgress() | e.scanSyncProgress() | e.scanForkProgress()

	e.logger.Info("dispatch cycle",
		"run_id", e.runID,
		"cycle", e.cycle,
		"executed", e.model.StateNamesFromMask(e.executed),
	)
	e.logger.Debug("dispatched cycle",
		"run_id", e.runID,
		"cycle", e.cycle,
		"ready", e.model.StateNamesFromMask(e.ready),
		"workflow_state", e.model.StateNamesFromMask(e.workflowState),
	)
	return nil
}

// preDispatch folds last cycle's new states into the engine state. The
// workflow state is fixed at this point for the whole cycle.
func (e *Engine) preDispatch() {
	if e.cycle > e.model.StallCycles {
		delete(e.history, e.cycle-e.model.StallCycles-2)
	}
	e.history[e.cycle] = make(map[uint64]uint64)
	e.executed = 0

	e.engineState |= e.ready
	e.ready = e.deferred
	e.deferred = 0
	e.workflowState = e.engineState
}

// makeExecReady returns the states to execute this cycle. Terminal set
// alongside other states is deferred so it runs alone after them.
func (e *Engine) makeExecReady() (uint64, error) {
	run := e.engineState
	term := e.model.TerminalMask
	if run&term != 0 && run != term {
		e.deferred = term
		run &^= term
	}
	if run == 0 {
		return 0, e.fail(ErrCodeNoReadyStates, "STALLED: No ready states! DispatchCycle: %d DispatchState: %s DispatchLastTransitions: %s",
			e.cycle, e.dispatchName, e.formatLastTransitions(e.history[e.cycle-1]))
	}
	return run, nil
}

// execState runs one state handler and applies the transitions it emitted.
func (e *Engine) execState(ctx context.Context, bit uint64) error {
	st, ok := e.model.StateByMask(bit)
	if !ok {
		return e.fail(ErrCodeEngineFault, "no state for mask %d", bit)
	}
	e.dispatchMask = bit
	e.dispatchName = st.Name
	e.executed |= bit
	e.history[e.cycle][bit] = 0
	pending := e.app.Pending()
	pending.Reset()

	ctx, span := e.tracer.Start(ctx, "state "+st.Name, trace.WithAttributes(
		attribute.String("workflow.run_id", e.runID),
		attribute.Int("workflow.cycle", e.cycle),
		attribute.String("workflow.handler", st.Handler),
	))
	defer span.End()

	if err := e.runner.RunState(ctx, e, st); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var re *RuntimeError
		if errors.As(err, &re) {
			if re.RunID == "" {
				re.RunID, re.Cycle = e.runID, e.cycle
			}
			return err
		}
		rerr := e.fail(ErrCodeHandlerFailed, "state %s handler %s failed: %v", st.Name, st.Handler, err)
		rerr.Err = err
		return rerr
	}

	tm := pending.Mask()
	for _, name := range pending.Names() {
		t, ok := e.model.TransitionMask(name)
		if !ok || t == 0 {
			return e.fail(ErrCodeInvalidTransitionName, "ABORT: Invalid transition name: %s from state %s", name, st.Name)
		}
		tm |= t
	}
	if _, err := e.stateTransition(tm); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	emitted := e.history[e.cycle][bit]
	span.SetAttributes(attribute.StringSlice("workflow.transitions", e.transitionNames(emitted)))

	step := Step{
		Seq:             e.clock.Next(),
		RunID:           e.runID,
		Cycle:           e.cycle,
		State:           st.Name,
		StateMask:       bit,
		Transitions:     emitted,
		TransitionNames: e.transitionNames(emitted),
		EngineState:     e.engineState,
		WorkflowState:   e.workflowState,
	}
	e.steps = append(e.steps, step)
	e.notify(ctx, "state executed", func(o Observer) error {
		return o.StateExecuted(ctx, step)
	})
	return nil
}

func (e *Engine) transitionNames(tm uint64) []string {
	var out []string
	mask.Each(tm, func(bit uint64) {
		out = append(out, e.model.TransitionName(bit))
	})
	return out
}

func allZero(m map[uint64]uint64) bool {
	for _, v := range m {
		if v != 0 {
			return false
		}
	}
	return true
}
