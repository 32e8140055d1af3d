// Package workflow binds compiled models to state handlers.
//
// A Workflow owns a compiled model and a Registry of handlers keyed by the
// handler name each state declares (by default StatePrefix + State +
// "State"). It implements engine.StateRunner, so every engine it creates
// calls back into it to run states:
//
//	reg := workflow.NewRegistry()
//	reg.RegisterFunc("OrderReceiveState", receive)
//	wf, err := workflow.Load("order.yaml", reg)
//	app, err := wf.NewContext(params)
//	res, err := wf.Run(ctx, app)
//
// Handlers of singleton states are built once per Registry; prototype
// states get a fresh handler from their factory on every execution.
package workflow
