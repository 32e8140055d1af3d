package model

// Version constants of the engine, reported alongside each workflow's own
// version pair.
const (
	EngineVersion = "1.0"
	EngineBuild   = "1"
)
