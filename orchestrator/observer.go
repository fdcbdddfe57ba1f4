package orchestrator

import "context"

// Observer receives a job's progress. Calls come from the job's worker
// goroutine, never from the goroutine that submitted the job. OnChunk may
// call Terminate.
type Observer interface {
	// OnChunk receives the whole accumulated output after each new chunk.
	OnChunk(accumulated string)
	OnFailed(detail string)
	OnSucceeded(final string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Chunk     func(accumulated string)
	Failed    func(detail string)
	Succeeded func(final string)
}

func (f ObserverFuncs) OnChunk(accumulated string) {
	if f.Chunk != nil {
		f.Chunk(accumulated)
	}
}

func (f ObserverFuncs) OnFailed(detail string) {
	if f.Failed != nil {
		f.Failed(detail)
	}
}

func (f ObserverFuncs) OnSucceeded(final string) {
	if f.Succeeded != nil {
		f.Succeeded(final)
	}
}

// Recorder is handed every job once it reaches a terminal state.
type Recorder interface {
	Record(ctx context.Context, snap Snapshot) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, snap Snapshot) error

func (f RecorderFunc) Record(ctx context.Context, snap Snapshot) error {
	return f(ctx, snap)
}
