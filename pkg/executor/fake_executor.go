package executor

import "context"

// FakeExecutor records every command it was asked to run and returns a
// scripted error, if any, for tests that exercise promote/follow
// handling without spawning real processes.
type FakeExecutor struct {
	Err      error
	Commands []string
}

func (f *FakeExecutor) Run(ctx context.Context, command string) error {
	f.Commands = append(f.Commands, command)
	return f.Err
}
