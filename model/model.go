package model

import "context"

// Summary holds the results of an operation for display.
type Summary struct {
	Done    []string
	Skipped []string
	Failed  []string
	Message string
}

// Empty reports whether the summary lists nothing.
func (s Summary) Empty() bool {
	return len(s.Done) == 0 && len(s.Skipped) == 0 && len(s.Failed) == 0
}

// Stage is one step of a multi-step command. Stages run in order and the
// first error stops the sequence.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// ProgressUpdate reports that stage current of total, named name, started.
type ProgressUpdate func(current, total int, name string)

// RunStages runs stages in order, calling progress before each one.
func RunStages(ctx context.Context, stages []Stage, progress ProgressUpdate) error {
	for i, s := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress != nil {
			progress(i+1, len(stages), s.Name)
		}
		if err := s.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}
