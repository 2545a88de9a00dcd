package chmigrate

type OptionFunc func(*Migrator) error
type ActionConfigurator func(a *action)

type action struct {
	steps   int
	limited bool
}

func newAction(cfs ...ActionConfigurator) *action {
	act := new(action)
	for _, f := range cfs {
		f(act)
	}

	return act
}

// WithSteps limits migrate to the first steps pending migrations and
// makes rollback revert the steps most recent ones
func WithSteps(steps int) ActionConfigurator {
	return func(a *action) {
		a.steps = steps
		a.limited = true
	}
}

// WithCloser registers an extra resource to be released together with the migrator
func WithCloser(f CloserFunc) OptionFunc {
	return func(m *Migrator) error {
		m.closerFns = append(m.closerFns, f)
		return nil
	}
}
