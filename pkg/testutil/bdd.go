package testutil

import "testing"

// Scenario steps run as nested subtests so a failure reads as the sentence
// that broke:
//
//	testutil.Given(t, "a loader that knows epic_goal", func(t *testing.T) {
//		testutil.When(t, "the TTL passes", func(t *testing.T) {
//			testutil.Then(t, "the value is reloaded", ...)
//			testutil.And(t, "the loader ran twice", ...)
//		})
//	})
//
// Each step reports whether it passed, so a scenario can stop early once a
// precondition fails.
func Given(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Then", desc, fn)
}

// And continues the previous step.
func And(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "And", desc, fn)
}

func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run(keyword+" "+desc, fn)
}
