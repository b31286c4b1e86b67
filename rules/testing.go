//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// BenchmarkLoop detects the classic benchmark iteration patterns and
// suggests b.Loop() from Go 1.24.
//
// Old pattern:
//
//	for i := 0; i < b.N; i++ { work() }
//
// New pattern:
//
//	for b.Loop() { work() }
//
// b.Loop() runs setup once per -count and keeps the compiler from
// optimizing the body away.
//
// See: https://pkg.go.dev/testing#B.Loop
func BenchmarkLoop(m dsl.Matcher) {
	// Loop variable may be used in the body, so no auto-fix here.
	m.Match(
		`for $i := 0; $i < $b.N; $i++ { $*body }`,
		`for $i := range $b.N { $*body }`,
	).
		Where(m["b"].Type.Is("*testing.B")).
		Report("use for $b.Loop() { ... } instead of iterating to $b.N (Go 1.24+); if the body needs $i, declare it separately")

	m.Match(
		`for range $b.N { $*body }`,
	).
		Where(m["b"].Type.Is("*testing.B")).
		Report("use for $b.Loop() { ... } instead of for range $b.N (Go 1.24+)").
		Suggest("for $b.Loop() { $body }")
}

// TestContext detects context.Background() and context.TODO() in test files
// and suggests t.Context() from Go 1.24, which is canceled automatically
// when the test finishes.
//
// Old pattern:
//
//	ctx := context.Background()
//
// New pattern:
//
//	ctx := t.Context()
//
// See: https://pkg.go.dev/testing#T.Context
func TestContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx = context.Background()`,
		`$ctx := context.TODO()`,
		`$ctx = context.TODO()`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() for automatic cancellation when the test completes (Go 1.24+)")

	m.Match(
		`$fn(context.Background(), $*args)`,
		`$fn(context.TODO(), $*args)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of a root context (Go 1.24+)")
}
