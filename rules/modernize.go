//go:build ruleguard

// Package gorules defines custom linter rules for Go modernization.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects the manual Add/Done goroutine pattern and suggests
// the wg.Go() method added in Go 1.25.
//
// Old pattern:
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    work()
//	}()
//
// New pattern:
//
//	wg.Go(func() { work() })
//
// See: https://pkg.go.dev/sync#WaitGroup.Go
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern (Go 1.25+)").
		Suggest("$wg.Go(func() { $body })")

	// Same pattern with the group passed into the closure.
	m.Match(
		`$wg.Add(1); go func($param $typ) { defer $param.Done(); $*body }($wg)`,
		`$wg.Add(1); go func($param $typ) { defer $param.Done(); $*body }(&$wg)`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern (Go 1.25+)")
}

// MinMaxBuiltin detects integer min/max computed through math.Min/math.Max
// float conversions and suggests the generic builtins from Go 1.21.
//
// Old pattern:
//
//	n := int(math.Min(float64(a), float64(b)))
//
// New pattern:
//
//	n := min(a, b)
//
// See: https://pkg.go.dev/builtin#min
func MinMaxBuiltin(m dsl.Matcher) {
	m.Match(
		`int(math.Min(float64($a), float64($b)))`,
		`int64(math.Min(float64($a), float64($b)))`,
	).
		Report("use min($a, $b) instead of math.Min with float64 conversions (Go 1.21+)").
		Suggest("min($a, $b)")

	m.Match(
		`int(math.Max(float64($a), float64($b)))`,
		`int64(math.Max(float64($a), float64($b)))`,
	).
		Report("use max($a, $b) instead of math.Max with float64 conversions (Go 1.21+)").
		Suggest("max($a, $b)")
}

// SliceSorting detects the type-specific sort helpers and suggests the
// generic slices package equivalents from Go 1.21.
//
// Old pattern:
//
//	sort.Float64s(residuals)
//
// New pattern:
//
//	slices.Sort(residuals)
//
// See: https://pkg.go.dev/slices#Sort
func SliceSorting(m dsl.Matcher) {
	m.Match(
		`sort.Ints($s)`,
		`sort.Strings($s)`,
		`sort.Float64s($s)`,
	).
		Report("use slices.Sort($s) instead of the type-specific sort helper (Go 1.21+)").
		Suggest("slices.Sort($s)")

	m.Match(
		`sort.IntsAreSorted($s)`,
		`sort.StringsAreSorted($s)`,
		`sort.Float64sAreSorted($s)`,
	).
		Report("use slices.IsSorted($s) instead of the type-specific sorted check (Go 1.21+)").
		Suggest("slices.IsSorted($s)")
}

// TimeLayoutConstants detects magic date/time layout strings and suggests
// the named constants added in Go 1.20.
//
// Old pattern:
//
//	ts.Format("2006-01-02 15:04:05")
//
// New pattern:
//
//	ts.Format(time.DateTime)
//
// See: https://pkg.go.dev/time#pkg-constants
func TimeLayoutConstants(m dsl.Matcher) {
	m.Match(
		`$t.Format("2006-01-02 15:04:05")`,
	).
		Report(`use $t.Format(time.DateTime) instead of magic layout string (Go 1.20+)`).
		Suggest(`$t.Format(time.DateTime)`)

	m.Match(
		`time.Parse("2006-01-02 15:04:05", $s)`,
	).
		Report(`use time.Parse(time.DateTime, $s) instead of magic layout string (Go 1.20+)`).
		Suggest(`time.Parse(time.DateTime, $s)`)

	m.Match(
		`$t.Format("2006-01-02")`,
	).
		Report(`use $t.Format(time.DateOnly) instead of magic layout string (Go 1.20+)`).
		Suggest(`$t.Format(time.DateOnly)`)

	m.Match(
		`time.Parse("2006-01-02", $s)`,
	).
		Report(`use time.Parse(time.DateOnly, $s) instead of magic layout string (Go 1.20+)`).
		Suggest(`time.Parse(time.DateOnly, $s)`)

	m.Match(
		`$t.Format("15:04:05")`,
	).
		Report(`use $t.Format(time.TimeOnly) instead of magic layout string (Go 1.20+)`).
		Suggest(`$t.Format(time.TimeOnly)`)

	m.Match(
		`time.Parse("15:04:05", $s)`,
	).
		Report(`use time.Parse(time.TimeOnly, $s) instead of magic layout string (Go 1.20+)`).
		Suggest(`time.Parse(time.TimeOnly, $s)`)
}
