// Compiled author and item predicates.
//
// Criteria in policy documents are declarative (see policy.AuthorCriteria and policy.ItemCriteria). They are compiled once, when the execution graph is built, and then matched against any number of items.
package criteria

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bluesky-social/modpolicy/policy"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var comparisonRegex = regexp.MustCompile(`^\s*(<=|>=|==|=|<|>)?\s*(-?\d+(?:\.\d+)?)\s*(%|[a-zA-Z]+)?\s*$`)

var durationUnits = map[string]time.Duration{
	"ms":      time.Millisecond,
	"s":       time.Second,
	"sec":     time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"m":       time.Minute,
	"min":     time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       Day,
	"day":     Day,
	"days":    Day,
	"w":       Week,
	"week":    Week,
	"weeks":   Week,
	"month":   Month,
	"months":  Month,
	"y":       Year,
	"year":    Year,
	"years":   Year,
}

// A parsed numeric comparison, like "> 30 days", "<= 5" or ">= 40%". A bare number means ">=".
type Comparison struct {
	Op    string
	Value float64
	// duration unit or "%"; empty for plain numbers
	Unit string
}

func ParseComparison(s string) (*Comparison, error) {
	m := comparisonRegex.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: invalid comparison %q", policy.ErrSchemaValidation, s)
	}
	c := &Comparison{Op: m[1], Unit: strings.ToLower(m[3])}
	switch c.Op {
	case "":
		c.Op = ">="
	case "=":
		c.Op = "=="
	}
	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid comparison %q: %w", policy.ErrSchemaValidation, s, err)
	}
	c.Value = v
	if c.Unit != "" && c.Unit != "%" {
		if _, ok := durationUnits[c.Unit]; !ok {
			return nil, fmt.Errorf("%w: unknown unit %q in comparison %q", policy.ErrSchemaValidation, m[3], s)
		}
	}
	return c, nil
}

func (c *Comparison) IsDuration() bool {
	return c.Unit != "" && c.Unit != "%"
}

func (c *Comparison) IsPercent() bool {
	return c.Unit == "%"
}

// Only meaningful if IsDuration.
func (c *Comparison) Duration() time.Duration {
	return time.Duration(c.Value * float64(durationUnits[c.Unit]))
}

func (c *Comparison) Test(v float64) bool {
	switch c.Op {
	case "<":
		return v < c.Value
	case "<=":
		return v <= c.Value
	case ">":
		return v > c.Value
	case "==":
		return v == c.Value
	default:
		return v >= c.Value
	}
}

func (c *Comparison) TestDuration(d time.Duration) bool {
	target := c.Duration()
	switch c.Op {
	case "<":
		return d < target
	case "<=":
		return d <= target
	case ">":
		return d > target
	case "==":
		return d == target
	default:
		return d >= target
	}
}

func (c *Comparison) String() string {
	v := strconv.FormatFloat(c.Value, 'f', -1, 64)
	switch {
	case c.Unit == "%":
		return c.Op + " " + v + "%"
	case c.Unit != "":
		return c.Op + " " + v + " " + c.Unit
	}
	return c.Op + " " + v
}

// Parses a duration written either the way policy documents do ("30 days", "1 week") or as a Go duration ("720h").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	c, err := ParseComparison(s)
	if err != nil || strings.ContainsAny(s, "<>=") || !c.IsDuration() {
		return 0, fmt.Errorf("%w: invalid duration %q", policy.ErrSchemaValidation, s)
	}
	return c.Duration(), nil
}
