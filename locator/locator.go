// CLAUDE:SUMMARY Resolves the first matching UI element from an ordered list of XPath/CSS candidates, each under its own bounded wait.
// Package locator finds a UI element by trying candidate selectors in order.
//
// Candidates are ordered most specific first. When the target app redesigns
// its markup, a new candidate is appended instead of rewriting callers.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"
)

// Kind selects the selector language of a Spec.
type Kind string

const (
	XPath Kind = "xpath"
	CSS   Kind = "css"
)

// Spec is one candidate selector.
type Spec struct {
	Kind Kind   `yaml:"kind" json:"kind"`
	Expr string `yaml:"expr" json:"expr"`
}

func (s Spec) String() string { return string(s.Kind) + " " + s.Expr }

// Validate rejects unknown kinds and empty expressions.
func (s Spec) Validate() error {
	switch s.Kind {
	case XPath, CSS:
	default:
		return fmt.Errorf("locator: unknown kind %q", s.Kind)
	}
	if strings.TrimSpace(s.Expr) == "" {
		return fmt.Errorf("locator: empty %s expression", s.Kind)
	}
	return nil
}

// Element is a resolved UI element that accepts keystrokes.
type Element interface {
	Press(ctx context.Context, keys ...input.Key) error
}

// Finder waits for an element matching s to be present. Implementations
// must keep retrying until ctx is done, then return ctx's error.
type Finder interface {
	Find(ctx context.Context, s Spec) (Element, error)
}

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("locator: element not found")

// NotFoundError lists the candidates that timed out, in the order tried.
type NotFoundError struct {
	Tried []Spec
	Last  error
}

func (e *NotFoundError) Error() string {
	parts := make([]string, len(e.Tried))
	for i, s := range e.Tried {
		parts[i] = s.String()
	}
	msg := fmt.Sprintf("locator: none of %d candidates matched [%s]", len(e.Tried), strings.Join(parts, " | "))
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *NotFoundError) Unwrap() error { return e.Last }

// Resolve tries candidates in order, giving each up to maxWait, and returns
// the first element found together with the Spec that matched. A candidate
// timing out is not an error; only exhausting the list is. If ctx itself
// ends mid-way, ctx's error is returned instead of ErrNotFound.
func Resolve(ctx context.Context, f Finder, candidates []Spec, maxWait time.Duration) (Element, Spec, error) {
	if len(candidates) == 0 {
		return nil, Spec{}, &NotFoundError{}
	}
	nf := &NotFoundError{}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, Spec{}, err
		}
		el, err := find(ctx, f, c, maxWait)
		if err == nil && el != nil {
			return el, c, nil
		}
		nf.Tried = append(nf.Tried, c)
		nf.Last = err
	}
	if err := ctx.Err(); err != nil {
		return nil, Spec{}, err
	}
	return nil, Spec{}, nf
}

func find(ctx context.Context, f Finder, s Spec, maxWait time.Duration) (Element, error) {
	wctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()
	return f.Find(wctx, s)
}
