package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"github.com/hazyhaar/sosrelay/locator"
)

// Page is an open tab. It implements locator.Finder.
type Page struct {
	page *rod.Page
}

// Find waits until an element matching s is present or ctx ends. Rod polls
// the DOM with its default backoff until the context is done.
func (p *Page) Find(ctx context.Context, s locator.Spec) (locator.Element, error) {
	pg := p.page.Context(ctx)
	var (
		el  *rod.Element
		err error
	)
	switch s.Kind {
	case locator.XPath:
		el, err = pg.ElementX(s.Expr)
	case locator.CSS:
		el, err = pg.Element(s.Expr)
	default:
		return nil, fmt.Errorf("browser: unsupported locator kind %q", s.Kind)
	}
	if err != nil {
		return nil, err
	}
	return &Element{el: el}, nil
}

// Element is a located DOM element.
type Element struct {
	el *rod.Element
}

// Press focuses the element and types keys into it.
func (e *Element) Press(ctx context.Context, keys ...input.Key) error {
	return e.el.Context(ctx).Type(keys...)
}
