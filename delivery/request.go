// CLAUDE:SUMMARY Delivery request construction: digits-only phone normalisation, validation and compose URL encoding.
package delivery

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/sosrelay/idgen"
)

// ErrInvalidRequest is returned for a request missing its phone or message.
var ErrInvalidRequest = errors.New("delivery: invalid request")

// Request is one alert to deliver. Build it with NewRequest; treat it as
// read-only afterwards.
type Request struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"` // digits only
	Message     string    `json:"message"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewRequest normalises phone to its digits and trims message. Either one
// ending up empty yields ErrInvalidRequest.
func NewRequest(phone, message string) (Request, error) {
	r := Request{
		ID:          idgen.Request(),
		Phone:       NormalizePhone(phone),
		Message:     strings.TrimSpace(message),
		RequestedAt: time.Now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// NormalizePhone keeps only the ASCII digits of s, dropping a leading '+',
// spaces, dashes and parentheses.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate reports whether r may enter the strategy chain.
func (r Request) Validate() error {
	if r.Phone == "" {
		return fmt.Errorf("%w: phone number is required", ErrInvalidRequest)
	}
	if r.Phone != NormalizePhone(r.Phone) {
		return fmt.Errorf("%w: phone %q is not digits-only", ErrInvalidRequest, r.Phone)
	}
	if r.Message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	return nil
}

// ComposeURL returns base/send?phone=<digits>&text=<message>. Spaces are
// encoded as %20, not '+', which the web app would render literally.
func (r Request) ComposeURL(base string) string {
	text := strings.ReplaceAll(url.QueryEscape(r.Message), "+", "%20")
	return strings.TrimRight(base, "/") + "/send?phone=" + r.Phone + "&text=" + text
}
