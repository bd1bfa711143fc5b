package relay

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/hazyhaar/sosrelay/delivery"
	"github.com/hazyhaar/sosrelay/severity"
)

// Contact is one emergency contact.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// SOS is an emergency raised on behalf of a person.
type SOS struct {
	Contacts    []Contact `json:"contacts"`
	MapsLink    string    `json:"maps_link"`
	TrackURL    string    `json:"track_url,omitempty"`
	Description string    `json:"description,omitempty"`
}

// SOSReceipt lists the queued request IDs, in contact order.
type SOSReceipt struct {
	RequestIDs []string             `json:"request_ids"`
	Severity   *severity.Prediction `json:"severity,omitempty"`
}

// ComposeSOS builds the alert text. Free-text fields are stripped of markup
// and links must be absolute http(s) URLs.
func (s *Service) ComposeSOS(sos SOS) (string, error) {
	maps, err := cleanLink(sos.MapsLink)
	if err != nil {
		return "", fmt.Errorf("maps_link: %w", err)
	}
	var b strings.Builder
	b.WriteString("🚨 EMERGENCY ALERT 🚨\nI am in danger. Please help immediately!\n")
	if maps != "" {
		b.WriteString("\n📍 Live Location:\n" + maps + "\n")
	}
	if sos.TrackURL != "" {
		track, err := cleanLink(sos.TrackURL)
		if err != nil {
			return "", fmt.Errorf("track_url: %w", err)
		}
		b.WriteString("\n(Real-time tracking started)\nTrack me live: " + track + "\n")
	}
	if d := s.plain(sos.Description); d != "" {
		b.WriteString("\n" + d + "\n")
	}
	b.WriteString("\n" + s.signature)
	return b.String(), nil
}

// plain strips markup and returns readable text; the strict policy
// escapes entities, which a chat message would show verbatim.
func (s *Service) plain(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.strip.Sanitize(text)))
}

func cleanLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("must be an absolute http(s) URL")
	}
	return u.String(), nil
}

// RaiseSOS composes the message and queues one request per contact. The
// description is classified when a Classifier is set; a failing classifier
// does not block the alert.
func (s *Service) RaiseSOS(ctx context.Context, sos SOS) (*SOSReceipt, error) {
	if len(sos.Contacts) == 0 {
		return nil, fmt.Errorf("%w: no contacts", delivery.ErrInvalidRequest)
	}
	msg, err := s.ComposeSOS(sos)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", delivery.ErrInvalidRequest, err)
	}

	reqs := make([]delivery.Request, 0, len(sos.Contacts))
	for i, c := range sos.Contacts {
		r, err := delivery.NewRequest(c.Phone, msg)
		if err != nil {
			return nil, fmt.Errorf("contact %d: %w", i, err)
		}
		reqs = append(reqs, r)
	}

	receipt := &SOSReceipt{RequestIDs: []string{}}
	for _, r := range reqs {
		if err := s.Enqueue(ctx, r); err != nil {
			if len(receipt.RequestIDs) == 0 {
				return nil, err
			}
			s.logger.Error("relay: sos partially queued", "queued", len(receipt.RequestIDs), "error", err)
			return receipt, err
		}
		receipt.RequestIDs = append(receipt.RequestIDs, r.ID)
	}

	if s.classifier != nil && strings.TrimSpace(sos.Description) != "" {
		p, err := s.classifier.Predict(ctx, s.plain(sos.Description))
		if err != nil {
			s.logger.Warn("relay: severity unavailable", "error", err)
		} else {
			receipt.Severity = p
		}
	}
	return receipt, nil
}
