// Package share grants recipients access to produced artifacts and records
// the per-record outcome of a share run.
package share

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/kyleking/slidefill/internal/errors"
)

// Roles accepted by the document service
const (
	RoleReader    = "reader"
	RoleCommenter = "commenter"
	RoleWriter    = "writer"
)

// Status is the furthest step a record reached
type Status int

const (
	StatusPending Status = iota
	StatusCreated
	StatusPopulated
	StatusShared
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCreated:
		return "created"
	case StatusPopulated:
		return "populated"
	case StatusShared:
		return "shared"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status name in JSON output
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome tracks one record through copy, populate and share
type Outcome struct {
	Index      int    `json:"index"`
	Title      string `json:"title"`
	ArtifactID string `json:"artifact_id,omitempty"`
	Status     Status `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// Fail marks the outcome failed, keeping any artifact ID already assigned
func (o Outcome) Fail(reason string) Outcome {
	o.Status = StatusFailed
	o.Reason = reason

	return o
}

// Report summarises a share run. Outcomes follow the order of the filtered records.
type Report struct {
	ID        string        `json:"id"`
	Recipient string        `json:"recipient"`
	Role      string        `json:"role,omitempty"`
	Shared    int           `json:"shared"`
	Outcomes  []Outcome     `json:"outcomes"`
	Duration  time.Duration `json:"duration"`
}

// NewReport counts shared outcomes
func NewReport(id, recipient string, outcomes []Outcome, duration time.Duration) *Report {
	r := &Report{ID: id, Recipient: recipient, Outcomes: outcomes, Duration: duration}

	for _, o := range outcomes {
		if o.Status == StatusShared {
			r.Shared++
		}
	}

	return r
}

// Failed returns the outcomes that did not reach the shared state
func (r *Report) Failed() []Outcome {
	var out []Outcome

	for _, o := range r.Outcomes {
		if o.Status != StatusShared {
			out = append(out, o)
		}
	}

	return out
}

// Granter gives a recipient access to an artifact without notifying them
type Granter interface {
	Grant(ctx context.Context, artifactID, recipient, role string) error
}

// Broker applies grants to populated outcomes
type Broker struct {
	granter Granter
	role    string
}

// NewBroker creates a broker granting role; an empty role means writer
func NewBroker(granter Granter, role string) *Broker {
	if role == "" {
		role = RoleWriter
	}

	return &Broker{granter: granter, role: role}
}

// Role returns the access level granted
func (b *Broker) Role() string { return b.role }

// Share grants recipient access to a populated outcome. Outcomes in any other
// state are returned unchanged.
func (b *Broker) Share(ctx context.Context, outcome Outcome, recipient string) Outcome {
	if outcome.Status != StatusPopulated {
		return outcome
	}

	if err := ctx.Err(); err != nil {
		return outcome.Fail("cancelled: " + err.Error())
	}

	if err := b.granter.Grant(ctx, outcome.ArtifactID, recipient, b.role); err != nil {
		return outcome.Fail("share failed: " + errors.Wrap(err, errors.ErrTypeArtifact, "grant").Error())
	}

	outcome.Status = StatusShared
	outcome.Reason = ""

	return outcome
}

// ValidateRecipient accepts a single address of the form local@domain.tld
func ValidateRecipient(addr string) error {
	invalid := func(reason string) error {
		return errors.Newf(errors.ErrTypeInvalidRecipient, "invalid recipient: %s", reason).
			WithSubject(addr).
			WithSuggestion("Use a single email address such as name@example.com")
	}

	if addr == "" {
		return invalid("address is empty")
	}

	if strings.IndexFunc(addr, unicode.IsSpace) >= 0 {
		return invalid("address contains whitespace")
	}

	if strings.Count(addr, "@") != 1 {
		return invalid("address must contain exactly one @")
	}

	local, domain, _ := strings.Cut(addr, "@")
	if local == "" {
		return invalid("local part is empty")
	}

	dot := strings.Index(domain, ".")
	if dot <= 0 || strings.HasSuffix(domain, ".") || strings.Contains(domain, "..") {
		return invalid("domain must contain a dot between labels")
	}

	return nil
}
