// Package types provides the shared value types of the onboarding domain:
// entity kinds, sections, composite references and the review mode flag.
// These replace the hyphen-joined DOM ids ("member-john-smith-owner-details")
// the browser form used as keys.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRef is returned for kinds and section keys that cannot be parsed.
var ErrInvalidRef = errors.New("invalid reference")

// Kind classifies an onboarding entity.
type Kind string

const (
	KindMember  Kind = "member"
	KindAccount Kind = "account"
)

// AllKinds lists the entity kinds in sidebar order.
var AllKinds = []Kind{KindMember, KindAccount}

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	return k == KindMember || k == KindAccount
}

// ParseKind converts a wire string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown entity kind %q", ErrInvalidRef, s)
	}
	return k, nil
}

// Section identifies a sub-page of an entity's data collection.
type Section string

const (
	SectionOwnerDetails Section = "owner-details"
	SectionFirmDetails  Section = "firm-details"
	SectionAccountSetup Section = "account-setup"
	SectionFunding      Section = "funding"
)

// AllSections lists every section in sidebar order.
var AllSections = []Section{
	SectionOwnerDetails,
	SectionAccountSetup,
	SectionFunding,
	SectionFirmDetails,
}

// EntityRef is the stable identity of a member or account.
type EntityRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (r EntityRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

// Section returns a SectionRef for the given section of this entity.
func (r EntityRef) Section(s Section) SectionRef {
	return SectionRef{Kind: r.Kind, EntityID: r.ID, Section: s}
}

// SectionRef addresses one section of one entity.
type SectionRef struct {
	Kind     Kind    `json:"kind"`
	EntityID string  `json:"entity_id"`
	Section  Section `json:"section"`
}

// Entity returns the owning entity reference.
func (r SectionRef) Entity() EntityRef {
	return EntityRef{Kind: r.Kind, ID: r.EntityID}
}

func (r SectionRef) String() string {
	return string(r.Kind) + "/" + r.EntityID + "/" + string(r.Section)
}

// Key renders the legacy hyphen-joined DOM id for this section.
func (r SectionRef) Key() string {
	return string(r.Kind) + "-" + r.EntityID + "-" + string(r.Section)
}

// ParseSectionKey parses a legacy DOM id such as
// "account-joint-account-firm-details". Entity ids and section names both
// contain hyphens, so the section is matched as a known suffix rather than by
// splitting on the last hyphen.
func ParseSectionKey(key string) (SectionRef, error) {
	kindPart, rest, ok := strings.Cut(key, "-")
	if !ok {
		return SectionRef{}, fmt.Errorf("%w: malformed section key %q", ErrInvalidRef, key)
	}
	kind, err := ParseKind(kindPart)
	if err != nil {
		return SectionRef{}, err
	}
	for _, s := range AllSections {
		suffix := "-" + string(s)
		if id, found := strings.CutSuffix(rest, suffix); found && id != "" {
			return SectionRef{Kind: kind, EntityID: id, Section: s}, nil
		}
	}
	return SectionRef{}, fmt.Errorf("%w: no known section in key %q", ErrInvalidRef, key)
}

// Mode is the global edit/review toggle.
type Mode string

const (
	ModeEdit   Mode = "edit"
	ModeReview Mode = "review"
)

// Toggle returns the opposite mode.
func (m Mode) Toggle() Mode {
	if m == ModeReview {
		return ModeEdit
	}
	return ModeReview
}
