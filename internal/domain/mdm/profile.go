package mdm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Profile is a configuration profile. Identifier never changes after creation; UUID
// is regenerated whenever payload content changes.
type Profile struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Identifier  string         `gorm:"column:identifier;not null;uniqueIndex" json:"identifier"`
	UUID        string         `gorm:"column:uuid;not null" json:"uuid"`
	DisplayName string         `gorm:"column:display_name" json:"display_name"`
	Payloads    datatypes.JSON `gorm:"column:payloads" json:"payloads"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "profile" }

// ProfileRef is the slice of a profile reconciliation needs: the id for installs and
// the identifier for removals.
type ProfileRef struct {
	ID         uint   `json:"id"`
	Identifier string `json:"identifier"`
}

func (p *Profile) Ref() ProfileRef {
	return ProfileRef{ID: p.ID, Identifier: p.Identifier}
}

func (p *Profile) DecodePayloads() ([]Payload, error) {
	if p == nil || len(p.Payloads) == 0 {
		return nil, nil
	}
	var out []Payload
	if err := json.Unmarshal(p.Payloads, &out); err != nil {
		return nil, fmt.Errorf("decode payloads of profile %d: %w", p.ID, err)
	}
	return out, nil
}

func (p *Profile) SetPayloads(payloads []Payload) error {
	for i := range payloads {
		if err := payloads[i].Validate(); err != nil {
			return fmt.Errorf("payload %d: %w", i, err)
		}
	}
	raw, err := json.Marshal(payloads)
	if err != nil {
		return err
	}
	p.Payloads = datatypes.JSON(raw)
	return nil
}

// PayloadOfKind returns the index and value of the single payload of kind. Profiles
// holding zero or several payloads of that kind are rejected rather than guessed at.
func (p *Profile) PayloadOfKind(kind PayloadKind) (int, Payload, error) {
	payloads, err := p.DecodePayloads()
	if err != nil {
		return -1, Payload{}, err
	}
	found := -1
	for i := range payloads {
		if payloads[i].Kind != kind {
			continue
		}
		if found >= 0 {
			return -1, Payload{}, fmt.Errorf("%w: profile %q has more than one %s payload", ErrAmbiguousPayload, p.Identifier, kind)
		}
		found = i
	}
	if found < 0 {
		return -1, Payload{}, fmt.Errorf("%w: profile %q has no %s payload", ErrPayloadMissing, p.Identifier, kind)
	}
	return found, payloads[found], nil
}

// ReplacePayload swaps the payload at index and regenerates the payload and profile
// UUIDs so devices see a changed profile.
func (p *Profile) ReplacePayload(index int, next Payload) error {
	payloads, err := p.DecodePayloads()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(payloads) {
		return fmt.Errorf("payload index %d out of range", index)
	}
	next.UUID = uuid.NewString()
	payloads[index] = next
	if err := p.SetPayloads(payloads); err != nil {
		return err
	}
	p.UUID = uuid.NewString()
	return nil
}
