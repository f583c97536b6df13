package mdm

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadMissing   = errors.New("payload missing")
	ErrAmbiguousPayload = errors.New("ambiguous payload")
)

// PayloadKind is the closed set of payload variants a profile may carry.
type PayloadKind string

const (
	PayloadKindRestrictions PayloadKind = "restrictions"
)

var PayloadKinds = []PayloadKind{
	PayloadKindRestrictions,
}

func (k PayloadKind) Valid() bool {
	for _, v := range PayloadKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Payload is a tagged variant: Kind selects which of the variant fields is populated.
type Payload struct {
	Kind         PayloadKind          `json:"kind"`
	UUID         string               `json:"uuid"`
	Identifier   string               `json:"identifier"`
	DisplayName  string               `json:"display_name,omitempty"`
	Restrictions *RestrictionsPayload `json:"restrictions,omitempty"`
}

func (p Payload) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	if p.Identifier == "" {
		return fmt.Errorf("%s payload has no identifier", p.Kind)
	}
	switch p.Kind {
	case PayloadKindRestrictions:
		if p.Restrictions == nil {
			return fmt.Errorf("%s payload has no restrictions body", p.Kind)
		}
	}
	return nil
}

// RestrictionsPayload carries the boolean device restriction keys.
type RestrictionsPayload struct {
	AllowITunes          bool `json:"allowiTunes"`
	AllowCamera          bool `json:"allowCamera"`
	AllowScreenShot      bool `json:"allowScreenShot"`
	AllowAppInstall      bool `json:"allowAppInstallation"`
	ForceEncryptedBackup bool `json:"forceEncryptedBackup"`
}

// DefaultRestrictions mirrors the device defaults: everything allowed, nothing forced.
func DefaultRestrictions() RestrictionsPayload {
	return RestrictionsPayload{
		AllowITunes:     true,
		AllowCamera:     true,
		AllowScreenShot: true,
		AllowAppInstall: true,
	}
}
