package mdm

import (
	"errors"
	"testing"
)

func restrictionsPayload(id string, allowITunes bool) Payload {
	r := DefaultRestrictions()
	r.AllowITunes = allowITunes
	return Payload{
		Kind:         PayloadKindRestrictions,
		UUID:         "u-" + id,
		Identifier:   id,
		Restrictions: &r,
	}
}

func TestPayloadOfKindSelectsByKind(t *testing.T) {
	p := &Profile{ID: 1, Identifier: "com.example.p1", UUID: "orig"}
	if err := p.SetPayloads([]Payload{restrictionsPayload("com.example.p1.restrictions", false)}); err != nil {
		t.Fatalf("SetPayloads: %v", err)
	}
	idx, pld, err := p.PayloadOfKind(PayloadKindRestrictions)
	if err != nil {
		t.Fatalf("PayloadOfKind: %v", err)
	}
	if idx != 0 || pld.Restrictions == nil || pld.Restrictions.AllowITunes {
		t.Fatalf("unexpected payload idx=%d %+v", idx, pld)
	}
}

func TestPayloadOfKindRejectsAmbiguity(t *testing.T) {
	p := &Profile{ID: 1, Identifier: "com.example.p1"}
	if err := p.SetPayloads([]Payload{
		restrictionsPayload("a", true),
		restrictionsPayload("b", false),
	}); err != nil {
		t.Fatalf("SetPayloads: %v", err)
	}
	if _, _, err := p.PayloadOfKind(PayloadKindRestrictions); !errors.Is(err, ErrAmbiguousPayload) {
		t.Fatalf("want ErrAmbiguousPayload, got %v", err)
	}
}

func TestPayloadOfKindMissing(t *testing.T) {
	p := &Profile{ID: 1, Identifier: "com.example.p1"}
	if _, _, err := p.PayloadOfKind(PayloadKindRestrictions); !errors.Is(err, ErrPayloadMissing) {
		t.Fatalf("want ErrPayloadMissing, got %v", err)
	}
}

func TestReplacePayloadKeepsIdentifierAndRotatesUUIDs(t *testing.T) {
	p := &Profile{ID: 1, Identifier: "com.example.p1", UUID: "orig"}
	if err := p.SetPayloads([]Payload{restrictionsPayload("com.example.p1.restrictions", true)}); err != nil {
		t.Fatalf("SetPayloads: %v", err)
	}
	idx, pld, _ := p.PayloadOfKind(PayloadKindRestrictions)
	pld.Restrictions.AllowITunes = false
	oldPayloadUUID := pld.UUID
	if err := p.ReplacePayload(idx, pld); err != nil {
		t.Fatalf("ReplacePayload: %v", err)
	}
	if p.Identifier != "com.example.p1" {
		t.Fatalf("identifier changed: %q", p.Identifier)
	}
	if p.UUID == "orig" {
		t.Fatalf("profile uuid not rotated")
	}
	_, got, _ := p.PayloadOfKind(PayloadKindRestrictions)
	if got.UUID == oldPayloadUUID || got.Restrictions.AllowITunes {
		t.Fatalf("payload not replaced: %+v", got)
	}
}

func TestSetPayloadsValidatesVariant(t *testing.T) {
	p := &Profile{}
	err := p.SetPayloads([]Payload{{Kind: PayloadKindRestrictions, Identifier: "x"}})
	if err == nil {
		t.Fatalf("expected error for restrictions payload without body")
	}
	err = p.SetPayloads([]Payload{{Kind: "wifi", Identifier: "x"}})
	if err == nil {
		t.Fatalf("expected error for unknown payload kind")
	}
}
