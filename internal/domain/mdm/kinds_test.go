package mdm

import (
	"errors"
	"strings"
	"testing"
)

func TestLoadKindTablesEmbedded(t *testing.T) {
	t.Setenv(kindsYAMLEnv, "")
	tables, err := LoadKindTables()
	if err != nil {
		t.Fatalf("LoadKindTables: %v", err)
	}
	for _, kind := range CertificateKinds {
		if _, err := tables.Certificate(kind); err != nil {
			t.Fatalf("certificate %s: %v", kind, err)
		}
	}
	push, _ := tables.Certificate(CertKindPush)
	if !push.RequiresPrivateKey || !push.Required {
		t.Fatalf("push rules: want required with private key, got %+v", push)
	}
	device, _ := tables.Certificate(CertKindDevice)
	if device.Listed {
		t.Fatalf("device certificates must not be listed")
	}
	web, _ := tables.Certificate(CertKindWeb)
	if !web.Creatable || !web.AllowsSubjectField("CN") || web.AllowsSubjectField("emailAddress") {
		t.Fatalf("web rules: unexpected %+v", web)
	}
	restr, err := tables.Payload(PayloadKindRestrictions)
	if err != nil {
		t.Fatalf("payload restrictions: %v", err)
	}
	if restr.PayloadType != "com.apple.applicationaccess" {
		t.Fatalf("payload type: got %q", restr.PayloadType)
	}
}

func TestParseKindTablesRejectsUnknownKind(t *testing.T) {
	data := []byte(`
version: 1
certificate_kinds:
  mdm.bogus:
    title: Nope
payload_kinds:
  restrictions:
    payload_type: com.apple.applicationaccess
    identifier_suffix: restrictions
`)
	_, err := ParseKindTables(data)
	if err == nil || !strings.Contains(err.Error(), "unknown certificate kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestParseKindTablesRequiresEveryKind(t *testing.T) {
	data := []byte(`
version: 1
certificate_kinds:
  mdm.cacert:
    title: CA
payload_kinds:
  restrictions:
    payload_type: com.apple.applicationaccess
    identifier_suffix: restrictions
`)
	_, err := ParseKindTables(data)
	if err == nil || !strings.Contains(err.Error(), "missing from table") {
		t.Fatalf("expected missing kind error, got %v", err)
	}
}

func TestParseKindTablesCreatableNeedsCN(t *testing.T) {
	data := []byte(`
version: 1
certificate_kinds:
  mdm.cacert: {title: CA}
  mdm.pushcert: {title: Push}
  mdm.webcrt: {title: Web, creatable: true, subject_fields: [O]}
  mdm.device: {title: Device}
payload_kinds:
  restrictions: {payload_type: com.apple.applicationaccess, identifier_suffix: restrictions}
`)
	if _, err := ParseKindTables(data); err == nil {
		t.Fatalf("expected error for creatable kind without CN")
	}
}

func TestKindTablesUnknownLookup(t *testing.T) {
	var tables *KindTables
	if _, err := tables.Certificate(CertKindCA); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("nil tables: want ErrUnknownKind, got %v", err)
	}
}
