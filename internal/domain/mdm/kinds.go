package mdm

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const kindsYAMLEnv = "MDM_KINDS_YAML"

//go:embed kinds.yaml
var kindsFS embed.FS

// CertificateRules is the static data attached to a certificate kind.
type CertificateRules struct {
	Title              string   `yaml:"title" json:"title"`
	Description        string   `yaml:"description" json:"description"`
	Required           bool     `yaml:"required" json:"required"`
	RequiresPrivateKey bool     `yaml:"requires_private_key" json:"requires_private_key"`
	Listed             bool     `yaml:"listed" json:"-"`
	Creatable          bool     `yaml:"creatable" json:"creatable"`
	SubjectFields      []string `yaml:"subject_fields" json:"subject_fields,omitempty"`
}

// AllowsSubjectField reports whether name may appear in a generated subject.
func (r CertificateRules) AllowsSubjectField(name string) bool {
	for _, f := range r.SubjectFields {
		if f == name {
			return true
		}
	}
	return false
}

type PayloadRules struct {
	Title            string `yaml:"title" json:"title"`
	PayloadType      string `yaml:"payload_type" json:"payload_type"`
	IdentifierSuffix string `yaml:"identifier_suffix" json:"identifier_suffix"`
}

type KindTables struct {
	Certificates map[CertificateKind]CertificateRules
	Payloads     map[PayloadKind]PayloadRules
}

type yamlKinds struct {
	Version      int                         `yaml:"version"`
	Certificates map[string]CertificateRules `yaml:"certificate_kinds"`
	Payloads     map[string]PayloadRules     `yaml:"payload_kinds"`
}

// LoadKindTables reads the embedded table (or the file named by MDM_KINDS_YAML) and
// validates it against the closed kind enums.
func LoadKindTables() (*KindTables, error) {
	var (
		data []byte
		err  error
	)
	if path := strings.TrimSpace(os.Getenv(kindsYAMLEnv)); path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = kindsFS.ReadFile("kinds.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read kind tables: %w", err)
	}
	return ParseKindTables(data)
}

func ParseKindTables(data []byte) (*KindTables, error) {
	var raw yamlKinds
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse kind tables: %w", err)
	}
	if raw.Version != 1 {
		return nil, fmt.Errorf("unsupported kind table version: %d", raw.Version)
	}

	out := &KindTables{
		Certificates: make(map[CertificateKind]CertificateRules, len(raw.Certificates)),
		Payloads:     make(map[PayloadKind]PayloadRules, len(raw.Payloads)),
	}
	for name, rules := range raw.Certificates {
		kind := CertificateKind(name)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown certificate kind in table: %s", name)
		}
		if strings.TrimSpace(rules.Title) == "" {
			return nil, fmt.Errorf("certificate kind %s has no title", name)
		}
		if rules.Creatable && !rules.AllowsSubjectField("CN") {
			return nil, fmt.Errorf("creatable certificate kind %s must allow CN", name)
		}
		out.Certificates[kind] = rules
	}
	for _, kind := range CertificateKinds {
		if _, ok := out.Certificates[kind]; !ok {
			return nil, fmt.Errorf("certificate kind %s missing from table", kind)
		}
	}

	for name, rules := range raw.Payloads {
		kind := PayloadKind(name)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown payload kind in table: %s", name)
		}
		if strings.TrimSpace(rules.PayloadType) == "" {
			return nil, fmt.Errorf("payload kind %s has no payload_type", name)
		}
		if strings.TrimSpace(rules.IdentifierSuffix) == "" {
			return nil, fmt.Errorf("payload kind %s has no identifier_suffix", name)
		}
		out.Payloads[kind] = rules
	}
	for _, kind := range PayloadKinds {
		if _, ok := out.Payloads[kind]; !ok {
			return nil, fmt.Errorf("payload kind %s missing from table", kind)
		}
	}
	return out, nil
}

var ErrUnknownKind = errors.New("unknown kind")

func (t *KindTables) Certificate(kind CertificateKind) (CertificateRules, error) {
	if t != nil {
		if rules, ok := t.Certificates[kind]; ok {
			return rules, nil
		}
	}
	return CertificateRules{}, fmt.Errorf("%w: certificate %q", ErrUnknownKind, kind)
}

func (t *KindTables) Payload(kind PayloadKind) (PayloadRules, error) {
	if t != nil {
		if rules, ok := t.Payloads[kind]; ok {
			return rules, nil
		}
	}
	return PayloadRules{}, fmt.Errorf("%w: payload %q", ErrUnknownKind, kind)
}
