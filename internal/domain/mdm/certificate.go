package mdm

import "time"

// CertificateKind is the closed set of certificate roles the server knows about.
type CertificateKind string

const (
	CertKindCA     CertificateKind = "mdm.cacert"
	CertKindPush   CertificateKind = "mdm.pushcert"
	CertKindWeb    CertificateKind = "mdm.webcrt"
	CertKindDevice CertificateKind = "mdm.device"
)

var CertificateKinds = []CertificateKind{
	CertKindCA,
	CertKindPush,
	CertKindWeb,
	CertKindDevice,
}

func (k CertificateKind) Valid() bool {
	for _, v := range CertificateKinds {
		if v == k {
			return true
		}
	}
	return false
}

type Certificate struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Kind           CertificateKind `gorm:"column:cert_type;not null;index" json:"kind"`
	PEMCertificate string          `gorm:"column:pem_certificate;not null" json:"pem_certificate"`
	Subject        string          `gorm:"column:subject" json:"subject,omitempty"`
	PrivateKeyID   *uint           `gorm:"column:private_key_id;index" json:"private_key_id,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

func (Certificate) TableName() string { return "certificate" }

type PrivateKey struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PEMKey    string    `gorm:"column:pem_key;not null" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (PrivateKey) TableName() string { return "private_key" }
