package saml

import (
	"crypto/x509"
	"fmt"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// SignatureVerifier checks the enveloped XML signature on a document
// element against the issuer's registered certificates. Implementations
// must fail closed: an unverifiable signature is an invalid signature.
type SignatureVerifier interface {
	Verify(el *etree.Element, certs []*x509.Certificate) error
}

// XMLDSigVerifier verifies signatures with goxmldsig against an in-memory
// certificate store built from the issuer's metadata.
type XMLDSigVerifier struct{}

// Verify validates the signature enveloped in el
func (XMLDSigVerifier) Verify(el *etree.Element, certs []*x509.Certificate) error {
	if len(certs) == 0 {
		return fmt.Errorf("issuer has no registered signing certificates")
	}

	store := &dsig.MemoryX509CertificateStore{Roots: certs}
	validationContext := dsig.NewDefaultValidationContext(store)
	validationContext.IdAttribute = "ID"

	if _, err := validationContext.Validate(el); err != nil {
		return err
	}
	return nil
}
