package saml

import (
	"encoding/xml"
	"time"
)

// Wire-format types for the subset of the SAML 2.0 protocol schema this
// processor consumes. See the SAML 2.0 core specification,
// http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf

// Response represents a samlp:Response protocol message
type Response struct {
	XMLName      xml.Name    `xml:"urn:oasis:names:tc:SAML:2.0:protocol Response"`
	Destination  string      `xml:",attr"`
	ID           string      `xml:",attr"`
	InResponseTo string      `xml:",attr"`
	IssueInstant time.Time   `xml:",attr"`
	Version      string      `xml:",attr"`
	Issuer       *Issuer     `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Status       *Status     `xml:"urn:oasis:names:tc:SAML:2.0:protocol Status"`
	Signature    *Signature  `xml:"http://www.w3.org/2000/09/xmldsig# Signature"`
	Assertions   []Assertion `xml:"urn:oasis:names:tc:SAML:2.0:assertion Assertion"`
}

// Issuer identifies the entity that produced a message or assertion
type Issuer struct {
	Format string `xml:",attr"`
	Value  string `xml:",chardata"`
}

// Signature marks the presence of an enveloped XML signature. Verification
// happens over the raw document, not over this decoded form.
type Signature struct {
	InnerXML string `xml:",innerxml"`
}

// Status carries the top-level result of a protocol exchange
type Status struct {
	StatusCode    StatusCode     `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusCode"`
	StatusMessage *StatusMessage `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusMessage"`
	StatusDetail  *StatusDetail  `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusDetail"`
}

// StatusCode holds the result URN; failures nest a second-level code
type StatusCode struct {
	Value      string      `xml:",attr"`
	StatusCode *StatusCode `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusCode"`
}

// StatusMessage is a provider-supplied diagnostic string
type StatusMessage struct {
	Value string `xml:",chardata"`
}

// StatusDetail carries provider-specific diagnostic elements
type StatusDetail struct {
	Entries []StatusDetailEntry `xml:",any"`
}

// StatusDetailEntry is one named diagnostic value inside StatusDetail
type StatusDetailEntry struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// Assertion represents a saml:Assertion
type Assertion struct {
	ID                  string               `xml:",attr"`
	IssueInstant        time.Time            `xml:",attr"`
	Version             string               `xml:",attr"`
	Issuer              *Issuer              `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Signature           *Signature           `xml:"http://www.w3.org/2000/09/xmldsig# Signature"`
	Subject             *Subject             `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	Conditions          *Conditions          `xml:"urn:oasis:names:tc:SAML:2.0:assertion Conditions"`
	AuthnStatement      *AuthnStatement      `xml:"urn:oasis:names:tc:SAML:2.0:assertion AuthnStatement"`
	AttributeStatements []AttributeStatement `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeStatement"`
}

// Subject identifies the authenticated principal
type Subject struct {
	NameID *NameID `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
}

// NameID is the subject identifier
type NameID struct {
	Format          string `xml:",attr"`
	NameQualifier   string `xml:",attr"`
	SPNameQualifier string `xml:",attr"`
	Value           string `xml:",chardata"`
}

// Conditions restricts the validity of an assertion
type Conditions struct {
	NotBefore    time.Time `xml:",attr"`
	NotOnOrAfter time.Time `xml:",attr"`
}

// AuthnStatement records the act of authentication at the identity provider
type AuthnStatement struct {
	AuthnInstant time.Time `xml:",attr"`
	SessionIndex string    `xml:",attr"`
}

// AttributeStatement groups the attributes asserted about the subject
type AttributeStatement struct {
	Attributes []Attribute `xml:"urn:oasis:names:tc:SAML:2.0:assertion Attribute"`
}

// Attribute is a single named, possibly multi-valued attribute
type Attribute struct {
	FriendlyName string           `xml:",attr"`
	Name         string           `xml:",attr"`
	NameFormat   string           `xml:",attr"`
	Values       []AttributeValue `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeValue"`
}

// AttributeValue is one value of an attribute; value order is significant
type AttributeValue struct {
	Value string `xml:",chardata"`
}
