package saml

import (
	"encoding/xml"
	"fmt"

	"github.com/beevik/etree"
)

// AssertionInfo is the validated, extracted result of a successful SAML
// response: everything the owning authentication source needs before the
// raw message is discarded. It is never partially populated and must not be
// mutated after construction.
type AssertionInfo struct {
	Issuer       string
	NameID       string
	NameIDFormat string
	SessionIndex string
	// Attributes preserves one ordered value sequence per attribute name;
	// no coercion to scalars.
	Attributes map[string][]string
}

// ServiceDescriptor identifies the relying service an inbound response is
// processed for: its own entity ID and the issuers it is configured to trust.
type ServiceDescriptor struct {
	EntityID       string
	MetadataSet    string
	TrustedIssuers []string
}

// Processor validates an already binding-decoded SAML response and extracts
// its single assertion. It has no transport concerns: input is the raw XML
// plus trust material looked up through the metadata resolver.
type Processor struct {
	Metadata MetadataResolver
	Verifier SignatureVerifier
}

// NewProcessor creates a response processor verifying signatures with goxmldsig
func NewProcessor(metadata MetadataResolver) *Processor {
	return &Processor{
		Metadata: metadata,
		Verifier: XMLDSigVerifier{},
	}
}

// Process runs the validation steps in order: issuer trust, status,
// signature, assertion extraction. Any failure is a typed ProtocolError;
// nothing partial is ever returned.
func (p *Processor) Process(raw []byte, svc ServiceDescriptor) (*AssertionInfo, error) {
	var resp Response
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Issuer trust comes before everything else: a status code from an
	// entity we do not trust means nothing.
	if resp.Issuer == nil || resp.Issuer.Value == "" {
		return nil, &ProtocolError{Kind: KindUntrustedIssuer, Params: map[string]string{"issuer": ""}}
	}
	issuer := resp.Issuer.Value
	if !contains(svc.TrustedIssuers, issuer) {
		return nil, &ProtocolError{Kind: KindUntrustedIssuer, Params: map[string]string{"issuer": issuer}}
	}

	if err := checkStatus(&resp); err != nil {
		return nil, err
	}

	trust, err := p.Metadata.Resolve(svc.MetadataSet, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve issuer metadata: %w", err)
	}

	if err := p.verifySignature(raw, &resp, trust); err != nil {
		return nil, err
	}

	switch len(resp.Assertions) {
	case 0:
		return nil, &ProtocolError{Kind: KindNoAssertion}
	case 1:
	default:
		return nil, fmt.Errorf("response carries %d assertions, want exactly one", len(resp.Assertions))
	}

	return extractAssertion(issuer, &resp.Assertions[0]), nil
}

// checkStatus rejects any response whose top-level status is not success,
// mapping the sub-status to a stable code with the provider's diagnostics
// attached as display parameters.
func checkStatus(resp *Response) error {
	if resp.Status == nil {
		return fmt.Errorf("response carries no status")
	}
	top := resp.Status.StatusCode.Value
	if top == StatusSuccess {
		return nil
	}

	code := top
	if nested := resp.Status.StatusCode.StatusCode; nested != nil && nested.Value != "" {
		code = nested.Value
	}

	params := map[string]string{"code": code}
	if resp.Status.StatusMessage != nil && resp.Status.StatusMessage.Value != "" {
		params["message"] = resp.Status.StatusMessage.Value
	}
	if resp.Status.StatusDetail != nil {
		for _, entry := range resp.Status.StatusDetail.Entries {
			params[entry.XMLName.Local] = entry.Value
		}
	}

	return &ProtocolError{
		Kind:   KindStatusFailure,
		Code:   StatusName(code),
		Params: params,
	}
}

// verifySignature validates the enveloped signature on the response or, when
// only the assertion is signed, on the assertion element. A response with no
// signature anywhere is rejected; this step is never best-effort.
func (p *Processor) verifySignature(raw []byte, resp *Response, trust *TrustMaterial) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return fmt.Errorf("failed to parse response document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("response document has no root element")
	}

	var signed *etree.Element
	switch {
	case resp.Signature != nil:
		signed = root
	case len(resp.Assertions) > 0 && resp.Assertions[0].Signature != nil:
		signed = childElement(root, "Assertion")
	}
	if signed == nil {
		return &ProtocolError{Kind: KindSignatureInvalid, Err: fmt.Errorf("neither response nor assertion is signed")}
	}

	if err := p.Verifier.Verify(signed, trust.Certificates); err != nil {
		return &ProtocolError{Kind: KindSignatureInvalid, Err: err}
	}
	return nil
}

// extractAssertion builds the immutable result from a validated assertion
func extractAssertion(issuer string, a *Assertion) *AssertionInfo {
	info := &AssertionInfo{
		Issuer:     issuer,
		Attributes: make(map[string][]string),
	}

	if a.Subject != nil && a.Subject.NameID != nil {
		info.NameID = a.Subject.NameID.Value
		info.NameIDFormat = a.Subject.NameID.Format
	}
	if a.AuthnStatement != nil {
		info.SessionIndex = a.AuthnStatement.SessionIndex
	}

	for _, stmt := range a.AttributeStatements {
		for _, attr := range stmt.Attributes {
			name := attr.Name
			if name == "" {
				name = attr.FriendlyName
			}
			for _, v := range attr.Values {
				info.Attributes[name] = append(info.Attributes[name], v.Value)
			}
		}
	}
	return info
}

// childElement finds the first direct child with the given local name,
// ignoring namespace prefixes.
func childElement(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return child
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
