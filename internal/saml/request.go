package saml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

const (
	protocolNamespace  = "urn:oasis:names:tc:SAML:2.0:protocol"
	assertionNamespace = "urn:oasis:names:tc:SAML:2.0:assertion"
	bindingHTTPPost    = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
)

// BuildRedirectRequest produces the redirect-binding URL that sends the
// browser to the identity provider with a deflated, base64-encoded
// AuthnRequest. relayState carries the opaque state token back to the
// assertion consumer endpoint.
func BuildRedirectRequest(idp *TrustMaterial, spEntityID, acsURL, relayState string) (string, error) {
	if idp.SSOURL == "" {
		return "", fmt.Errorf("identity provider %q has no SSO endpoint", idp.EntityID)
	}

	doc := etree.NewDocument()
	req := doc.CreateElement("samlp:AuthnRequest")
	req.CreateAttr("xmlns:samlp", protocolNamespace)
	req.CreateAttr("xmlns:saml", assertionNamespace)
	req.CreateAttr("ID", "_"+uuid.NewString())
	req.CreateAttr("Version", "2.0")
	req.CreateAttr("IssueInstant", time.Now().UTC().Format(time.RFC3339))
	req.CreateAttr("Destination", idp.SSOURL)
	req.CreateAttr("ProtocolBinding", bindingHTTPPost)
	req.CreateAttr("AssertionConsumerServiceURL", acsURL)

	issuer := req.CreateElement("saml:Issuer")
	issuer.SetText(spEntityID)

	policy := req.CreateElement("samlp:NameIDPolicy")
	policy.CreateAttr("AllowCreate", "true")

	xmlBytes, err := doc.WriteToBytes()
	if err != nil {
		return "", fmt.Errorf("failed to serialize request: %w", err)
	}

	var deflated bytes.Buffer
	writer, err := flate.NewWriter(&deflated, flate.DefaultCompression)
	if err != nil {
		return "", fmt.Errorf("failed to compress request: %w", err)
	}
	if _, err := writer.Write(xmlBytes); err != nil {
		return "", fmt.Errorf("failed to compress request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to compress request: %w", err)
	}

	dest, err := url.Parse(idp.SSOURL)
	if err != nil {
		return "", fmt.Errorf("invalid SSO endpoint: %w", err)
	}
	q := dest.Query()
	q.Set("SAMLRequest", base64.StdEncoding.EncodeToString(deflated.Bytes()))
	if relayState != "" {
		q.Set("RelayState", relayState)
	}
	dest.RawQuery = q.Encode()
	return dest.String(), nil
}
