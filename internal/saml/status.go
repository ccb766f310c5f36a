package saml

// Top-level status code URNs
const (
	StatusSuccess         = "urn:oasis:names:tc:SAML:2.0:status:Success"
	StatusRequester       = "urn:oasis:names:tc:SAML:2.0:status:Requester"
	StatusResponder       = "urn:oasis:names:tc:SAML:2.0:status:Responder"
	StatusVersionMismatch = "urn:oasis:names:tc:SAML:2.0:status:VersionMismatch"
)

// Second-level status code URNs
const (
	StatusRequestDenied      = "urn:oasis:names:tc:SAML:2.0:status:RequestDenied"
	StatusNoAuthnContext     = "urn:oasis:names:tc:SAML:2.0:status:NoAuthnContext"
	StatusNoAvailableIDP     = "urn:oasis:names:tc:SAML:2.0:status:NoAvailableIDP"
	StatusNoPassive          = "urn:oasis:names:tc:SAML:2.0:status:NoPassive"
	StatusNoSupportedIDP     = "urn:oasis:names:tc:SAML:2.0:status:NoSupportedIDP"
	StatusAuthnFailed        = "urn:oasis:names:tc:SAML:2.0:status:AuthnFailed"
	StatusUnknownPrincipal   = "urn:oasis:names:tc:SAML:2.0:status:UnknownPrincipal"
	StatusUnsupportedBinding = "urn:oasis:names:tc:SAML:2.0:status:UnsupportedBinding"
	StatusProxyCountExceeded = "urn:oasis:names:tc:SAML:2.0:status:ProxyCountExceeded"
	StatusPartialLogout      = "urn:oasis:names:tc:SAML:2.0:status:PartialLogout"
	StatusRequestUnsupported = "urn:oasis:names:tc:SAML:2.0:status:RequestUnsupported"
)

// statusNames maps every known status URN to the stable code the login error
// catalog and the exception continuation display. Unknown URNs report as
// UnknownStatus with the raw code preserved.
var statusNames = map[string]string{
	StatusRequestDenied:      "RequestDenied",
	StatusNoAuthnContext:     "NoAuthnContext",
	StatusNoAvailableIDP:     "NoAvailableIDP",
	StatusNoPassive:          "NoPassive",
	StatusNoSupportedIDP:     "NoSupportedIDP",
	StatusAuthnFailed:        "AuthnFailed",
	StatusUnknownPrincipal:   "UnknownPrincipal",
	StatusUnsupportedBinding: "UnsupportedBinding",
	StatusProxyCountExceeded: "ProxyCountExceeded",
	StatusPartialLogout:      "PartialLogout",
	StatusRequestUnsupported: "RequestUnsupported",
	StatusRequester:          "Requester",
	StatusResponder:          "Responder",
	StatusVersionMismatch:    "VersionMismatch",
}

// StatusName returns the stable code for a status URN
func StatusName(urn string) string {
	if name, ok := statusNames[urn]; ok {
		return name
	}
	return "UnknownStatus"
}
