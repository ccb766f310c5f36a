package saml

import (
	"errors"
	"fmt"
)

// ProtocolErrorKind identifies a protocol-level validation failure
type ProtocolErrorKind string

const (
	// KindUntrustedIssuer means the declared issuer is not on the allow-list
	KindUntrustedIssuer ProtocolErrorKind = "UntrustedIssuer"
	// KindSignatureInvalid means the message or assertion signature is
	// missing or does not verify against the issuer's registered keys
	KindSignatureInvalid ProtocolErrorKind = "SignatureInvalid"
	// KindNoAssertion means a well-formed success response carried no assertion
	KindNoAssertion ProtocolErrorKind = "NoAssertion"
	// KindStatusFailure means the response's top-level status was not success
	KindStatusFailure ProtocolErrorKind = "StatusFailure"
)

// ProtocolError is a fatal trust or protocol failure. It must never be
// retried or masked; it propagates to the flow's exception continuation.
type ProtocolError struct {
	Kind ProtocolErrorKind
	// Code is the stable status code for StatusFailure errors
	Code string
	// Params are provider-supplied diagnostics, safe for display
	Params map[string]string
	// Err is the underlying cause, if any. It may contain library detail
	// and is for logs, not for display.
	Err error
}

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case KindStatusFailure:
		return fmt.Sprintf("identity provider returned status %s", e.Code)
	case KindUntrustedIssuer:
		return fmt.Sprintf("response issuer %q is not trusted", e.Params["issuer"])
	case KindSignatureInvalid:
		if e.Err != nil {
			return fmt.Sprintf("signature validation failed: %v", e.Err)
		}
		return "signature validation failed"
	case KindNoAssertion:
		return "response carries no assertion"
	}
	return string(e.Kind)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the stable code recorded into a thrown flow exception
func (e *ProtocolError) ErrorCode() string {
	if e.Kind == KindStatusFailure {
		return e.Code
	}
	return string(e.Kind)
}

// IsProtocolKind reports whether err is a protocol error of the given kind
func IsProtocolKind(err error, kind ProtocolErrorKind) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Kind == kind
}
