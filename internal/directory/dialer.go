package directory

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Conn is the slice of the LDAP client a directory operation needs
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// Dialer establishes directory connections. The production implementation
// wraps go-ldap; tests substitute their own.
type Dialer interface {
	Dial(addr string, timeout time.Duration, tlsConfig *tls.Config) (Conn, error)
}

type ldapDialer struct{}

func (ldapDialer) Dial(addr string, timeout time.Duration, tlsConfig *tls.Config) (Conn, error) {
	opts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: timeout}),
	}
	if tlsConfig != nil {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := ldap.DialURL(addr, opts...)
	if err != nil {
		return nil, err
	}
	// Searches and binds must fail fast rather than hang the request
	conn.SetTimeout(timeout)
	return conn, nil
}
