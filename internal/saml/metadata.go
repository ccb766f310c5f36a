package saml

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
)

// Metadata set names. An entity lives in exactly one set; the same entity ID
// may describe an IdP in one deployment and an SP in another.
const (
	SetRemoteIdP = "remote-idp"
	SetHostedSP  = "hosted-sp"
)

// TrustMaterial is what the metadata configuration knows about one entity:
// its signing certificates and protocol endpoints.
type TrustMaterial struct {
	EntityID     string
	Certificates []*x509.Certificate
	SSOURL       string
	SLOURL       string
}

// MetadataResolver supplies trust material for an entity in a named
// metadata set. The response processor is a pure function of this plus the
// wire message.
type MetadataResolver interface {
	Resolve(set, entityID string) (*TrustMaterial, error)
}

// StaticResolver is a MetadataResolver backed by registered entries.
// Metadata file loading and parsing lives outside this core; whatever loads
// it registers the results here.
type StaticResolver struct {
	mu      sync.RWMutex
	entries map[string]map[string]*TrustMaterial
}

// NewStaticResolver creates an empty metadata resolver
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		entries: make(map[string]map[string]*TrustMaterial),
	}
}

// Register adds trust material for an entity in a metadata set
func (r *StaticResolver) Register(set string, tm *TrustMaterial) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[set] == nil {
		r.entries[set] = make(map[string]*TrustMaterial)
	}
	r.entries[set][tm.EntityID] = tm
}

// Resolve returns the trust material registered for entityID in set
func (r *StaticResolver) Resolve(set, entityID string) (*TrustMaterial, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tm, ok := r.entries[set][entityID]
	if !ok {
		return nil, fmt.Errorf("no metadata for entity %q in set %q", entityID, set)
	}
	return tm, nil
}

// LoadCertificate reads one or more PEM certificates from a file
func LoadCertificate(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	var certs []*x509.Certificate
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return certs, nil
}
