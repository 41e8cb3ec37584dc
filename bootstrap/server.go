package bootstrap

import (
	"time"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
	"github.com/jamesagnew/continua-demo-fhir-server/interceptor"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
	"github.com/jamesagnew/continua-demo-fhir-server/policy"
)

// Metadata identifies the server in its capability statement.
type Metadata struct {
	// Name is the software name.
	Name string
	// Version is the software version.
	Version     string
	Description string
	// BaseAddress is advertised as implementation.url. It defaults to the
	// policy's canonical base address.
	BaseAddress string
}

// Server is a fully composed, immutable server instance. All accessors are
// safe for concurrent use.
type Server struct {
	version     fhir.Version
	meta        Metadata
	registry    *fhirservice.Registry
	system      fhirservice.SystemProvider
	capability  fhir.CapabilityStatement
	generatedAt time.Time
	policy      *policy.Policy
	paging      paging.Controller
	ownsPaging  bool
	chain       *interceptor.Chain
}

// Version is the FHIR version the server was bootstrapped for.
func (s *Server) Version() fhir.Version { return s.version }

// Metadata is the implementation description published in the statement.
func (s *Server) Metadata() Metadata { return s.meta }

// Registry holds the bound resource providers. It is frozen.
func (s *Server) Registry() *fhirservice.Registry { return s.registry }

// SystemProvider serves the whole-system interactions.
func (s *Server) SystemProvider() fhirservice.SystemProvider { return s.system }

// Policy governs addressing and content negotiation.
func (s *Server) Policy() *policy.Policy { return s.policy }

// Paging stores search and history result sets between page requests.
func (s *Server) Paging() paging.Controller { return s.paging }

// Interceptors is the frozen interceptor chain.
func (s *Server) Interceptors() *interceptor.Chain { return s.chain }

// CapabilityStatement returns the statement built at bootstrap. The slices
// inside it are shared and must not be modified.
func (s *Server) CapabilityStatement() fhir.CapabilityStatement { return s.capability }

// GeneratedAt is when the capability statement was built.
func (s *Server) GeneratedAt() time.Time { return s.generatedAt }

// Close releases the paging controller if Initialize created it.
func (s *Server) Close() error {
	if s.ownsPaging {
		return s.paging.Close()
	}
	return nil
}
