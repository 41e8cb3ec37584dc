package policy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
)

func mustPolicy(t *testing.T, cfg Config, v fhir.Version) *Policy {
	t.Helper()
	p, err := New(cfg, v)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNegotiate(t *testing.T) {
	dstu2 := mustPolicy(t, DefaultConfig(), fhir.DSTU2)
	plain := DefaultConfig()
	plain.BrowserFriendlyContentTypes = false
	plain.DefaultPrettyPrint = false
	r4 := mustPolicy(t, plain, fhir.R4)

	tests := []struct {
		name        string
		p           *Policy
		target      string
		accept      string
		userAgent   string
		wantEnc     fhir.Encoding
		wantPretty  bool
		wantContent string
	}{
		{"defaults", r4, "/Patient", "", "", fhir.EncodingJSON, false, "application/fhir+json; charset=UTF-8"},
		{"format wins over accept", r4, "/Patient?_format=xml", "application/fhir+json", "", fhir.EncodingXML, false, "application/fhir+xml; charset=UTF-8"},
		{"format as mime", r4, "/Patient?_format=application/fhir%2Bxml", "", "", fhir.EncodingXML, false, "application/fhir+xml; charset=UTF-8"},
		{"accept xml", r4, "/Patient", "application/fhir+xml", "", fhir.EncodingXML, false, "application/fhir+xml; charset=UTF-8"},
		{"accept unknown falls back", r4, "/Patient", "image/png", "", fhir.EncodingJSON, false, "application/fhir+json; charset=UTF-8"},
		{"pretty param", r4, "/Patient?_pretty=true", "", "", fhir.EncodingJSON, true, "application/fhir+json; charset=UTF-8"},
		{"dstu2 mime", dstu2, "/Patient?_format=json", "", "curl/8", fhir.EncodingJSON, true, "application/json+fhir; charset=UTF-8"},
		{"browser gets text/plain", dstu2, "/Patient", "text/html,application/xml;q=0.9,*/*;q=0.8", "Mozilla/5.0", fhir.EncodingJSON, true, "text/plain; charset=UTF-8"},
		{"explicit format disables browser mode", dstu2, "/Patient?_format=xml", "text/html", "Mozilla/5.0", fhir.EncodingXML, true, "application/xml+fhir; charset=UTF-8"},
		{"browser can disable pretty", dstu2, "/Patient?_pretty=false", "text/html", "", fhir.EncodingJSON, false, "text/plain; charset=UTF-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				r.Header.Set("Accept", tt.accept)
			}
			r.Header.Set("User-Agent", tt.userAgent)
			n, err := tt.p.Negotiate(r)
			if err != nil {
				t.Fatalf("Negotiate: %v", err)
			}
			if n.Encoding != tt.wantEnc || n.Pretty != tt.wantPretty || n.ContentType != tt.wantContent {
				t.Fatalf("got %+v, want enc=%s pretty=%v ct=%q", n, tt.wantEnc, tt.wantPretty, tt.wantContent)
			}
		})
	}
}

func TestNegotiateUnknownFormat(t *testing.T) {
	p := mustPolicy(t, DefaultConfig(), fhir.DSTU2)
	r := httptest.NewRequest(http.MethodGet, "/Patient?_format=yaml", nil)
	if _, err := p.Negotiate(r); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestNew_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CanonicalBaseAddress = "not a url"
	if _, err := New(cfg, fhir.DSTU2); !errors.Is(err, ErrInvalidBaseAddress) {
		t.Fatalf("bad address: got %v", err)
	}
	cfg = DefaultConfig()
	cfg.DefaultEncoding = "yaml"
	if _, err := New(cfg, fhir.DSTU2); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("bad encoding: got %v", err)
	}
	cfg = DefaultConfig()
	cfg.MountPath = "fhir/{type}"
	if _, err := New(cfg, fhir.DSTU2); !errors.Is(err, ErrInvalidMountPath) {
		t.Fatalf("bad mount path: got %v", err)
	}
	if _, err := New(DefaultConfig(), fhir.Version(0)); err == nil {
		t.Fatal("expected invalid version error")
	}
}

func TestBaseAddress(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://internal:8080/Patient/1", nil)

	cfg := DefaultConfig()
	cfg.CanonicalBaseAddress = "http://continua.cloudapp.net/baseDstu2/"
	hard := mustPolicy(t, cfg, fhir.DSTU2)
	if got := hard.BaseAddress(r); got != "http://continua.cloudapp.net/baseDstu2" {
		t.Fatalf("hardcoded base = %s", got)
	}
	if got := hard.ResourceURL(r, "Patient", "a b"); got != "http://continua.cloudapp.net/baseDstu2/Patient/a%20b" {
		t.Fatalf("resource url = %s", got)
	}

	cfg.CanonicalBaseAddress = ""
	mounted := mustPolicy(t, cfg, fhir.DSTU2)
	if got := mounted.BaseAddress(r); got != "http://internal:8080/baseDstu2" {
		t.Fatalf("mounted incoming base = %s", got)
	}

	cfg.MountPath = ""
	incoming := mustPolicy(t, cfg, fhir.DSTU2)
	if got := incoming.BaseAddress(r); got != "http://internal:8080" {
		t.Fatalf("incoming base = %s", got)
	}
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "fhir.example.com, proxy")
	if got := incoming.BaseAddress(r); got != "https://fhir.example.com" {
		t.Fatalf("forwarded base = %s", got)
	}
	if got := (IncomingRequestAddress{MountPath: "/fhir/"}).BaseAddress(r); got != "https://fhir.example.com/fhir" {
		t.Fatalf("mounted base = %s", got)
	}
}
