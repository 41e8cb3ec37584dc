package fhir

// Issue severities and codes used by the server.
const (
	SeverityFatal   = "fatal"
	SeverityError   = "error"
	SeverityWarning = "warning"

	IssueCodeNotFound     = "not-found"
	IssueCodeNotSupported = "not-supported"
	IssueCodeInvalid      = "invalid"
	IssueCodeProcessing   = "processing"
	IssueCodeSecurity     = "security"
	IssueCodeLogin        = "login"
	IssueCodeForbidden    = "forbidden"
	IssueCodeException    = "exception"
	IssueCodeDeleted      = "deleted"
	IssueCodeThrottled    = "throttled"
)

// OperationOutcome reports errors and warnings.
type OperationOutcome struct {
	ResourceType string  `json:"resourceType"`
	Issue        []Issue `json:"issue"`
}

// Issue is a single OperationOutcome.issue.
type Issue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitzero"`
}

// NewOperationOutcome builds a single-issue outcome.
func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue:        []Issue{{Severity: severity, Code: code, Diagnostics: diagnostics}},
	}
}

// AsResource converts the outcome to a Resource for embedding in bundle
// entry responses.
func (o *OperationOutcome) AsResource() Resource {
	issues := make([]any, 0, len(o.Issue))
	for _, is := range o.Issue {
		m := map[string]any{"severity": is.Severity, "code": is.Code}
		if is.Diagnostics != "" {
			m["diagnostics"] = is.Diagnostics
		}
		issues = append(issues, m)
	}
	return Resource{"resourceType": "OperationOutcome", "issue": issues}
}
