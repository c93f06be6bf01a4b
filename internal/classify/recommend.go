package classify

import "github.com/boyarskiy/runledger/internal/model"

var severityActions = map[model.Severity]string{
	model.SeverityCritical: "Quarantine now and fix before the next release.",
	model.SeverityHigh:     "Schedule a fix in the current iteration.",
	model.SeverityMedium:   "Investigate when touching this area.",
	model.SeverityLow:      "Monitor.",
}

var signatureHints = map[model.FailureSignature]string{
	model.SignatureTimeout:    "Replace fixed waits with explicit readiness checks and review timeout budgets.",
	model.SignatureSelector:   "Target stable test ids instead of layout-dependent selectors.",
	model.SignatureNetwork:    "Stub external dependencies or make the client retry with backoff.",
	model.SignatureDOMDetach:  "Re-query elements after re-render instead of holding references.",
	model.SignatureVisualDiff: "Mask dynamic regions and pin fonts and animations before capture.",
	model.SignatureThreshold:  "Check load environment capacity before adjusting the threshold.",
	model.SignatureAssertion:  "Look for order-dependent state or fixtures shared between tests.",
	model.SignatureUnknown:    "Capture more diagnostics on failure to identify the cause.",
}

// Recommend returns remediation text for a severity and dominant signature.
func Recommend(severity model.Severity, sig model.FailureSignature) string {
	action := severityActions[severity]
	hint, ok := signatureHints[sig]
	if !ok {
		hint = signatureHints[model.SignatureUnknown]
	}
	return action + " " + hint
}
