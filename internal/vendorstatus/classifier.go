// Package vendorstatus classifies vendor status codes returned by the
// scraping service. The table is data: adding a vendor status is a new entry,
// not a new branch.
package vendorstatus

// Classification describes what a vendor status code means for a job.
type Classification struct {
	Code        int
	Description string
	// IsFinal means no further processing of the job is expected.
	IsFinal bool
	// IsError means the terminal outcome is a failure. Only meaningful
	// together with IsFinal.
	IsError bool
}

// Known vendor status codes.
const (
	CodeRequestReceived       = 1
	CodeCredentialQueued      = 2
	CodeLoginInProgress       = 3
	CodeLoginSucceeded        = 4
	CodeInvalidCredentials    = 5
	CodeAccountLocked         = 6
	CodeSecurityChallenge     = 7
	CodeDownloadQueued        = 8
	CodeDownloadInProgress    = 9
	CodePartiallyRetrieved    = 10
	CodeDocumentsProcessed    = 11
	CodeRequestCancelled      = 12
	CodeNoDocumentsFound      = 13
	CodeVendorSiteError       = 14
	CodeNoDocumentsProcessed  = 15
)

// table maps every known vendor status code to its classification.
//
// Two entries need care:
//   - CodeLoginSucceeded terminates a pure credential check but is NOT final
//     for scraping, where the download still has to run. It is therefore
//     non-final here and surfaced through CredentialVerified instead.
//   - CodeNoDocumentsFound is not an error and not final: the job is retried
//     on the next cycle in case documents appear later in the window.
//
// CodeNoDocumentsProcessed has undetermined vendor semantics; until the vendor
// clarifies, it stays non-final so the job keeps being polled rather than
// silently abandoned.
var table = map[int]Classification{
	CodeRequestReceived:      {CodeRequestReceived, "Request received", false, false},
	CodeCredentialQueued:     {CodeCredentialQueued, "Credential check queued", false, false},
	CodeLoginInProgress:      {CodeLoginInProgress, "Login check in progress", false, false},
	CodeLoginSucceeded:       {CodeLoginSucceeded, "Login succeeded", false, false},
	CodeInvalidCredentials:   {CodeInvalidCredentials, "Login failed: invalid credentials", true, true},
	CodeAccountLocked:        {CodeAccountLocked, "Account locked by vendor", true, true},
	CodeSecurityChallenge:    {CodeSecurityChallenge, "Security challenge required", true, true},
	CodeDownloadQueued:       {CodeDownloadQueued, "Download request queued", false, false},
	CodeDownloadInProgress:   {CodeDownloadInProgress, "Download in progress", false, false},
	CodePartiallyRetrieved:   {CodePartiallyRetrieved, "Documents partially retrieved", false, false},
	CodeDocumentsProcessed:   {CodeDocumentsProcessed, "Documents processed", true, false},
	CodeRequestCancelled:     {CodeRequestCancelled, "Request cancelled", true, false},
	CodeNoDocumentsFound:     {CodeNoDocumentsFound, "No documents found", false, false},
	CodeVendorSiteError:      {CodeVendorSiteError, "Vendor site error", true, true},
	CodeNoDocumentsProcessed: {CodeNoDocumentsProcessed, "No documents processed", false, false},
}

// Classify returns the classification for a vendor status code. Unknown codes
// fail open: still processing, not final, not an error. Finalizing a job on an
// unrecognized code would silently abandon it.
func Classify(code int) Classification {
	if c, ok := table[code]; ok {
		return c
	}
	return Classification{Code: code, Description: "Unknown vendor status", IsFinal: false, IsError: false}
}

// IsKnown reports whether the code appears in the classification table.
func IsKnown(code int) bool {
	_, ok := table[code]
	return ok
}

// CredentialVerified reports whether the code represents a successful login
// check. This is the success terminal for credential verification even though
// the code is non-final in the scraping lifecycle.
func CredentialVerified(code int) bool {
	return code == CodeLoginSucceeded
}
