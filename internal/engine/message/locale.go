package message

// Table is a locale string table keyed by translation key.
type Table map[string]string

// DefaultLocale is used when the active locale has no entry for a key.
const DefaultLocale = "en"

// builtinEN is the baseline copy shipped with the engine. Keys follow
// "<error type>.title" / "<error type>.body"; "generic" covers types
// without dedicated copy.
var builtinEN = Table{
	"network.title":        "Connection Problem",
	"network.body":         "We couldn't reach the search service. Check your connection and try again.",
	"timeout.title":        "Request Timed Out",
	"timeout.body":         "The search took too long to complete. Try again in a moment.",
	"rate_limit.title":     "Too Many Requests",
	"rate_limit.body":      "You're searching too quickly. Wait a moment before trying again.",
	"authentication.title": "Sign-In Required",
	"authentication.body":  "Your session has expired. Sign in again to continue.",
	"authorization.title":  "Access Denied",
	"authorization.body":   "You don't have permission to perform this search.",
	"validation.title":     "Invalid Search",
	"validation.body":      "Your search couldn't be processed. Adjust it and try again.",
	"user_input.title":     "Check Your Input",
	"user_input.body":      "Part of your input couldn't be understood. Correct it and try again.",
	"configuration.title":  "Configuration Problem",
	"configuration.body":   "The search service is misconfigured. Contact your administrator.",
	"security.title":       "Request Blocked",
	"security.body":        "This request was blocked for security reasons.",
	"data.title":           "Data Problem",
	"data.body":            "The results couldn't be read correctly. Try again.",
	"system.title":         "Something Went Wrong",
	"system.body":          "An internal problem interrupted your search. Try again shortly.",
	"generic.title":        "Something Went Wrong",
	"generic.body":         "An unexpected problem interrupted your search. Try again shortly.",
	"action.retry":         "Try Again",
	"action.dismiss":       "Dismiss",
	"action.sign_in":       "Sign In",
}
