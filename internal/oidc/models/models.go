// Package models holds the wire-level shapes of the authorization protocol.
package models

const (
	// ResponseTypeCode selects the authorization-code flow.
	ResponseTypeCode = "code"
	// ResponseTypeIDToken selects the implicit flow.
	ResponseTypeIDToken = "id_token"

	// ScopeOpenID is the only supported scope.
	ScopeOpenID = "openid"

	// DefaultDisplay is applied when the client sends no display preference.
	DefaultDisplay = "page"
)

// AuthenticationRequest carries the query parameters of GET /authorize.
//
// After validation, State holds a server-generated correlation value binding
// the browser round-trip to this request; the client-supplied state survives
// in ClientState and is echoed on the final redirect. The whole struct is
// serialized into the pending-request cookie between authorize and login.
type AuthenticationRequest struct {
	ResponseType string `json:"response_type"`
	Nonce        string `json:"nonce,omitempty"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	Scope        string `json:"scope"`
	State        string `json:"state,omitempty"`
	ClientState  string `json:"client_state,omitempty"`
	Display      string `json:"display,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	MaxAge       string `json:"max_age,omitempty"`
	UILocales    string `json:"ui_locales,omitempty"`
	IDTokenHint  string `json:"id_token_hint,omitempty"`
	LoginHint    string `json:"login_hint,omitempty"`
	ACRValues    string `json:"acr_values,omitempty"`
}

// LoginSubmission carries the fields of the POST /login form.
type LoginSubmission struct {
	Email    string
	Password string
	State    string
}
