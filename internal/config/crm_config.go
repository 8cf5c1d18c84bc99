package config

import "strings"

const (
	clientIDVar     = "CLIENT_ID"
	clientSecretVar = "CLIENT_SECRET"
	redirectURIVar  = "REDIRECT_URI"
	apiBaseURLVar   = "HUBSPOT_API_BASE_URL"
	authURLVar      = "HUBSPOT_AUTH_URL"
	tokenURLVar     = "HUBSPOT_TOKEN_URL"
)

type CRMConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetAuthURL() string
	GetTokenURL() string
	GetAPIBaseURL() string
	GetScopes() []string
}

type CRM struct{}

var _ CRMConfig = CRM{}

var scopes = strings.Fields(`content automation timeline oauth transactional-email tickets e-commerce
communication_preferences.read_write crm.objects.contacts.read communication_preferences.read
communication_preferences.write settings.users.write crm.objects.contacts.write crm.objects.companies.write
settings.users.read crm.schemas.contacts.read crm.objects.companies.read crm.objects.deals.read
crm.objects.deals.write crm.schemas.contacts.write crm.schemas.deals.read crm.schemas.deals.write
conversations.read conversations.write crm.schemas.quotes.read crm.schemas.line_items.read`)

func (CRM) GetClientID() string {
	return GetEnv(clientIDVar, "")
}

func (CRM) GetClientSecret() string {
	return GetEnv(clientSecretVar, "")
}

func (CRM) GetRedirectURI() string {
	return GetEnv(redirectURIVar, "http://localhost:3000/oauth-callback")
}

func (CRM) GetAuthURL() string {
	return GetEnv(authURLVar, "https://app.hubspot.com/oauth/authorize")
}

func (CRM) GetTokenURL() string {
	return GetEnv(tokenURLVar, "https://api.hubapi.com/oauth/v1/token")
}

func (CRM) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "https://api.hubapi.com")
}

func (CRM) GetScopes() []string {
	out := make([]string, len(scopes))
	copy(out, scopes)
	return out
}
