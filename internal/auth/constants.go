package auth

// OAuth endpoints for the Magister identity provider.
const (
	AuthorizeEndpoint = "https://accounts.magister.net/connect/authorize"
	TokenEndpoint     = "https://accounts.magister.net/connect/token"
)

// The mobile app client. Unlike the web client (implicit grant), this
// client id supports the authorization code flow and returns refresh tokens.
const (
	ClientID    = "M6LOAPP"
	RedirectURI = "m6loapp://oauth2redirect/"
)

// Scopes requested by the mobile client. offline_access is what makes the
// token endpoint hand out a refresh token.
var Scopes = []string{
	"openid",
	"profile",
	"offline_access",
	"magister.ecs.legacy",
	"magister.mdv.broker.read",
	"magister.dnn.roles.read",
}

// dashboardPatterns are URL fragments that indicate a logged-in session.
var dashboardPatterns = []string{"/magister", "/today", "/#/today", "/#/agenda"}

const storageStateFilename = "storage_state.json"

// oidcTokenExtractionJS pulls OAuth tokens out of the page's web storage.
// Magister keeps its OIDC session under keys like
// "oidc.user:https://accounts.magister.net:M6LOAPP"; the later loops are
// fallbacks for layout changes.
const oidcTokenExtractionJS = `(() => {
	const fromRecord = (value) => {
		try {
			const parsed = JSON.parse(value);
			if (parsed.access_token) {
				return {
					access_token: parsed.access_token,
					refresh_token: parsed.refresh_token || null,
					expires_at: parsed.expires_at || null,
				};
			}
		} catch (e) {}
		return null;
	};

	for (let i = 0; i < sessionStorage.length; i++) {
		const key = sessionStorage.key(i);
		if (key && key.startsWith('oidc.user:')) {
			const found = fromRecord(sessionStorage.getItem(key));
			if (found) return found;
		}
	}
	for (let i = 0; i < localStorage.length; i++) {
		const key = localStorage.key(i);
		if (key && key.startsWith('oidc.user:')) {
			const found = fromRecord(localStorage.getItem(key));
			if (found) return found;
		}
	}
	for (let i = 0; i < localStorage.length; i++) {
		const value = localStorage.getItem(localStorage.key(i));
		if (value && value.includes('access_token')) {
			const found = fromRecord(value);
			if (found) return found;
		}
	}
	for (let i = 0; i < sessionStorage.length; i++) {
		const value = sessionStorage.getItem(sessionStorage.key(i));
		if (value && value.includes('access_token')) {
			const found = fromRecord(value);
			if (found) return found;
		}
	}
	return null;
})()`
