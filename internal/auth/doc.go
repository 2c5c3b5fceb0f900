// Package auth implements optional bearer-token authentication for the
// bridge.
//
// Tokens are JWTs signed with HS256 or RS256 carrying a subject and a list of
// scopes. The "telemetry" scope allows reading telemetry and opening a
// subscriber session; the "control" scope additionally allows sending
// commands to the vehicle. Browsers cannot set headers on WebSocket upgrades,
// so the token may also arrive in the access_token query parameter.
package auth
