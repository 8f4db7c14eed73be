// Package httpapi exposes the read-only query surface over HTTP.
//
// Routes:
//
//	GET /user?email=&cookie=                         profile lookup
//	GET /similar_users?email=&cookie=&cohort=&limit=&offset=
//	GET /healthz
//
// Responses use JSend envelopes. Bound and identity violations answer 400,
// unknown users and users without embeddings answer 404, anything else 500.
package httpapi
