// Package httputil provides the JSON request and response helpers shared by
// every handler, and the outermost server middleware.
//
// Error bodies are always {"error": "<message>"}. Anything related to
// authentication or authorization uses one of the generic messages below, so
// a response never tells a caller why it was refused.
//
//	var req LoginRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	httputil.WriteSuccess(w, resp)
//
//	handler := httputil.Chain(
//		httputil.Recovery(logger),
//		httputil.RequestLogging(logger),
//		httputil.MaxBytes(1<<20),
//	)(router)
package httputil
