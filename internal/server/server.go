package server

import "net/http"

func Handler(hub *Hub, engine Engine, sink AudioSink, store SessionStore, summaries SummaryGenerator, status StatusHooks) http.Handler {
	mux := http.NewServeMux()

	registerWSRoute(mux, hub, engine, sink)
	registerAPIRoutes(mux, store, summaries, status)

	return mux
}
