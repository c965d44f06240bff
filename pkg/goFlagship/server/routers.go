package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

type Routes []Route

func (app *FlagshipApplication) NewRouter() *mux.Router {
	routes := Routes{
		{"StreamCreate", http.MethodPost, "/streams", app.StreamCreate},
		{"StreamList", http.MethodGet, "/streams", app.StreamList},
		{"StreamGet", http.MethodGet, "/streams/{id}", app.StreamGet},
		{"StreamUpdate", http.MethodPatch, "/streams/{id}", app.StreamUpdate},
		{"StreamDelete", http.MethodDelete, "/streams/{id}", app.StreamDelete},
		{"StreamStatus", http.MethodGet, "/streams/{id}/status", app.StreamStatus},

		{"TriggerEvent", http.MethodPost, "/events", app.TriggerEvent},
		{"PollEvents", http.MethodGet, "/streams/{id}/events", app.PollEvents},
		{"AcknowledgeEvent", http.MethodPost, "/streams/{id}/acknowledge", app.AcknowledgeEvent},

		{"JwksJson", http.MethodGet, "/jwks.json", app.JwksJson},
		{"Health", http.MethodGet, "/health", app.Health},
	}

	router := mux.NewRouter().StrictSlash(true)
	router.Use(PrometheusHttpMiddleware)
	for _, route := range routes {
		router.Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(route.HandlerFunc)
	}
	router.Methods(http.MethodGet).Path("/metrics").Name("Metrics").Handler(promhttp.Handler())
	return router
}
