package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MicahParks/jwkset"
	"github.com/gorilla/mux"

	"github.com/grcorsair/flagship/internal/authUtil"
	"github.com/grcorsair/flagship/internal/model"
)

// TriggerEvent publishes one event into the fan-out. The response reports the
// per-stream outcome; a failed immediate push is reported, not retried inline.
func (app *FlagshipApplication) TriggerEvent(w http.ResponseWriter, r *http.Request) {
	_, status := app.Auth.ValidateAuthorization(r, "", []string{authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	var jsonRequest model.TriggerEventRequest
	if err := json.NewDecoder(r.Body).Decode(&jsonRequest); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	event, err := jsonRequest.ParseEvent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := app.Router.PublishEvent(event)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type streamOutcome struct {
		StreamId  string `json:"stream_id"`
		Jti       string `json:"jti"`
		Delivered bool   `json:"delivered"`
		Error     string `json:"error,omitempty"`
	}
	outcomes := make([]streamOutcome, 0, len(records))
	for _, rec := range records {
		outcome := streamOutcome{StreamId: rec.StreamId, Jti: rec.Jti, Delivered: rec.Delivered}
		if rec.Err != nil {
			outcome.Error = rec.Err.Error()
		}
		outcomes = append(outcomes, outcome)
	}

	serverLog.Printf("PUBLISH %s matched %d stream(s)", event.EventType(), len(records))
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusAccepted)
	respBytes, _ := json.MarshalIndent(outcomes, "", "  ")
	_, _ = w.Write(respBytes)
}

// PollEvents implements the server side of RFC 8936 poll based delivery.
func (app *FlagshipApplication) PollEvents(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["id"]
	_, status := app.Auth.ValidateAuthorization(r, sid, []string{authUtil.ScopeEventDelivery})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	streamStatus := app.Registry.GetStreamStatus(sid)
	if streamStatus == "" || streamStatus == model.StreamStateDeleted {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	resp, err := app.Router.PollStreamEvents(sid, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	respBytes, _ := json.MarshalIndent(resp, "", "  ")
	_, _ = w.Write(respBytes)
}

// AcknowledgeEvent records durable processing of one delivered token.
// Duplicate acknowledgments succeed without effect.
func (app *FlagshipApplication) AcknowledgeEvent(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["id"]
	_, status := app.Auth.ValidateAuthorization(r, sid, []string{authUtil.ScopeEventDelivery})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	var jsonRequest model.AckRequest
	if err := json.NewDecoder(r.Body).Decode(&jsonRequest); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if jsonRequest.Jti == "" {
		http.Error(w, "jti is required", http.StatusBadRequest)
		return
	}

	if err := app.Router.AcknowledgeEvent(sid, jsonRequest.Jti); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	serverLog.Printf("ACK Stream[%s] Jti[%s]", sid, jsonRequest.Jti)
	w.WriteHeader(http.StatusOK)
}

// JwksJson serves the transmitter's public signing key so receivers can
// verify SET signatures.
func (app *FlagshipApplication) JwksJson(w http.ResponseWriter, _ *http.Request) {
	keypair, err := app.Keys.LoadKeypair()
	if err != nil || keypair == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	pubKey, err := keypair.PublicKey()
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	jwkStore := jwkset.NewMemoryStorage()

	jwkOptions := jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{
			KID: app.DefIssuer,
		},
	}
	jwk, err := jwkset.NewJWKFromKey(pubKey, jwkOptions)
	if err != nil {
		serverLog.Println("Error parsing ed25519 key into jwk: " + err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err = jwkStore.KeyWrite(context.Background(), jwk); err != nil {
		serverLog.Println("Error creating JWKS for issuer " + app.DefIssuer + ": " + err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	response, err := jwkStore.JSONPublic(context.Background())
	if err != nil {
		serverLog.Println("Error creating JWKS response: " + err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(response)
}

func (app *FlagshipApplication) Health(w http.ResponseWriter, _ *http.Request) {
	if !app.HealthCheck() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
