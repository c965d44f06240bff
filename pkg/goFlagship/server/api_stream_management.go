package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/grcorsair/flagship/internal/authUtil"
	"github.com/grcorsair/flagship/internal/model"
)

func (app *FlagshipApplication) StreamCreate(w http.ResponseWriter, r *http.Request) {
	_, status := app.Auth.ValidateAuthorization(r, "", []string{authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	var jsonRequest model.StreamConfiguration
	err := json.NewDecoder(r.Body).Decode(&jsonRequest)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errMsg := validateConfig(jsonRequest); errMsg != "" {
		http.Error(w, errMsg, http.StatusBadRequest)
		return
	}

	stream, err := app.Registry.CreateStream(jsonRequest)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	token, err := app.Auth.IssueStreamToken(stream.StreamId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	serverLog.Printf("Stream %s CREATED", stream.StreamId)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusCreated)
	respBytes, _ := json.MarshalIndent(model.CreateStreamResponse{Stream: *stream, Token: token}, "", "  ")
	_, _ = w.Write(respBytes)
}

func validateConfig(config model.StreamConfiguration) string {
	switch config.Delivery.Method {
	case model.DeliveryPush:
		if config.Delivery.EndpointUrl == "" {
			return "push delivery requires an endpoint url"
		}
	case model.DeliveryPoll:
	default:
		return "delivery method must be push or poll"
	}

	supported := model.GetSupportedEvents()
	for _, requested := range config.EventsRequested {
		found := false
		for _, uri := range supported {
			if uri == requested {
				found = true
				break
			}
		}
		if !found {
			return "unsupported event type: " + requested
		}
	}
	return ""
}

func (app *FlagshipApplication) StreamList(w http.ResponseWriter, r *http.Request) {
	_, status := app.Auth.ValidateAuthorization(r, "", []string{authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	streams, err := app.Registry.ListStreams()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	respBytes, _ := json.MarshalIndent(streams, "", "  ")
	_, _ = w.Write(respBytes)
}

func (app *FlagshipApplication) StreamGet(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["id"]
	_, status := app.Auth.ValidateAuthorization(r, sid, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	stream, err := app.Registry.GetStream(sid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if stream == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	serverLog.Printf("Stream GET %s", sid)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	respBytes, _ := json.MarshalIndent(stream, "", "  ")
	_, _ = w.Write(respBytes)
}

func (app *FlagshipApplication) StreamUpdate(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["id"]
	_, status := app.Auth.ValidateAuthorization(r, sid, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	var patch model.StreamPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stream, err := app.Registry.UpdateStream(sid, patch)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, model.ErrStreamDeleted):
			http.Error(w, "stream is deleted", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	serverLog.Printf("Stream %s UPDATED", sid)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	respBytes, _ := json.MarshalIndent(stream, "", "  ")
	_, _ = w.Write(respBytes)
}

func (app *FlagshipApplication) StreamDelete(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["id"]
	_, status := app.Auth.ValidateAuthorization(r, sid, []string{authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	serverLog.Printf("Stream %s DELETE requested", sid)

	if err := app.Registry.DeleteStream(sid); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *FlagshipApplication) StreamStatus(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["id"]
	_, status := app.Auth.ValidateAuthorization(r, sid, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	streamStatus := app.Registry.GetStreamStatus(sid)
	if streamStatus == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	respBytes, _ := json.Marshal(map[string]string{"status": streamStatus})
	_, _ = w.Write(respBytes)
}
