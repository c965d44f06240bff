package model

import "encoding/json"

// PollResponse is the RFC 8936-style body returned by the poll endpoint.
type PollResponse struct {
	Sets []string `json:"sets"`
}

type AckRequest struct {
	Jti string `json:"jti"`
}

// TriggerEventRequest is the publish API body: one event of the FLAGSHIP
// taxonomy, with Data kept raw until the type URI selects a variant.
type TriggerEventRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent resolves the request into its taxonomy variant.
func (r TriggerEventRequest) ParseEvent() (EventData, error) {
	return ParseEventData(r.Type, r.Data)
}

// CreateStreamResponse returns the new stream together with the bearer token
// the receiver uses on the poll and acknowledge endpoints.
type CreateStreamResponse struct {
	Stream StreamStateRecord `json:"stream"`
	Token  string            `json:"token"`
}
