// Package api holds the JSON response envelope and the stable user-facing
// reason strings shared by the catalog and settlement handlers. Clients
// match on these strings, so they only ever change deliberately.
package api

import (
	"encoding/json"
	"net/http"
)

// Stable reason strings for rejections and outcomes.
const (
	MsgNoUser             = "user does not exist"
	MsgNoCommodity        = "commodity does not exist"
	MsgInsufficientStock  = "insufficient commodity quantity available"
	MsgCommodityExists    = "commodity already exists"
	MsgUnauthorized       = "unauthorized"
	MsgNothingToUpdate    = "at least one of price or quantity is required"
	MsgServerError        = "something went wrong, please try again"
	MsgInvalidBody        = "invalid request body"
	MsgFetched            = "fetched successfully"
	MsgCommodityCreated   = "commodity added successfully"
	MsgCommodityUpdated   = "commodity updated successfully"
	MsgTransactionCreated = "transaction created successfully"
)

// Response is the envelope returned by every endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK writes a success envelope with the given status code.
func OK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

// Error writes a failure envelope with the given status code.
func Error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
