// Package api exposes the HTTP surface: campaign sync, execution log
// queries, rule detail, and health.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

// respondSafeError logs the full internal error server-side and sends a
// public-safe message. Database details, hosts, and query text never reach
// API consumers.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if internalErr != nil {
		log.Printf("ERROR [%d]: %s: %v", code, publicMsg, internalErr)
	}
	respondError(w, code, publicMsg)
}

// storageStatus classifies an internal error into the status code and public
// message for the datastore-vs-other split: datastore trouble is a 503 the
// client may retry, everything else is a generic 500.
func storageStatus(err error) (int, string) {
	if err == nil {
		return http.StatusInternalServerError, "An internal error occurred"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "sql") ||
		strings.Contains(msg, "pq:") ||
		strings.Contains(msg, "scan") ||
		strings.Contains(msg, "transaction") ||
		strings.Contains(msg, "database") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset"):
		return http.StatusServiceUnavailable, "A database error occurred, please retry shortly"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, "An internal error occurred"
	}
}
