package http

import (
	"encoding/json"
	"net/http"
)

const ContentTypeRequestObject = "application/oauth-authz-req+jwt"

func MarshalJSON(w http.ResponseWriter, i interface{}) {
	MarshalJSONWithStatus(w, i, http.StatusOK)
}

func MarshalJSONWithStatus(w http.ResponseWriter, i interface{}, status int) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if i == nil {
		return
	}
	err := json.NewEncoder(w).Encode(i)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// MarshalJWT writes a compact serialized token as body.
// An empty contentType defaults to application/jwt.
func MarshalJWT(w http.ResponseWriter, token, contentType string) {
	if contentType == "" {
		contentType = "application/jwt"
	}
	w.Header().Set("content-type", contentType)
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write([]byte(token))
}
