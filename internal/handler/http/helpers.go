package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/account-directory/internal/user"
)

const msgInternalError = "Internal server error."

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// respondWithError sends {"error": message}.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithMessage(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, MessageResponse{Message: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	var validationErr *user.ValidationError
	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, user.ErrEmailExists),
		errors.Is(err, user.ErrImageExists),
		errors.Is(err, user.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage is the text shown to API callers; internal failures stay opaque.
func clientMessage(err error) string {
	var validationErr *user.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.Is(err, user.ErrEmailExists):
		return "Validation failed: Email already exists."
	case errors.Is(err, user.ErrImageExists):
		return "Image already exists for this user."
	case errors.Is(err, user.ErrUnsupportedImage):
		return "Invalid file format. Only JPEG, PNG, and GIF are allowed."
	case errors.Is(err, user.ErrNotFound):
		return "User not found."
	default:
		return msgInternalError
	}
}

func respondWithServiceError(w http.ResponseWriter, err error, logMsg string) {
	code := mapErrorToStatusCode(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg(logMsg)
	} else {
		log.Warn().Err(err).Int("status", code).Msg(logMsg)
	}
	respondWithError(w, code, clientMessage(err))
}

type formBinder interface {
	bindForm(values url.Values)
}

// decodeRequest accepts JSON and urlencoded bodies. An empty body leaves dst untouched.
func decodeRequest(r *http.Request, dst formBinder) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return err
		}
		dst.bindForm(r.PostForm)
		return nil
	}

	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// optional returns nil for a key that is absent from the form.
func optional(values url.Values, key string) *string {
	if _, ok := values[key]; !ok {
		return nil
	}
	v := values.Get(key)
	return &v
}
