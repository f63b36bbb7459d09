package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/account-directory/internal/user"
)

const multipartMemory = 8 << 20

type CreateUserRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *CreateUserRequest) bindForm(v url.Values) {
	r.FullName = v.Get("fullName")
	r.Email = v.Get("email")
	r.Password = v.Get("password")
}

type EditUserRequest struct {
	Email    string  `json:"email"`
	FullName *string `json:"fullName,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (r *EditUserRequest) bindForm(v url.Values) {
	r.Email = v.Get("email")
	r.FullName = optional(v, "fullName")
	r.Password = optional(v, "password")
}

type DeleteUserRequest struct {
	Email string `json:"email"`
}

func (r *DeleteUserRequest) bindForm(v url.Values) {
	r.Email = v.Get("email")
}

type UsersResponse struct {
	Users []user.Listing `json:"users"`
}

type UploadImageResponse struct {
	Message  string `json:"message"`
	FilePath string `json:"filePath"`
}

type UserHandler struct {
	service        user.Service
	maxUploadBytes int64
}

func NewUserHandler(service user.Service, maxUploadBytes int64) *UserHandler {
	return &UserHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/user", func(r chi.Router) {
		r.Post("/create", h.handleCreateUser)
		r.Put("/edit", h.handleEditUser)
		r.Delete("/delete", h.handleDeleteUser)
		r.Get("/getAll", h.handleGetAllUsers)
		r.Post("/uploadImage", h.handleUploadImage)
	})
}

func (h *UserHandler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateUserRequest
	if err := decodeRequest(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode create request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	_, err := h.service.CreateUser(r.Context(), user.NewUser{
		FullName: requestPayload.FullName,
		Email:    requestPayload.Email,
		Password: requestPayload.Password,
	})
	if err != nil {
		respondWithServiceError(w, err, "Failed to create user via service")
		return
	}

	respondWithMessage(w, http.StatusCreated, "User created successfully.")
}

func (h *UserHandler) handleEditUser(w http.ResponseWriter, r *http.Request) {
	var requestPayload EditUserRequest
	if err := decodeRequest(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode edit request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	err := h.service.EditUser(r.Context(), requestPayload.Email, user.Changes{
		FullName: requestPayload.FullName,
		Password: requestPayload.Password,
	})
	if err != nil {
		respondWithServiceError(w, err, "Failed to edit user via service")
		return
	}

	respondWithMessage(w, http.StatusOK, "User updated successfully.")
}

func (h *UserHandler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var requestPayload DeleteUserRequest
	if err := decodeRequest(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode delete request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	if err := h.service.DeleteUser(r.Context(), requestPayload.Email); err != nil {
		respondWithServiceError(w, err, "Failed to delete user via service")
		return
	}

	respondWithMessage(w, http.StatusOK, "User deleted successfully.")
}

func (h *UserHandler) handleGetAllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users via service")
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve users.")
		return
	}

	respondWithJSON(w, http.StatusOK, UsersResponse{Users: users})
}

func (h *UserHandler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	err := r.ParseMultipartForm(multipartMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusBadRequest,
				fmt.Sprintf("Validation failed: Image exceeds the %d MB upload limit.", h.maxUploadBytes>>20))
			return
		}
		log.Warn().Err(err).Msg("Failed to parse multipart form")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}
	if r.MultipartForm != nil {
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				log.Warn().Err(err).Msg("Failed to remove multipart temp files")
			}
		}()
	}

	upload := user.Upload{}
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		upload = user.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        file,
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		log.Warn().Err(err).Msg("Failed to read uploaded image")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	filePath, err := h.service.AttachImage(r.Context(), r.FormValue("email"), upload)
	if err != nil {
		respondWithServiceError(w, err, "Failed to attach image via service")
		return
	}

	respondWithJSON(w, http.StatusCreated, UploadImageResponse{
		Message:  "Image uploaded successfully.",
		FilePath: filePath,
	})
}
