package auth

import (
	"log/slog"
	"net"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Handle exposes the auth service over HTTP
type Handle struct {
	service *Service
	logger  *slog.Logger
}

// NewHandle creates the HTTP handler for the auth routes
func NewHandle(service *Service, logger *slog.Logger) Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return Handle{service: service, logger: logger}
}

// Routes mounts the auth endpoints on r
func (h Handle) Routes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/reset-password", h.ResetPassword)
	r.Post("/validate-token", h.ValidateToken)
}

// apiResponse is the envelope every endpoint answers with
type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type registerRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	Roles     []string   `json:"roles"`
	Active    bool       `json:"active"`
	Verified  bool       `json:"verified"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

type tokenResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
	User         userResponse `json:"user"`
}

type validateTokenResponse struct {
	Valid    bool     `json:"valid"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	UserID   string   `json:"userId,omitempty"`
}

// Register handles POST /register
func (h Handle) Register(w http.ResponseWriter, r *http.Request) {
	var data registerRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		h.badRequest(w, r, "Invalid request body")
		return
	}
	data.Email = strings.TrimSpace(data.Email)
	data.Username = strings.TrimSpace(data.Username)

	if data.Email == "" || data.Username == "" || data.Password == "" {
		h.badRequest(w, r, "Email, username and password are required")
		return
	}
	if _, err := mail.ParseAddress(data.Email); err != nil {
		h.badRequest(w, r, "Invalid email address")
		return
	}
	if len(data.Username) < 3 {
		h.badRequest(w, r, "Username must be at least 3 characters")
		return
	}

	result, err := h.service.Register(r.Context(), RegisterParams{
		Email:           data.Email,
		Username:        data.Username,
		Password:        data.Password,
		ConfirmPassword: data.ConfirmPassword,
		IPAddress:       clientIP(r),
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusCreated, apiResponse{
		Success: true,
		Message: "Registration successful",
		Data:    toTokenResponse(result),
	})
}

// Login handles POST /login
func (h Handle) Login(w http.ResponseWriter, r *http.Request) {
	var data loginRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		h.badRequest(w, r, "Invalid request body")
		return
	}
	data.Identifier = strings.TrimSpace(data.Identifier)
	if data.Identifier == "" || data.Password == "" {
		h.badRequest(w, r, "Identifier and password are required")
		return
	}

	result, err := h.service.Login(r.Context(), LoginParams{
		Identifier: data.Identifier,
		Password:   data.Password,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, apiResponse{
		Success: true,
		Message: "Login successful",
		Data:    toTokenResponse(result),
	})
}

// Refresh handles POST /refresh
func (h Handle) Refresh(w http.ResponseWriter, r *http.Request) {
	var data refreshRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		h.badRequest(w, r, "Invalid request body")
		return
	}
	if data.RefreshToken == "" {
		h.badRequest(w, r, "Refresh token is required")
		return
	}

	result, err := h.service.Refresh(r.Context(), data.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, apiResponse{
		Success: true,
		Message: "Token refreshed",
		Data:    toTokenResponse(result),
	})
}

// Logout handles POST /logout. The response is 200 regardless of whether
// the token was known, live or already revoked. An unreadable body is
// treated like an absent token.
func (h Handle) Logout(w http.ResponseWriter, r *http.Request) {
	var data refreshRequest
	_ = render.DecodeJSON(r.Body, &data)

	if data.RefreshToken != "" {
		err := h.service.Logout(r.Context(), LogoutParams{
			RefreshToken: data.RefreshToken,
			IPAddress:    clientIP(r),
			UserAgent:    r.UserAgent(),
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	h.respond(w, r, http.StatusOK, apiResponse{
		Success: true,
		Message: "Logged out",
	})
}

// ForgotPassword handles POST /forgot-password. Unknown and inactive
// emails get the same answer as real ones.
func (h Handle) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var data forgotPasswordRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		h.badRequest(w, r, "Invalid request body")
		return
	}
	data.Email = strings.TrimSpace(data.Email)
	if data.Email == "" {
		h.badRequest(w, r, "Email is required")
		return
	}

	err := h.service.ForgotPassword(r.Context(), ForgotPasswordParams{
		Email:     data.Email,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, apiResponse{
		Success: true,
		Message: "If the email exists, a password reset link has been sent",
	})
}

// ResetPassword handles POST /reset-password
func (h Handle) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var data resetPasswordRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		h.badRequest(w, r, "Invalid request body")
		return
	}
	if data.Token == "" || data.Password == "" {
		h.badRequest(w, r, "Token and password are required")
		return
	}

	err := h.service.ResetPassword(r.Context(), ResetPasswordParams{
		Token:           data.Token,
		Password:        data.Password,
		ConfirmPassword: data.ConfirmPassword,
		IPAddress:       clientIP(r),
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, apiResponse{
		Success: true,
		Message: "Password has been reset",
	})
}

// ValidateToken handles POST /validate-token. Introspection always answers
// 200; an invalid token is a result, not an error.
func (h Handle) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var data validateTokenRequest
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		h.badRequest(w, r, "Invalid request body")
		return
	}

	result, err := h.service.ValidateToken(r.Context(), data.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, apiResponse{
		Success: true,
		Data: validateTokenResponse{
			Valid:    result.Valid,
			Username: result.Username,
			Email:    result.Email,
			Roles:    result.Roles,
			UserID:   result.UserID,
		},
	})
}

func (h Handle) respond(w http.ResponseWriter, r *http.Request, status int, body apiResponse) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

func (h Handle) badRequest(w http.ResponseWriter, r *http.Request, message string) {
	h.respond(w, r, http.StatusBadRequest, apiResponse{
		Success: false,
		Message: message,
		Code:    string(CodeValidation),
	})
}

// writeError maps typed auth errors onto 400/401; anything else is an
// internal fault and stays opaque to the client.
func (h Handle) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if authErr, ok := AsError(err); ok {
		status := http.StatusBadRequest
		switch authErr.Code {
		case CodeInvalidCredentials, CodeInvalidRefreshToken:
			status = http.StatusUnauthorized
		}
		h.respond(w, r, status, apiResponse{
			Success: false,
			Message: authErr.Message,
			Code:    string(authErr.Code),
		})
		return
	}

	h.logger.Error("request failed", "path", r.URL.Path, "err", err)
	h.respond(w, r, http.StatusInternalServerError, apiResponse{
		Success: false,
		Message: "Internal server error",
	})
}

func toTokenResponse(result *LoginResult) tokenResponse {
	return tokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
		User: userResponse{
			ID:        result.User.ID.String(),
			Email:     result.User.Email,
			Username:  result.User.Username,
			Roles:     result.User.Roles,
			Active:    result.User.Active,
			Verified:  result.User.Verified,
			LastLogin: result.User.LastLogin,
		},
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
