package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/furniro/apiserver/internal/services"
	"github.com/furniro/apiserver/internal/store"
	"github.com/furniro/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const defaultTokenTTL = 24 * time.Hour

// Claims is the payload of a session token. The subject is the email.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator issues session tokens and guards admin routes.
type Authenticator struct {
	users    *services.UserService
	secret   []byte
	tokenTTL time.Duration
	open     bool
	logger   *zap.Logger
}

// NewAuthenticator constructs an Authenticator. With open set, admin
// routes accept any caller.
func NewAuthenticator(users *services.UserService, jwtSecret string, tokenTTL time.Duration, open bool, logger *zap.Logger) *Authenticator {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &Authenticator{
		users:    users,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		open:     open,
		logger:   logger,
	}
}

// RequireAdmin lets the request through only when the bearer token names
// a user who is an admin right now. The role is read from the store, not
// from the token, so a demotion takes effect immediately.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.open {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if user.Role != types.RoleAdmin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}

		ctx := context.WithValue(r.Context(), contextUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerIsAdmin reports whether the request may act as an admin.
func (a *Authenticator) callerIsAdmin(r *http.Request) bool {
	if a.open {
		return true
	}
	user, err := a.authenticate(r)
	return err == nil && user.Role == types.RoleAdmin
}

func (a *Authenticator) authenticate(r *http.Request) (types.User, error) {
	tokenString, err := bearerToken(r)
	if err != nil {
		return types.User{}, err
	}
	claims, err := parseToken(tokenString, a.secret)
	if err != nil {
		return types.User{}, err
	}

	user, err := a.users.GetByEmail(r.Context(), claims.Subject)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Error("load token subject failed", zap.Error(err))
		}
		return types.User{}, err
	}
	return user, nil
}

func (a *Authenticator) issue(user types.User) (string, error) {
	return issueToken(user, a.secret, a.tokenTTL)
}

// AuthHandler provides signup and login endpoints.
type AuthHandler struct {
	authService *services.AuthService
	authn       *Authenticator
	logger      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, authn *Authenticator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		authn:       authn,
		logger:      logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService, authn *Authenticator, logger *zap.Logger) {
	handler := NewAuthHandler(authService, authn, logger)

	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
}

// Signup creates an account. Asking for the admin role requires an admin
// caller unless the admin API is open.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in := services.SignupInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	}
	if err := in.Validate(); err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}

	if strings.TrimSpace(req.Role) == types.RoleAdmin && !h.authn.callerIsAdmin(r) {
		writeError(w, http.StatusForbidden, "Admin access required")
		return
	}

	// Signup never reports store.ErrNotFound, so there is no not-found message.
	if _, err := h.authService.Signup(r.Context(), in); err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Signup successful"})
}

// Login verifies credentials and returns the role, name and a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid credentials")
		return
	}

	token, err := h.authn.issue(user)
	if err != nil {
		h.logger.Error("sign token failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful",
		Role:    user.Role,
		Name:    user.Name,
		Token:   token,
	})
}

type SignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string `json:"message"`
	Role    string `json:"role"`
	Name    string `json:"name"`
	Token   string `json:"token"`
}

func issueToken(user types.User, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: user.Role,
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
