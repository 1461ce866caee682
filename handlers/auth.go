package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// AuthHandler issues and verifies bearer tokens and manages user accounts.
type AuthHandler struct {
	db        *sql.DB
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthHandler creates an AuthHandler. The secret and token lifetime come
// from process configuration and never change within a process lifetime.
func NewAuthHandler(db *sql.DB, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		db:        db,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// User represents a user account
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// JWTClaims represents JWT claims
type JWTClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// RegisterRequest represents registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents login response
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// GenerateToken mints a signed bearer token for a user using the configured
// lifetime.
func (h *AuthHandler) GenerateToken(userID, username string) (string, error) {
	return h.generateTokenWithTTL(userID, username, h.tokenTTL)
}

func (h *AuthHandler) generateTokenWithTTL(userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "pagevault",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

// parseToken verifies the signature and expiry of a bearer token. It is a
// pure function of the token string, the secret, and the wall clock.
func (h *AuthHandler) parseToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized("Invalid or expired token")
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, ErrUnauthorized("Invalid or expired token")
	}
	return claims, nil
}

// PrincipalFromToken resolves a raw token string to a user account. A valid
// token whose subject no longer exists fails exactly like a bad token, so
// callers cannot distinguish the two.
func (h *AuthHandler) PrincipalFromToken(tokenString string) (*JWTClaims, error) {
	claims, err := h.parseToken(tokenString)
	if err != nil {
		return nil, err
	}

	var id string
	row := h.db.QueryRow("SELECT id FROM users WHERE username = $1", claims.Username)
	if err := row.Scan(&id); err != nil {
		return nil, ErrUnauthorized("Invalid or expired token")
	}
	claims.UserID = id

	return claims, nil
}

// bearerToken extracts the token from the Authorization header, if any.
func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// RequireAuth validates the Authorization header and fails closed when the
// token is missing, invalid, expired, or references an unknown user. It
// never consults query parameters.
func (h *AuthHandler) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			return RespondError(c, ErrUnauthorized(""))
		}

		claims, err := h.PrincipalFromToken(tokenString)
		if err != nil {
			return RespondError(c, ErrUnauthorized("Invalid or expired token"))
		}

		c.Set("user", claims)
		return next(c)
	}
}

// OptionalAuth resolves the Authorization header if present but continues
// anonymously on any failure.
func (h *AuthHandler) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := bearerToken(c)
		if tokenString == "" {
			return next(c)
		}

		if claims, err := h.PrincipalFromToken(tokenString); err == nil {
			c.Set("user", claims)
		}

		return next(c)
	}
}

// Register creates a new user account
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return RespondError(c, ErrBadRequest("Invalid request"))
	}

	if err := ValidateUsername(req.Username); err != nil {
		return RespondError(c, ErrBadRequest(err.Error()))
	}
	if err := ValidateEmail(req.Email); err != nil {
		return RespondError(c, ErrBadRequest(err.Error()))
	}
	if err := ValidatePassword(req.Password); err != nil {
		return RespondError(c, ErrBadRequest(err.Error()))
	}

	// Check for an existing account up front for a friendly error; the
	// unique constraints remain the source of truth under concurrency.
	var exists bool
	err := h.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)",
		req.Username, req.Email,
	).Scan(&exists)
	if err != nil {
		return RespondError(c, ErrDatabase())
	}
	if exists {
		return RespondError(c, ErrAlreadyExists("Username or email"))
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return RespondError(c, ErrInternal("Failed to hash password"))
	}

	var user User
	err = h.db.QueryRow(`
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, email, created_at
	`, req.Username, req.Email, string(passwordHash)).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return RespondError(c, ErrAlreadyExists("Username or email"))
		}
		return RespondError(c, ErrInternal("Failed to create user"))
	}

	return c.JSON(http.StatusCreated, user)
}

// Login authenticates a user and returns a JWT token. Unknown usernames and
// wrong passwords produce an identical response.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return RespondError(c, ErrBadRequest("Invalid request"))
	}

	if req.Username == "" || req.Password == "" {
		return RespondError(c, ErrBadRequest("Username and password are required"))
	}

	var user User
	var passwordHash string
	err := h.db.QueryRow(`
		SELECT id, username, email, password_hash, created_at
		FROM users WHERE username = $1
	`, req.Username).Scan(&user.ID, &user.Username, &user.Email, &passwordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return RespondError(c, ErrUnauthorized("Incorrect username or password"))
	}
	if err != nil {
		return RespondError(c, ErrDatabase())
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		return RespondError(c, ErrUnauthorized("Incorrect username or password"))
	}

	token, err := h.GenerateToken(user.ID, user.Username)
	if err != nil {
		return RespondError(c, ErrInternal("Failed to generate token"))
	}

	return c.JSON(http.StatusOK, LoginResponse{
		Token: token,
		User:  user,
	})
}

// Me returns the current user's account
func (h *AuthHandler) Me(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	var user User
	row := h.db.QueryRow(`
		SELECT id, username, email, created_at
		FROM users WHERE id = $1
	`, claims.UserID)
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return RespondError(c, ErrNotFound("User"))
		}
		return RespondError(c, ErrDatabase())
	}

	return c.JSON(http.StatusOK, user)
}
