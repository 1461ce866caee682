package handlers

import (
	"database/sql"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

func TestRegister_Success(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	tc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)`)).
		WithArgs("testuser", "test@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	tc.Mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "created_at"}).
			AddRow("user-123", "testuser", "test@example.com", time.Now()))

	req, _ := NewJSONRequest(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "Password123!",
	})
	c := tc.Echo.NewContext(req, tc.Recorder)

	if err := handler.Register(c); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusCreated)

	var user User
	if err := ParseJSONResponse(tc.Recorder, &user); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("Expected username 'testuser', got '%s'", user.Username)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	tc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)`)).
		WithArgs("taken", "other@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	req, _ := NewJSONRequest(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "taken",
		"email":    "other@example.com",
		"password": "Password123!",
	})
	c := tc.Echo.NewContext(req, tc.Recorder)

	handler.Register(c)

	AssertStatus(t, tc.Recorder, http.StatusBadRequest)
	AssertErrorCode(t, tc.Recorder, ErrCodeAlreadyExists)
}

func TestRegister_WeakPassword(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	req, _ := NewJSONRequest(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "short",
	})
	c := tc.Echo.NewContext(req, tc.Recorder)

	handler.Register(c)

	AssertStatus(t, tc.Recorder, http.StatusBadRequest)
}

func TestLogin_Success(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	passwordHash, _ := bcrypt.GenerateFromPassword([]byte("Password123!"), bcrypt.DefaultCost)

	rows := sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "created_at"}).
		AddRow("user-123", "testuser", "test@example.com", string(passwordHash), time.Now())

	tc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, username, email, password_hash, created_at`)).
		WithArgs("testuser").
		WillReturnRows(rows)

	req, _ := NewJSONRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "testuser",
		"password": "Password123!",
	})
	c := tc.Echo.NewContext(req, tc.Recorder)

	if err := handler.Login(c); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	AssertStatus(t, tc.Recorder, http.StatusOK)

	var resp LoginResponse
	if err := ParseJSONResponse(tc.Recorder, &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Token == "" {
		t.Error("Expected token in response, got empty string")
	}
	if resp.User.Username != "testuser" {
		t.Errorf("Expected username 'testuser', got '%s'", resp.User.Username)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	passwordHash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.DefaultCost)

	rows := sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "created_at"}).
		AddRow("user-123", "testuser", "test@example.com", string(passwordHash), time.Now())

	tc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, username, email, password_hash, created_at`)).
		WithArgs("testuser").
		WillReturnRows(rows)

	req, _ := NewJSONRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "testuser",
		"password": "wrong",
	})
	c := tc.Echo.NewContext(req, tc.Recorder)

	handler.Login(c)

	AssertStatus(t, tc.Recorder, http.StatusUnauthorized)
	AssertJSONError(t, tc.Recorder, "Incorrect username or password")
}

func TestLogin_UnknownUser(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	tc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, username, email, password_hash, created_at`)).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	req, _ := NewJSONRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"username": "nobody",
		"password": "Password123!",
	})
	c := tc.Echo.NewContext(req, tc.Recorder)

	handler.Login(c)

	// Identical message to the wrong-password case
	AssertStatus(t, tc.Recorder, http.StatusUnauthorized)
	AssertJSONError(t, tc.Recorder, "Incorrect username or password")
}

func TestPasswordHash_SaltFreshness(t *testing.T) {
	first, err := bcrypt.GenerateFromPassword([]byte("Password123!"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword failed: %v", err)
	}
	second, err := bcrypt.GenerateFromPassword([]byte("Password123!"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword failed: %v", err)
	}

	if string(first) == string(second) {
		t.Error("Two digests of the same password must not be identical")
	}
	if err := bcrypt.CompareHashAndPassword(first, []byte("Password123!")); err != nil {
		t.Errorf("Digest should verify against its password: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword(first, []byte("other")); err == nil {
		t.Error("Digest should not verify against a different password")
	}
}

func TestToken_RoundTrip(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	token, err := handler.GenerateToken("user-123", "testuser")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, parseErr := handler.parseToken(token)
	if parseErr != nil {
		t.Fatalf("parseToken failed: %v", parseErr)
	}
	if claims.Username != "testuser" {
		t.Errorf("Expected subject 'testuser', got '%s'", claims.Username)
	}
}

func TestToken_Expired(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	token, err := handler.generateTokenWithTTL("user-123", "testuser", -time.Minute)
	if err != nil {
		t.Fatalf("generateTokenWithTTL failed: %v", err)
	}

	if _, parseErr := handler.parseToken(token); parseErr == nil {
		t.Error("Expected expired token to fail verification")
	}
}

func TestToken_Tampered(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	token, err := handler.GenerateToken("user-123", "testuser")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	// Flip the last character
	tampered := []byte(token)
	if tampered[len(tampered)-1] == 'a' {
		tampered[len(tampered)-1] = 'b'
	} else {
		tampered[len(tampered)-1] = 'a'
	}

	if _, parseErr := handler.parseToken(string(tampered)); parseErr == nil {
		t.Error("Expected tampered token to fail verification")
	}
}

func TestToken_WrongSecret(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	minter := NewAuthHandler(tc.DB, "one-secret-that-is-32-chars-long!", 30*time.Minute)
	verifier := NewAuthHandler(tc.DB, "another-secret-that-is-32-chars!", 30*time.Minute)

	token, err := minter.GenerateToken("user-123", "testuser")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, parseErr := verifier.parseToken(token); parseErr == nil {
		t.Error("Expected verification under a different secret to fail")
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	req, _ := NewJSONRequest(http.MethodGet, "/api/auth/me", nil)
	c := tc.Echo.NewContext(req, tc.Recorder)

	nextCalled := false
	mw := handler.RequireAuth(func(c echo.Context) error {
		nextCalled = true
		return nil
	})

	if err := mw(c); err != nil {
		t.Fatalf("Middleware returned error: %v", err)
	}
	if nextCalled {
		t.Error("Handler should not run without a token")
	}
	AssertStatus(t, tc.Recorder, http.StatusUnauthorized)
}

func TestRequireAuth_IgnoresQueryParam(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	token, _ := handler.GenerateToken("user-123", "testuser")

	// A valid token in the query string must not satisfy header-only auth.
	req, _ := NewJSONRequest(http.MethodGet, "/api/auth/me?token="+token, nil)
	c := tc.Echo.NewContext(req, tc.Recorder)

	nextCalled := false
	mw := handler.RequireAuth(func(c echo.Context) error {
		nextCalled = true
		return nil
	})

	if err := mw(c); err != nil {
		t.Fatalf("Middleware returned error: %v", err)
	}
	if nextCalled {
		t.Error("Query parameter tokens must not satisfy header auth")
	}
	AssertStatus(t, tc.Recorder, http.StatusUnauthorized)
}

func TestRequireAuth_UnknownSubject(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	token, _ := handler.GenerateToken("user-123", "ghost")

	tc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM users WHERE username = $1`)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	req, _ := NewJSONRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := tc.Echo.NewContext(req, tc.Recorder)

	mw := handler.RequireAuth(func(c echo.Context) error {
		t.Error("Handler should not run for a deleted subject")
		return nil
	})

	if err := mw(c); err != nil {
		t.Fatalf("Middleware returned error: %v", err)
	}

	// Indistinguishable from a bad token
	AssertStatus(t, tc.Recorder, http.StatusUnauthorized)
	AssertJSONError(t, tc.Recorder, "Invalid or expired token")
}

func TestRequireAuth_Valid(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	token, _ := handler.GenerateToken("user-123", "testuser")

	tc.Mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM users WHERE username = $1`)).
		WithArgs("testuser").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-123"))

	req, _ := NewJSONRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := tc.Echo.NewContext(req, tc.Recorder)

	var seen *JWTClaims
	mw := handler.RequireAuth(func(c echo.Context) error {
		seen = GetClaims(c)
		return nil
	})

	if err := mw(c); err != nil {
		t.Fatalf("Middleware returned error: %v", err)
	}
	if seen == nil {
		t.Fatal("Claims were not set in context")
	}
	if seen.UserID != "user-123" || seen.Username != "testuser" {
		t.Errorf("Unexpected claims: %+v", seen)
	}
}

func TestOptionalAuth_InvalidTokenIsAnonymous(t *testing.T) {
	tc := SetupTest(t)
	defer tc.Cleanup()

	handler := CreateTestAuthHandler(tc.DB)

	req, _ := NewJSONRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	c := tc.Echo.NewContext(req, tc.Recorder)

	nextCalled := false
	mw := handler.OptionalAuth(func(c echo.Context) error {
		nextCalled = true
		if GetClaims(c) != nil {
			t.Error("Invalid token should resolve to no principal")
		}
		return nil
	})

	if err := mw(c); err != nil {
		t.Fatalf("Middleware returned error: %v", err)
	}
	if !nextCalled {
		t.Error("Optional auth must continue on invalid tokens")
	}
}
