package handlers

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/svrforum/PageVault/api/storage"
)

// ShareHandler issues and resolves public share links. A share link grants
// unauthenticated access to one file, optionally gated by a password and an
// expiry. Every access re-evaluates the gate; nothing is cached.
type ShareHandler struct {
	db      *sql.DB
	blob    storage.BlobStore
	baseURL string
}

// NewShareHandler creates a new ShareHandler
func NewShareHandler(db *sql.DB, blob storage.BlobStore, baseURL string) *ShareHandler {
	return &ShareHandler{
		db:      db,
		blob:    blob,
		baseURL: baseURL,
	}
}

// Share represents a share link as exposed to its creator. The password
// digest itself never leaves the database.
type Share struct {
	ID          string     `json:"id"`
	FileID      int64      `json:"fileId"`
	Token       string     `json:"token"`
	URL         string     `json:"url"`
	HasPassword bool       `json:"hasPassword"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// CreateShareRequest represents share creation request
type CreateShareRequest struct {
	Password  string `json:"password,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"` // hours, 0 = never
}

// AccessShareRequest represents share access request
type AccessShareRequest struct {
	Password string `json:"password,omitempty"`
}

// generateShareToken returns a fresh unguessable share token. 32 bytes of
// randomness make brute-force enumeration infeasible.
func generateShareToken() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// shareURL builds the public link the frontend hands out.
func (h *ShareHandler) shareURL(token string) string {
	return fmt.Sprintf("%s/share/%s", h.baseURL, token)
}

// ownsFile reports whether the user owns the file. Absent and not-owned are
// indistinguishable so share operations cannot leak other tenants' file ids.
func (h *ShareHandler) ownsFile(fileID int64, userID string) (bool, error) {
	var exists bool
	err := h.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM html_files WHERE id = $1 AND owner_id = $2)",
		fileID, userID,
	).Scan(&exists)
	return exists, err
}

// CreateShare creates a share link for a file the user owns
func (h *ShareHandler) CreateShare(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	fileID, apiErr := fileIDParam(c)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	var req CreateShareRequest
	if err := c.Bind(&req); err != nil {
		return RespondError(c, ErrBadRequest("Invalid request"))
	}

	if err := ValidateSharePassword(req.Password); err != nil {
		return RespondError(c, ErrBadRequest(err.Error()))
	}
	if req.ExpiresIn < 0 {
		return RespondError(c, ErrBadRequest("Expiry cannot be negative"))
	}

	owns, err := h.ownsFile(fileID, claims.UserID)
	if err != nil {
		return RespondError(c, ErrDatabase())
	}
	if !owns {
		return RespondError(c, ErrNotFound("File"))
	}

	token := generateShareToken()

	var passwordHash *string
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return RespondError(c, ErrInternal("Failed to hash password"))
		}
		hashStr := string(hash)
		passwordHash = &hashStr
	}

	var expiresAt *time.Time
	if req.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(req.ExpiresIn) * time.Hour)
		expiresAt = &t
	}

	share := Share{
		FileID:      fileID,
		Token:       token,
		URL:         h.shareURL(token),
		HasPassword: passwordHash != nil,
		ExpiresAt:   expiresAt,
	}
	err = h.db.QueryRow(`
		INSERT INTO shares (file_id, token, password_hash, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, fileID, token, passwordHash, expiresAt, claims.UserID).Scan(&share.ID, &share.CreatedAt)

	if err != nil {
		return RespondError(c, ErrInternal("Failed to create share"))
	}

	return c.JSON(http.StatusCreated, share)
}

// ListShares returns the share links for a file the user owns, newest first
func (h *ShareHandler) ListShares(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	fileID, apiErr := fileIDParam(c)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	owns, err := h.ownsFile(fileID, claims.UserID)
	if err != nil {
		return RespondError(c, ErrDatabase())
	}
	if !owns {
		return RespondError(c, ErrNotFound("File"))
	}

	rows, err := h.db.Query(`
		SELECT id, token, password_hash IS NOT NULL, expires_at, created_at
		FROM shares
		WHERE file_id = $1
		ORDER BY created_at DESC
	`, fileID)
	if err != nil {
		return RespondError(c, ErrDatabase())
	}
	defer rows.Close()

	type shareRow struct {
		id          string
		token       string
		hasPassword bool
		expiresAt   sql.NullTime
		createdAt   time.Time
	}

	var scanned []shareRow
	for rows.Next() {
		var r shareRow
		if err := rows.Scan(&r.id, &r.token, &r.hasPassword, &r.expiresAt, &r.createdAt); err != nil {
			return RespondError(c, ErrDatabase())
		}
		scanned = append(scanned, r)
	}
	if err := rows.Err(); err != nil {
		return RespondError(c, ErrDatabase())
	}

	shares := lo.Map(scanned, func(r shareRow, _ int) Share {
		share := Share{
			ID:          r.id,
			FileID:      fileID,
			Token:       r.token,
			URL:         h.shareURL(r.token),
			HasPassword: r.hasPassword,
			CreatedAt:   r.createdAt,
		}
		if r.expiresAt.Valid {
			share.ExpiresAt = &r.expiresAt.Time
		}
		return share
	})

	return c.JSON(http.StatusOK, map[string]interface{}{
		"shares": shares,
		"total":  len(shares),
	})
}

// DeleteShare revokes a share link. Only the creator may delete; everyone
// else sees not-found.
func (h *ShareHandler) DeleteShare(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	shareID := c.Param("id")

	result, err := h.db.Exec(
		"DELETE FROM shares WHERE id = $1 AND created_by = $2",
		shareID, claims.UserID,
	)
	if err != nil {
		return RespondError(c, ErrInternal("Failed to delete share"))
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return RespondError(c, ErrNotFound("Share"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Share deleted",
	})
}

// suppliedPassword extracts the share password from the request: JSON body
// on POST, query parameter on GET (direct links).
func suppliedPassword(c echo.Context) string {
	if c.Request().Method == http.MethodPost {
		var req AccessShareRequest
		if err := c.Bind(&req); err == nil && req.Password != "" {
			return req.Password
		}
	}
	return c.QueryParam("password")
}

// ResolveShare evaluates a share link and, when granted, streams the file's
// bytes. The checks run in a fixed order on every request: lookup, expiry,
// password gate. A missing password is an expected interaction point, not
// an error.
func (h *ShareHandler) ResolveShare(c echo.Context) error {
	token := c.Param("token")

	var passwordHash sql.NullString
	var expiresAt sql.NullTime
	var filename, storageKey string

	err := h.db.QueryRow(`
		SELECT s.password_hash, s.expires_at, f.filename, f.storage_key
		FROM shares s
		JOIN html_files f ON f.id = s.file_id
		WHERE s.token = $1
	`, token).Scan(&passwordHash, &expiresAt, &filename, &storageKey)

	if err == sql.ErrNoRows {
		return RespondError(c, ErrNotFound("Share"))
	}
	if err != nil {
		return RespondError(c, ErrDatabase())
	}

	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return RespondError(c, ErrShareExpired())
	}

	if passwordHash.Valid {
		password := suppliedPassword(c)
		if password == "" {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"requiresPassword": true,
			})
		}
		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash.String), []byte(password)); err != nil {
			return RespondError(c, ErrInvalidPassword())
		}
	}

	ctx := c.Request().Context()
	body, err := h.blob.Get(ctx, storageKey)
	if err != nil {
		if err == storage.ErrKeyNotFound {
			return RespondError(c, ErrNotFound("File"))
		}
		LogError("blob fetch failed", err, "storage_key", storageKey)
		return RespondError(c, ErrStorage("retrieve file"))
	}
	defer body.Close()

	c.Response().Header().Set("Content-Disposition", inlineDisposition(filename))
	return c.Stream(http.StatusOK, "text/html", body)
}
