package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/svrforum/PageVault/api/storage"
)

// FileHandler manages uploaded HTML documents. Catalog rows live in
// Postgres; the bytes live in the blob store under an opaque key.
type FileHandler struct {
	db   *sql.DB
	blob storage.BlobStore
	auth *AuthHandler
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(db *sql.DB, blob storage.BlobStore, auth *AuthHandler) *FileHandler {
	return &FileHandler{
		db:   db,
		blob: blob,
		auth: auth,
	}
}

// HTMLFile represents an uploaded document
type HTMLFile struct {
	ID               int64     `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"originalFilename"`
	StorageKey       string    `json:"-"`
	IsLocked         bool      `json:"isLocked"`
	OwnerID          string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// LockUpdateRequest represents a lock flag update
type LockUpdateRequest struct {
	IsLocked bool `json:"isLocked"`
}

// inlineDisposition builds an inline Content-Disposition header. Quotes and
// backslashes would terminate or escape the quoted-string form, so they are
// stripped from the filename.
func inlineDisposition(filename string) string {
	sanitized := strings.NewReplacer(`"`, "", `\`, "").Replace(filename)
	return fmt.Sprintf(`inline; filename="%s"`, sanitized)
}

func fileIDParam(c echo.Context) (int64, *APIError) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrBadRequest("Invalid file id")
	}
	return id, nil
}

// Upload stores an HTML document. The payload goes to the blob store first;
// the catalog row is only written once the bytes are durable.
func (h *FileHandler) Upload(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return RespondError(c, ErrBadRequest("File is required"))
	}

	if err := ValidateHTMLFilename(fileHeader.Filename); err != nil {
		return RespondError(c, ErrBadRequest(err.Error()))
	}

	isLocked := c.FormValue("is_locked") == "true"

	src, err := fileHeader.Open()
	if err != nil {
		return RespondError(c, ErrBadRequest("Failed to read file"))
	}
	defer src.Close()

	// Key is namespaced by owner so a compromised key never crosses
	// tenant boundaries.
	storageKey := fmt.Sprintf("%s/%s.html", claims.UserID, uuid.NewString())

	ctx := c.Request().Context()
	if err := h.blob.Put(ctx, storageKey, src, "text/html"); err != nil {
		LogError("blob upload failed", err, "storage_key", storageKey)
		return RespondError(c, ErrStorage("upload file"))
	}

	var file HTMLFile
	err = h.db.QueryRow(`
		INSERT INTO html_files (filename, original_filename, storage_key, is_locked, owner_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, filename, original_filename, storage_key, is_locked, created_at, updated_at
	`, fileHeader.Filename, fileHeader.Filename, storageKey, isLocked, claims.UserID).Scan(
		&file.ID, &file.Filename, &file.OriginalFilename, &file.StorageKey,
		&file.IsLocked, &file.CreatedAt, &file.UpdatedAt)

	if err != nil {
		// The bytes are orphaned without a catalog row; reclaim them.
		if delErr := h.blob.Delete(ctx, storageKey); delErr != nil {
			LogError("failed to clean up orphaned blob", delErr, "storage_key", storageKey)
		}
		return RespondError(c, ErrInternal("Failed to save file"))
	}

	return c.JSON(http.StatusCreated, file)
}

// List returns the current user's files, newest first
func (h *FileHandler) List(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	rows, err := h.db.Query(`
		SELECT id, filename, original_filename, storage_key, is_locked, created_at, updated_at
		FROM html_files
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, claims.UserID)
	if err != nil {
		return RespondError(c, ErrDatabase())
	}
	defer rows.Close()

	files := []HTMLFile{}
	for rows.Next() {
		var file HTMLFile
		if err := rows.Scan(&file.ID, &file.Filename, &file.OriginalFilename,
			&file.StorageKey, &file.IsLocked, &file.CreatedAt, &file.UpdatedAt); err != nil {
			return RespondError(c, ErrDatabase())
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return RespondError(c, ErrDatabase())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"files": files,
		"total": len(files),
	})
}

// Get streams a file's bytes to its owner. The token is taken from the
// query parameter with precedence over the header: the endpoint is loaded
// from iframes and direct navigation, which cannot set headers.
func (h *FileHandler) Get(c echo.Context) error {
	tokenString := c.QueryParam("token")
	if tokenString == "" {
		tokenString = bearerToken(c)
	}
	if tokenString == "" {
		return RespondError(c, ErrUnauthorized(""))
	}

	claims, authErr := h.auth.PrincipalFromToken(tokenString)
	if authErr != nil {
		return RespondError(c, ErrUnauthorized("Invalid or expired token"))
	}

	fileID, apiErr := fileIDParam(c)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	var filename, storageKey string
	err := h.db.QueryRow(`
		SELECT filename, storage_key
		FROM html_files
		WHERE id = $1 AND owner_id = $2
	`, fileID, claims.UserID).Scan(&filename, &storageKey)

	if err == sql.ErrNoRows {
		return RespondError(c, ErrNotFound("File"))
	}
	if err != nil {
		return RespondError(c, ErrDatabase())
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

// UpdateLock sets or clears the lock flag on a file
func (h *FileHandler) UpdateLock(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	fileID, apiErr := fileIDParam(c)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	var req LockUpdateRequest
	if err := c.Bind(&req); err != nil {
		return RespondError(c, ErrBadRequest("Invalid request"))
	}

	var file HTMLFile
	row := h.db.QueryRow(`
		UPDATE html_files
		SET is_locked = $1, updated_at = NOW()
		WHERE id = $2 AND owner_id = $3
		RETURNING id, filename, original_filename, storage_key, is_locked, created_at, updated_at
	`, req.IsLocked, fileID, claims.UserID)
	scanErr := row.Scan(&file.ID, &file.Filename, &file.OriginalFilename,
		&file.StorageKey, &file.IsLocked, &file.CreatedAt, &file.UpdatedAt)

	if scanErr == sql.ErrNoRows {
		return RespondError(c, ErrNotFound("File"))
	}
	if scanErr != nil {
		return RespondError(c, ErrDatabase())
	}

	return c.JSON(http.StatusOK, file)
}

// Delete removes a file's catalog row and its stored bytes. Locked files
// reject deletion. A blob store failure never blocks the row deletion; it
// is reported and the row is removed anyway.
func (h *FileHandler) Delete(c echo.Context) error {
	claims, err := RequireClaims(c)
	if err != nil {
		return err
	}

	fileID, apiErr := fileIDParam(c)
	if apiErr != nil {
		return RespondError(c, apiErr)
	}

	var storageKey string
	var isLocked bool
	row := h.db.QueryRow(`
		SELECT storage_key, is_locked
		FROM html_files
		WHERE id = $1 AND owner_id = $2
	`, fileID, claims.UserID)
	if scanErr := row.Scan(&storageKey, &isLocked); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return RespondError(c, ErrNotFound("File"))
		}
		return RespondError(c, ErrDatabase())
	}

	if isLocked {
		return RespondError(c, ErrResourceLocked())
	}

	if delErr := h.blob.Delete(c.Request().Context(), storageKey); delErr != nil {
		LogError("blob delete failed, removing catalog row anyway", delErr,
			"storage_key", storageKey, "file_id", fileID)
	}

	if _, execErr := h.db.Exec(
		"DELETE FROM html_files WHERE id = $1 AND owner_id = $2",
		fileID, claims.UserID,
	); execErr != nil {
		return RespondError(c, ErrInternal("Failed to delete file"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "File deleted successfully",
	})
}
