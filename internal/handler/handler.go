package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/face"
	"faceattend/internal/faceclient"
	"faceattend/internal/imagestore"
	"faceattend/internal/notify"
	"faceattend/internal/queue"
	"faceattend/internal/token"
)

// Handler carries the service handles for all HTTP endpoints.
type Handler struct {
	cfg       config.App
	svc       *attendance.Service
	faces     face.Store
	tokens    token.Store
	q         queue.Queue
	images    *imagestore.Client // nil when Cloudinary is not configured
	extractor *faceclient.Client
}

// New creates a handler.
func New(cfg config.App, svc *attendance.Service, faces face.Store, tokens token.Store,
	q queue.Queue, images *imagestore.Client, extractor *faceclient.Client) *Handler {
	return &Handler{cfg: cfg, svc: svc, faces: faces, tokens: tokens, q: q, images: images, extractor: extractor}
}

// ---------- Sessions ----------

type createSessionRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	Role       string `json:"role"`
	DeviceName string `json:"device_name"`
}

// CreateSession issues a signed session credential and records its jti in
// the token store. The raw token is returned once and never persisted; if
// the store write fails no credential is handed out.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := req.Role
	if role == "" {
		role = "employee"
	}

	sess, err := auth.Issue(req.UserID, role, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.SessionTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	if _, err := h.tokens.Issue(c.Request.Context(), token.IssueRequest{
		ID:            sess.TokenID,
		OwnerID:       req.UserID,
		RawCredential: sess.Token,
		TTL:           h.cfg.SessionTTL,
		DeviceName:    req.DeviceName,
		IPAddress:     c.ClientIP(),
	}); err != nil {
		// The session row is part of the unit of work: without it the
		// credential could never be revoked, so the login fails.
		log.Printf("session record write failed for %s: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session persist failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":      sess.Token,
		"token_id":   sess.TokenID,
		"expires_at": sess.ExpiresAt.Unix(),
	})
}

// Logout revokes the caller's own session.
func (h *Handler) Logout(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	if err := h.tokens.Revoke(c.Request.Context(), claims.ID, "logout"); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": claims.ID})
}

// LogoutEverywhere revokes every live session of the caller.
func (h *Handler) LogoutEverywhere(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	n, err := h.tokens.RevokeAllForOwner(c.Request.Context(), claims.Subject, "logout everywhere")
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

// ListSessions returns the caller's session rows, raw credentials excluded.
func (h *Handler) ListSessions(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	sessions, err := h.tokens.ListForOwner(c.Request.Context(), claims.Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ---------- Check-ins ----------

type faceCheckInRequest struct {
	Embedding []float64 `json:"embedding"`
	ImageURL  string    `json:"image_url"`
	Threshold *float64  `json:"threshold"`
}

// FaceCheckIn resolves a probe against the enrolled corpus and marks
// attendance for the matched owner.
func (h *Handler) FaceCheckIn(c *gin.Context) {
	var req faceCheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	probe := req.Embedding
	if len(probe) == 0 {
		if req.ImageURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "embedding or image_url required"})
			return
		}
		embedded, err := h.extractor.Embed(c.Request.Context(), req.ImageURL)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		probe = embedded.Embedding
	}

	res, err := h.svc.CheckInBiometric(c.Request.Context(), probe, req.Threshold)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !res.Match.Recognized {
		c.JSON(http.StatusUnauthorized, gin.H{"recognized": false, "reason": res.Match.Reason})
		return
	}
	if !res.Mark.Created {
		c.JSON(http.StatusConflict, gin.H{
			"recognized": true,
			"owner_id":   res.Match.OwnerID,
			"error":      "attendance already marked for today",
			"record":     res.Mark.Record,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"recognized": true,
		"owner_id":   res.Match.OwnerID,
		"confidence": res.Match.Confidence,
		"distance":   res.Match.Distance,
		"record":     res.Mark.Record,
		"notified":   h.publishMark(c, res.Mark.Record),
	})
}

type sessionCheckInRequest struct {
	Location string `json:"location"`
}

// SessionCheckIn marks attendance for the authenticated caller.
func (h *Handler) SessionCheckIn(c *gin.Context) {
	var req sessionCheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.ClaimsFrom(c)

	res, err := h.svc.CheckInSession(c.Request.Context(), claims.Subject, req.Location)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !res.Created {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "attendance already marked for today",
			"record": res.Record,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"record":   res.Record,
		"notified": h.publishMark(c, res.Record),
	})
}

// publishMark enqueues a marked-attendance event. Publishing is outside the
// write's unit of work; a failure is reported to the caller and logged,
// never silently dropped.
func (h *Handler) publishMark(c *gin.Context, rec attendance.Record) bool {
	body, err := notify.EncodeEvent(rec)
	if err == nil {
		err = h.q.Publish(c.Request.Context(), queue.Message{Type: "mark", Body: body})
	}
	if err != nil {
		log.Printf("mark event publish failed for record %s: %v", rec.ID, err)
		return false
	}
	return true
}

// ---------- Attendance admin ----------

// QueryAttendance lists records with optional filters.
func (h *Handler) QueryAttendance(c *gin.Context) {
	filter := attendance.QueryFilter{
		OwnerID:    c.Query("owner_id"),
		From:       c.Query("from"),
		To:         c.Query("to"),
		Department: c.Query("department"),
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filter.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filter.Offset = parsed
		}
	}
	records, err := h.svc.Ledger().Query(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

type bulkMarkRequest struct {
	Owners   []string `json:"owners" binding:"required"`
	Day      string   `json:"day" binding:"required"`
	Status   string   `json:"status" binding:"required"`
	Location string   `json:"location"`
}

// BulkMark marks many owners for one day; each outcome is independent.
func (h *Handler) BulkMark(c *gin.Context) {
	var req bulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := time.Parse(attendance.DayFormat, req.Day); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD"})
		return
	}
	outcomes := h.svc.BulkMark(c.Request.Context(), req.Owners, req.Day, status, req.Location)
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

type updateRecordRequest struct {
	Status   *string `json:"status"`
	Location *string `json:"location"`
}

// UpdateRecord amends a record's status and/or location.
func (h *Handler) UpdateRecord(c *gin.Context) {
	var req updateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var upd attendance.RecordUpdate
	if req.Status != nil {
		status, err := attendance.ParseStatus(*req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		upd.Status = &status
	}
	upd.Location = req.Location

	rec, err := h.svc.Ledger().Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// DeleteRecord removes a record, freeing the day slot.
func (h *Handler) DeleteRecord(c *gin.Context) {
	if err := h.svc.Ledger().Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// TodaySummary aggregates today's presence per department.
func (h *Handler) TodaySummary(c *gin.Context) {
	summary, err := h.svc.Ledger().TodaySummary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// ---------- Enrollment ----------

type enrollRequest struct {
	ImageURL  string    `json:"image_url"`
	ImageData string    `json:"image_data"` // base64 data URL
	Embedding []float64 `json:"embedding"`
}

// Enroll stores a new pending embedding for the authenticated caller. The
// image is uploaded first so the stored embedding links to its source photo.
func (h *Handler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.ClaimsFrom(c)

	count, err := h.faces.CountVerifiedForOwner(c.Request.Context(), claims.Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if count >= h.cfg.MaxFaceImages {
		c.JSON(http.StatusConflict, gin.H{"error": "maximum face images already enrolled"})
		return
	}

	imageURL := req.ImageURL
	if req.ImageData != "" {
		if h.images == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return
		}
		uploaded, err := h.images.UploadBase64(req.ImageData)
		if err != nil {
			log.Printf("capture upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return
		}
		imageURL = uploaded.SecureURL
	}

	emb := face.Embedding{
		OwnerID:    claims.Subject,
		Vector:     req.Embedding,
		ImageURL:   imageURL,
		CapturedAt: time.Now().UTC(),
	}
	if len(emb.Vector) == 0 {
		if imageURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "embedding, image_url or image_data required"})
			return
		}
		extracted, err := h.extractor.Embed(c.Request.Context(), imageURL)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		emb.Vector = extracted.Embedding
		emb.FaceConfidence = &extracted.Score
		if extracted.Quality != nil {
			emb.QualityScore = &extracted.Quality.Score
		}
	}
	if h.cfg.EmbeddingDim > 0 && len(emb.Vector) != h.cfg.EmbeddingDim {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": (&face.DimensionError{Want: h.cfg.EmbeddingDim, Got: len(emb.Vector)}).Error(),
		})
		return
	}
	if imageURL != "" {
		sum := sha256.Sum256([]byte(imageURL))
		emb.ImageHash = hex.EncodeToString(sum[:])
	}

	if err := h.faces.Add(c.Request.Context(), &emb); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"encoding_id": emb.ID,
		"status":      emb.Status,
		"message":     "face enrolled, awaiting verification",
	})
}

type verifyFaceRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

// VerifyFace moves an embedding through the verification workflow.
func (h *Handler) VerifyFace(c *gin.Context) {
	var req verifyFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := face.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.faces.SetStatus(c.Request.Context(), c.Param("id"), status, req.Notes); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"encoding_id": c.Param("id"), "status": status})
}

// ListFaces returns the caller's enrolled embeddings.
func (h *Handler) ListFaces(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	embeddings, err := h.faces.ListForOwner(c.Request.Context(), claims.Subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"faces": embeddings})
}

// DeleteFaces removes every embedding of an owner.
func (h *Handler) DeleteFaces(c *gin.Context) {
	ownerID := c.Param("ownerID")
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != "admin" && claims.Subject != ownerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot delete another owner's faces"})
		return
	}
	n, err := h.faces.RemoveAllForOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// ---------- Error mapping ----------

// writeError maps domain errors to transport status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	var dimErr *face.DimensionError
	switch {
	case errors.As(err, &dimErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": dimErr.Error()})
	case errors.Is(err, attendance.ErrNotFound),
		errors.Is(err, face.ErrNotFound),
		errors.Is(err, token.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
