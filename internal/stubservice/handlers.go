package stubservice

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/label"
)

// MaxUploadSize caps the accepted image size.
const MaxUploadSize = 10 << 20

var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

type labelRequest struct {
	ROISHA256   string             `json:"roi_sha256" binding:"required"`
	Labels      map[string]float64 `json:"labels"`
	Fitzpatrick *string            `json:"fitzpatrick" binding:"omitempty,oneof=I II III IV V VI"`
	AgeBand     *string            `json:"age_band"`
}

// NewRouter builds a gin engine serving the analysis service contract.
func NewRouter(backend *Backend, opts Options, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, backend, opts, logger)
	return router
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, backend *Backend, opts Options, logger *zap.Logger) {
	logger = logger.Named("stubservice")
	issuer := &tokenIssuer{secret: []byte(opts.JWTSecret), ttl: opts.TokenTTL, now: time.Now}
	if backend.now != nil {
		issuer.now = backend.now
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")

	v1.POST("/session", func(c *gin.Context) {
		deviceToken := c.GetHeader("X-Device-Token")
		if opts.RequireAuth && deviceToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Missing X-Device-Token"})
			return
		}

		var dvh string
		if deviceToken != "" {
			dvh = issuer.deviceHash(deviceToken)
		}
		sid := backend.createSession(dvh)

		var token *string
		if dvh != "" {
			minted, err := issuer.mint(sid, dvh)
			if err != nil {
				logger.Error("failed to mint access token", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to mint token"})
				return
			}
			token = &minted
		}
		logger.Info("session created", zap.String("session_id", sid))
		c.JSON(http.StatusOK, gin.H{"session_id": sid, "access_token": token})
	})

	authed := v1.Group("", requireUserAuth(backend, issuer, opts.RequireAuth))

	v1.GET("/legal/bundle", func(c *gin.Context) {
		if opts.LegalVersion == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Legal documents not configured"})
			return
		}
		c.JSON(http.StatusOK, legalBundle(opts.LegalVersion, backend.startedAt))
	})

	authed.POST("/consent", func(c *gin.Context) {
		var payload struct {
			StoreProgressImages    *bool  `json:"store_progress_images" binding:"required"`
			DonateForImprovement   *bool  `json:"donate_for_improvement" binding:"required"`
			AcceptedPrivacyVersion string `json:"accepted_privacy_version" binding:"max=64"`
			AcceptedTermsVersion   string `json:"accepted_terms_version" binding:"max=64"`
			AcceptedConsentVersion string `json:"accepted_consent_version" binding:"max=64"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}
		sid := c.GetString(sessionIDKey)
		consent := apiclient.Consent{
			StoreProgressImages:  *payload.StoreProgressImages,
			DonateForImprovement: *payload.DonateForImprovement,
			LegalVersions: stampVersions(apiclient.LegalVersions{
				PrivacyVersion: payload.AcceptedPrivacyVersion,
				TermsVersion:   payload.AcceptedTermsVersion,
				ConsentVersion: payload.AcceptedConsentVersion,
			}, opts.LegalVersion),
		}
		if !backend.upsertConsent(sid, consent) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	authed.POST("/analyze", func(c *gin.Context) {
		data, ok := readJPEG(c)
		if !ok {
			return
		}
		result := backend.analyze(c.GetString(sessionIDKey), data)
		c.JSON(http.StatusOK, result)
	})

	authed.POST("/donate", func(c *gin.Context) {
		data, ok := readJPEG(c)
		if !ok {
			return
		}
		sid := c.GetString(sessionIDKey)
		stored, reason, roi, found := backend.donate(sid, data)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
			return
		}
		var roiField *string
		if roi != "" {
			roiField = &roi
		}
		logger.Info("donation handled", zap.Bool("stored", stored), zap.String("reason", reason))
		c.JSON(http.StatusOK, gin.H{"ok": true, "stored": stored, "reason": reason, "roi_sha256": roiField})
	})

	authed.POST("/label", func(c *gin.Context) {
		var req labelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}
		sub := label.Submission{ROISHA256: req.ROISHA256, Labels: label.Labels{}}
		for k, v := range req.Labels {
			attr := label.Attribute(k)
			if !attr.Valid() {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "unknown attribute: " + k})
				return
			}
			sub.Labels[attr] = v
		}
		if req.Fitzpatrick != nil {
			f := label.Fitzpatrick(*req.Fitzpatrick)
			sub.Fitzpatrick = &f
		}
		if req.AgeBand != nil {
			band := label.AgeBand(*req.AgeBand)
			if !band.Valid() {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid age_band"})
				return
			}
			sub.AgeBand = &band
		}

		stored, reason := backend.storeLabels(c.GetString(sessionIDKey), sub)
		c.JSON(http.StatusOK, gin.H{"ok": true, "stored": stored, "reason": reason, "roi_sha256": req.ROISHA256})
	})

	authed.GET("/progress/list", func(c *gin.Context) {
		c.JSON(http.StatusOK, backend.listProgress(c.GetString(sessionIDKey)))
	})

	authed.POST("/progress/delete_all", func(c *gin.Context) {
		n := backend.deleteProgress(c.GetString(sessionIDKey))
		logger.Info("progress deleted", zap.Int("entries", n))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	authed.POST("/me/delete", func(c *gin.Context) {
		res := backend.deleteMe(c.GetString(sessionIDKey))
		c.JSON(http.StatusOK, gin.H{
			"ok":                       true,
			"deleted_progress_entries": res.DeletedProgressEntries,
			"withdrawn_donations":      res.WithdrawnDonations,
			"deleted_consent":          res.DeletedConsent,
			"deleted_session":          res.DeletedSession,
		})
	})
}

// readJPEG reads the multipart image field and writes the error response
// itself when the upload is missing, too large or not a JPEG.
func readJPEG(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+1<<20)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "image too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "image file is required"})
		return nil, false
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "image too large"})
		return nil, false
	}
	if ct := file.Header.Get("Content-Type"); ct != "image/jpeg" {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"detail": "image must be image/jpeg"})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unable to open image"})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to read image"})
		return nil, false
	}
	if !bytes.HasPrefix(data, jpegMagic) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid image upload: not a JPEG"})
		return nil, false
	}
	return data, true
}
