package http

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

// multipart overhead allowed on top of the image itself
const formOverheadBytes = 1 << 20

// Advise answers POST /advice. The body is either multipart/form-data with a
// "file" part, or JSON carrying asset_id or base_hex. target_role, cache_ok,
// force_recompute and any known phase parameter may also be passed as query
// parameters (or form fields for uploads).
func (h *Handler) Advise(c *gin.Context) {
	req, err := h.bindRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}

	resp, err := h.processor.Process(c.Request.Context(), req)
	if err != nil {
		if domain.IsValidation(err) {
			writeError(c, err)
			return
		}
		log.Printf("[error] request_id=%s operation=advise error=%v", c.GetString("request_id"), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to process request"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) bindRequest(c *gin.Context) (*domain.Request, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return h.bindUpload(c)
	}

	var body AdviceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, domain.NewValidationError("", "invalid json body")
	}

	params := make(map[string]string, len(body.Params))
	for k, v := range body.Params {
		if v != nil {
			params[k] = fmt.Sprint(v)
		}
	}
	opts, err := options(c, c.Query, params)
	if err != nil {
		return nil, err
	}
	if body.TargetRole != "" && c.Query("target_role") == "" {
		opts.TargetRole = domain.TargetRole(strings.ToLower(body.TargetRole))
	}
	if body.CacheOK != nil && c.Query("cache_ok") == "" {
		opts.CacheOK = *body.CacheOK
	}
	opts.ForceRecompute = opts.ForceRecompute || body.ForceRecompute

	switch {
	case body.AssetID != "" && body.BaseHex != "":
		return nil, domain.NewValidationError("", "asset_id and base_hex are mutually exclusive")
	case body.AssetID != "":
		return domain.NewAssetReference(body.AssetID, opts), nil
	case body.BaseHex != "":
		return domain.NewDirectColor(body.BaseHex, opts), nil
	}
	return nil, domain.NewValidationError("", "one of file, asset_id or base_hex is required")
}

func (h *Handler) bindUpload(c *gin.Context) (*domain.Request, error) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverheadBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.NewValidationError("file", "image exceeds %d bytes", h.maxUploadBytes)
		}
		return nil, domain.NewValidationError("file", "file is required")
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return nil, domain.NewValidationError("file", "image exceeds %d bytes", h.maxUploadBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, domain.NewValidationError("file", "file could not be read")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.NewValidationError("file", "file could not be read")
	}

	lookup := func(key string) string {
		if v := c.PostForm(key); v != "" {
			return v
		}
		return c.Query(key)
	}
	opts, err := options(c, lookup, nil)
	if err != nil {
		return nil, err
	}
	return domain.NewImageUpload(data, fh.Header.Get("Content-Type"), opts), nil
}

// options reads the shared request options. params holds body parameters;
// known parameters found through lookup override them.
func options(c *gin.Context, lookup func(string) string, params map[string]string) (domain.Options, error) {
	opts := domain.DefaultOptions()
	opts.IdempotencyKey = strings.TrimSpace(c.GetHeader("X-Idempotency-Key"))

	if role := lookup("target_role"); role != "" {
		opts.TargetRole = domain.TargetRole(strings.ToLower(role))
	}

	var err error
	if opts.CacheOK, err = boolOption(lookup, "cache_ok", true); err != nil {
		return opts, err
	}
	if opts.ForceRecompute, err = boolOption(lookup, "force_recompute", false); err != nil {
		return opts, err
	}

	if params == nil {
		params = make(map[string]string)
	}
	for _, name := range domain.ParamNames() {
		if v := lookup(name); v != "" {
			params[name] = v
		}
	}
	opts.Params = params
	return opts, nil
}

func boolOption(lookup func(string) string, key string, def bool) (bool, error) {
	raw := lookup(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, domain.NewValidationError(key, "expected boolean, got %q", raw)
	}
	return v, nil
}

func writeError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Field: verr.Field})
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}
