package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/imagelens/internal/logger"
	"github.com/tphakala/imagelens/internal/pipeline"
	"github.com/tphakala/imagelens/internal/vision"
)

// imageFormField is the multipart field holding the image.
const imageFormField = "image"

// AnalyzeResponse is the body of a successful analyze call.
type AnalyzeResponse struct {
	Result  *vision.AnalysisResult `json:"result"`
	Context string                 `json:"aiContext"`
}

// ConfigResponse reports the requested and the negotiated configuration.
type ConfigResponse struct {
	Requested pipeline.Config `json:"requested"`
	Effective pipeline.Config `json:"effective"`
}

// analyze accepts either a multipart upload in the "image" field or the raw
// image as the request body. Optional query parameters: layers (comma
// separated layer names) and capturedAt (RFC 3339).
func (s *Server) analyze(c echo.Context) error {
	data, err := s.readImage(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return s.HandleError(c, err, "image exceeds upload limit", http.StatusRequestEntityTooLarge)
		}
		return s.HandleError(c, err, "failed to read image", http.StatusBadRequest)
	}
	if len(data) == 0 {
		return s.HandleError(c, nil, "empty image", http.StatusBadRequest)
	}
	if s.metrics != nil {
		s.metrics.HTTP.RecordUploadSize(len(data))
	}

	var opts []pipeline.AnalyzeOption
	if raw := c.QueryParam("layers"); raw != "" {
		cfg := s.analyzer.Config()
		cfg.EnabledLayers = vision.ParseLayerSet(strings.Split(raw, ","))
		opts = append(opts, pipeline.WithConfigOverride(cfg))
	}
	if raw := c.QueryParam("capturedAt"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return s.HandleError(c, err, "invalid capturedAt", http.StatusBadRequest)
		}
		opts = append(opts, pipeline.WithCapturedAt(ts))
	}

	result, err := s.analyzer.Analyze(c.Request().Context(), data, opts...)
	switch {
	case errors.Is(err, vision.ErrInvalidImage):
		return s.HandleError(c, err, "image could not be decoded", http.StatusUnprocessableEntity)
	case errors.Is(err, vision.ErrNoLayersEnabled):
		return s.HandleError(c, err, "no analysis layers can run", http.StatusUnprocessableEntity)
	case err != nil:
		return s.HandleError(c, err, "analysis failed", http.StatusInternalServerError)
	}

	return c.JSON(http.StatusOK, AnalyzeResponse{
		Result:  result,
		Context: result.GenerateAIContext(),
	})
}

func (s *Server) readImage(c echo.Context) ([]byte, error) {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.config.MaxUploadSize)

	if !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return io.ReadAll(req.Body)
	}

	fh, err := c.FormFile(imageFormField)
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// progressStream sends progress events as server-sent events until the client
// goes away.
func (s *Server) progressStream(c echo.Context) error {
	events, cancel := s.analyzer.Subscribe()
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ctx.Done():
			return nil
		case p, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(res, "event: progress\ndata: %s\n\n", data); err != nil {
				s.log.Debug("progress stream closed", logger.Error(err))
				return nil
			}
			res.Flush()
		}
	}
}

func (s *Server) getConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, ConfigResponse{
		Requested: s.analyzer.RequestedConfig(),
		Effective: s.analyzer.Config(),
	})
}

// putConfig replaces the requested configuration. Fields missing from the
// body keep their current values.
func (s *Server) putConfig(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
	if err != nil {
		return s.HandleError(c, err, "failed to read body", http.StatusBadRequest)
	}

	cfg, err := pipeline.UnmarshalConfig(bytes.TrimSpace(body), s.analyzer.RequestedConfig())
	if err != nil {
		return s.HandleError(c, err, "invalid configuration", http.StatusBadRequest)
	}
	if err := s.analyzer.SetConfig(cfg); err != nil {
		if errors.Is(err, vision.ErrNoLayersEnabled) {
			return s.HandleError(c, err, "no analysis layers can run", http.StatusUnprocessableEntity)
		}
		return s.HandleError(c, err, "failed to apply configuration", http.StatusInternalServerError)
	}

	// The requested set is stored so layers this host cannot run come back
	// when the same preferences are loaded on a capable one.
	if s.preferences != nil {
		if err := pipeline.SaveConfig(s.preferences, cfg); err != nil {
			return s.HandleError(c, err, "configuration applied but not saved", http.StatusInternalServerError)
		}
	}

	return s.getConfig(c)
}

func (s *Server) cacheStats(c echo.Context) error {
	if s.cache == nil {
		return s.HandleError(c, nil, "result cache disabled", http.StatusNotFound)
	}
	stats, err := s.cache.Stats(c.Request().Context())
	if err != nil {
		return s.HandleError(c, err, "failed to read cache stats", http.StatusInternalServerError)
	}
	if s.metrics != nil {
		s.metrics.Cache.SetCacheStats(stats.Count, stats.SizeBytes)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) clearCache(c echo.Context) error {
	if s.cache == nil {
		return s.HandleError(c, nil, "result cache disabled", http.StatusNotFound)
	}
	if err := s.cache.Clear(c.Request().Context()); err != nil {
		return s.HandleError(c, err, "failed to clear cache", http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) removeCacheEntry(c echo.Context) error {
	if s.cache == nil {
		return s.HandleError(c, nil, "result cache disabled", http.StatusNotFound)
	}
	if err := s.cache.Remove(c.Request().Context(), c.Param("hash")); err != nil {
		return s.HandleError(c, err, "failed to remove cache entry", http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

// getResult finds a cached result by its id. This scans the whole cache.
func (s *Server) getResult(c echo.Context) error {
	if s.cache == nil {
		return s.HandleError(c, nil, "result cache disabled", http.StatusNotFound)
	}
	result, ok, err := s.cache.LookupByResultID(c.Request().Context(), c.Param("id"))
	switch {
	case err != nil:
		return s.HandleError(c, err, "failed to look up result", http.StatusInternalServerError)
	case !ok:
		return s.HandleError(c, nil, "result not found", http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, result)
}
