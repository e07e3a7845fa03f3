package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/visionguard/internal/annotate"
	"github.com/ironsheep/visionguard/internal/imaging"
	"github.com/ironsheep/visionguard/internal/pipeline"
	"github.com/ironsheep/visionguard/internal/store"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "plate_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// When a tool fails after producing output, data carries both the error text
// and that output.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Warn().Err(err).Str("tool", params.Name).Msg("tool failed")
		if result != nil {
			// Partial results, such as detections stored before a write failed.
			return s.errorResponse(req.ID, -32000, "Tool execution failed", map[string]interface{}{
				"error":  err.Error(),
				"result": result,
			})
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	case "image_load":
		return s.handleImageLoad(args)
	case "plate_detect":
		return s.handlePlateDetect(ctx, args)
	case "plate_annotate":
		return s.handlePlateAnnotate(ctx, args)
	case "plate_edges":
		return s.handlePlateEdges(args)
	case "plate_clean":
		return s.handlePlateClean(ctx, args)
	case "detections_recent":
		return s.handleDetectionsRecent(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

type pathArgs struct {
	Path string `json:"path"`
}

func (s *Server) loadImage(path string) (image.Image, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	return s.cache.Load(path)
}

// ImageInfo is the image_load result.
type ImageInfo struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return ImageInfo{Path: a.Path, Width: b.Dx(), Height: b.Dy()}, nil
}

type plateDetectArgs struct {
	Path    string `json:"path"`
	Source  string `json:"source"`
	Persist *bool  `json:"persist"`
}

// DetectResult is the plate_detect result.
type DetectResult struct {
	Source     string               `json:"source"`
	Persisted  bool                 `json:"persisted"`
	Count      int                  `json:"count"`
	Detections []pipeline.Detection `json:"detections"`
}

func (s *Server) handlePlateDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a plateDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.deps.Pipeline == nil {
		return nil, errors.New("pipeline not configured")
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	if a.Source == "" {
		a.Source = pipeline.DefaultSource(a.Path)
	}

	persist := a.Persist == nil || *a.Persist
	p := s.deps.Pipeline
	if !persist {
		p = p.WithoutRecorder()
	}

	dets, err := p.Process(ctx, img, a.Source)
	if err != nil && !errors.Is(err, store.ErrWrite) {
		return nil, err
	}
	// On a write failure the detections that were stored are still reported.
	return DetectResult{
		Source:     a.Source,
		Persisted:  persist,
		Count:      len(dets),
		Detections: dets,
	}, err
}

// AnnotateResult is the plate_annotate result.
type AnnotateResult struct {
	Detections []pipeline.Detection `json:"detections"`
	*imaging.EncodedImage
}

func (s *Server) handlePlateAnnotate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.deps.Pipeline == nil {
		return nil, errors.New("pipeline not configured")
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}

	dets, err := s.deps.Pipeline.WithoutRecorder().Process(ctx, img, pipeline.DefaultSource(a.Path))
	if err != nil {
		return nil, err
	}
	enc, err := imaging.EncodePNG(annotate.Annotate(img, pipeline.Labels(dets), s.deps.Annotate))
	if err != nil {
		return nil, err
	}
	return AnnotateResult{Detections: dets, EncodedImage: enc}, nil
}

type plateEdgesArgs struct {
	Path          string `json:"path"`
	ThresholdLow  int    `json:"threshold_low"`
	ThresholdHigh int    `json:"threshold_high"`
}

func (s *Server) handlePlateEdges(args json.RawMessage) (interface{}, error) {
	var a plateEdgesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.ThresholdLow == 0 {
		a.ThresholdLow = s.deps.Processing.CannyLow
	}
	if a.ThresholdHigh == 0 {
		a.ThresholdHigh = s.deps.Processing.CannyHigh
	}
	if a.ThresholdLow > a.ThresholdHigh {
		return nil, fmt.Errorf("threshold_low %d exceeds threshold_high %d", a.ThresholdLow, a.ThresholdHigh)
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	mask := imaging.EdgeMask(img, s.deps.Processing.GaussianBlur, a.ThresholdLow, a.ThresholdHigh)
	enc, err := imaging.EncodePNG(mask)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

type plateCleanArgs struct {
	Text string `json:"text"`
}

// CleanResult is the plate_clean result.
type CleanResult struct {
	Raw     string `json:"raw"`
	Cleaned string `json:"cleaned"`
}

func (s *Server) handlePlateClean(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a plateCleanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.deps.Cleaner == nil {
		return nil, errors.New("normalizer not configured")
	}
	return CleanResult{Raw: a.Text, Cleaned: s.deps.Cleaner.Clean(ctx, a.Text)}, nil
}

type detectionsRecentArgs struct {
	Limit int `json:"limit"`
}

// RecentResult is the detections_recent result.
type RecentResult struct {
	Count      int               `json:"count"`
	Detections []store.Detection `json:"detections"`
}

func (s *Server) handleDetectionsRecent(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectionsRecentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.deps.Store == nil {
		return nil, errors.New("store not configured")
	}
	dets, err := s.deps.Store.Recent(ctx, a.Limit)
	if err != nil {
		return nil, err
	}
	return RecentResult{Count: len(dets), Detections: dets}, nil
}
