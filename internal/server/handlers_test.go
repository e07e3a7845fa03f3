package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ironsheep/visionguard/internal/annotate"
	"github.com/ironsheep/visionguard/internal/config"
	"github.com/ironsheep/visionguard/internal/detection"
	"github.com/ironsheep/visionguard/internal/normalize"
	"github.com/ironsheep/visionguard/internal/ocr"
	"github.com/ironsheep/visionguard/internal/pipeline"
	"github.com/ironsheep/visionguard/internal/store"
)

type memStore struct {
	mu      sync.Mutex
	records []store.Detection

	// failAfter, when positive, fails every insert once that many are stored.
	failAfter int
}

func (m *memStore) Insert(_ context.Context, rec store.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter > 0 && len(m.records) >= m.failAfter {
		return 0, fmt.Errorf("%w: database is locked", store.ErrWrite)
	}
	id := int64(len(m.records) + 1)
	m.records = append(m.records, store.Detection{
		ID:         id,
		Plate:      rec.Plate,
		Confidence: rec.Confidence,
		Source:     rec.Source,
		Timestamp:  rec.Timestamp,
	})
	return id, nil
}

func (m *memStore) Recent(_ context.Context, limit int) ([]store.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = store.DefaultRecentLimit
	}
	var out []store.Detection
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var plateRect = image.Rect(30, 30, 170, 70)

// writePlatePNG writes a black 200x100 image with one white plate-shaped
// rectangle and returns its path.
func writePlatePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			c := color.Color(color.Black)
			if (image.Point{X: x, Y: y}).In(plateRect) {
				c = color.White
			}
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), "car.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func newHandlerServer(t *testing.T, st *memStore) *Server {
	t.Helper()
	cleaner := normalize.New(nil, normalize.Options{})
	p, err := pipeline.New(pipeline.Options{
		Proposer: detection.ProposerFunc(func(image.Image) ([]detection.CandidateRegion, error) {
			return []detection.CandidateRegion{{Bounds: plateRect, Area: plateRect.Dx() * plateRect.Dy()}}, nil
		}),
		Recognizer: pipeline.RecognizerFunc(func(context.Context, image.Image) (ocr.Result, error) {
			return ocr.Result{Text: "ab-12 cd", Confidence: 80}, nil
		}),
		Cleaner:  cleaner,
		Recorder: st,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	return New(Deps{
		Pipeline:   p,
		Store:      st,
		Cleaner:    cleaner,
		Processing: config.DefaultProcessing(),
		Annotate:   annotate.DefaultOptions(),
		Logger:     zerolog.Nop(),
	})
}

func call(t *testing.T, s *Server, name string, args interface{}) (interface{}, error) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	return s.executeTool(context.Background(), name, raw)
}

func TestExecuteTool_UnknownTool(t *testing.T) {
	s := newHandlerServer(t, &memStore{})
	_, err := s.executeTool(context.Background(), "no_such_tool", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("got %v, want unknown tool error", err)
	}
}

func TestHandleImageLoad(t *testing.T) {
	s := newHandlerServer(t, &memStore{})
	path := writePlatePNG(t)

	res, err := call(t, s, "image_load", map[string]string{"path": path})
	if err != nil {
		t.Fatalf("image_load failed: %v", err)
	}
	info := res.(ImageInfo)
	if info.Width != 200 || info.Height != 100 {
		t.Errorf("dimensions: got %dx%d, want 200x100", info.Width, info.Height)
	}

	if _, err := call(t, s, "image_load", map[string]string{}); err == nil {
		t.Error("expected error for missing path")
	}
	if _, err := call(t, s, "image_load", map[string]string{"path": filepath.Join(t.TempDir(), "nope.png")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHandlePlateDetect(t *testing.T) {
	st := &memStore{}
	s := newHandlerServer(t, st)
	path := writePlatePNG(t)

	res, err := call(t, s, "plate_detect", map[string]string{"path": path})
	if err != nil {
		t.Fatalf("plate_detect failed: %v", err)
	}
	out := res.(DetectResult)
	if out.Count != 1 || !out.Persisted {
		t.Fatalf("got %+v, want one persisted detection", out)
	}
	d := out.Detections[0]
	if d.Plate != "AB12CD" {
		t.Errorf("plate: got %q, want AB12CD", d.Plate)
	}
	if d.Source != "image:car.png" {
		t.Errorf("source: got %q, want image:car.png", d.Source)
	}
	if d.ID != 1 {
		t.Errorf("id: got %d, want 1", d.ID)
	}
	if d.Bounds != plateRect {
		t.Errorf("bounds: got %v, want %v", d.Bounds, plateRect)
	}
	if st.count() != 1 {
		t.Errorf("stored: got %d, want 1", st.count())
	}
}

func TestHandlePlateDetect_NoPersist(t *testing.T) {
	st := &memStore{}
	s := newHandlerServer(t, st)
	path := writePlatePNG(t)

	res, err := call(t, s, "plate_detect", map[string]interface{}{
		"path": path, "source": "camera:0", "persist": false,
	})
	if err != nil {
		t.Fatalf("plate_detect failed: %v", err)
	}
	out := res.(DetectResult)
	if out.Persisted || out.Count != 1 {
		t.Errorf("got %+v, want one unpersisted detection", out)
	}
	if out.Detections[0].Source != "camera:0" {
		t.Errorf("source: got %q, want camera:0", out.Detections[0].Source)
	}
	if out.Detections[0].ID != 0 {
		t.Errorf("id: got %d, want 0", out.Detections[0].ID)
	}
	if st.count() != 0 {
		t.Errorf("stored: got %d, want 0", st.count())
	}
}

func TestHandlePlateAnnotate(t *testing.T) {
	st := &memStore{}
	s := newHandlerServer(t, st)
	path := writePlatePNG(t)

	res, err := call(t, s, "plate_annotate", map[string]string{"path": path})
	if err != nil {
		t.Fatalf("plate_annotate failed: %v", err)
	}
	out := res.(AnnotateResult)
	if len(out.Detections) != 1 {
		t.Errorf("detections: got %d, want 1", len(out.Detections))
	}
	if out.Width != 200 || out.Height != 100 || out.ImageBase64 == "" {
		t.Errorf("encoded image: got %dx%d, %d bytes", out.Width, out.Height, len(out.ImageBase64))
	}
	if st.count() != 0 {
		t.Errorf("annotate should not persist, stored %d", st.count())
	}
}

func TestHandlePlateEdges(t *testing.T) {
	s := newHandlerServer(t, &memStore{})
	path := writePlatePNG(t)

	res, err := call(t, s, "plate_edges", map[string]string{"path": path})
	if err != nil {
		t.Fatalf("plate_edges failed: %v", err)
	}
	if res == nil {
		t.Fatal("nil result")
	}

	_, err = call(t, s, "plate_edges", map[string]interface{}{
		"path": path, "threshold_low": 200, "threshold_high": 100,
	})
	if err == nil {
		t.Error("expected error when low exceeds high")
	}
}

func TestHandlePlateClean(t *testing.T) {
	s := newHandlerServer(t, &memStore{})

	res, err := call(t, s, "plate_clean", map[string]string{"text": " ab-12 cd "})
	if err != nil {
		t.Fatalf("plate_clean failed: %v", err)
	}
	out := res.(CleanResult)
	if out.Cleaned != "AB12CD" {
		t.Errorf("cleaned: got %q, want AB12CD", out.Cleaned)
	}

	empty := New(Deps{Logger: zerolog.Nop()})
	if _, err := call(t, empty, "plate_clean", map[string]string{"text": "x"}); err == nil {
		t.Error("expected error without a normalizer")
	}
}

func TestHandleDetectionsRecent(t *testing.T) {
	st := &memStore{}
	s := newHandlerServer(t, st)
	path := writePlatePNG(t)

	for i := 0; i < 3; i++ {
		if _, err := call(t, s, "plate_detect", map[string]string{"path": path}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := call(t, s, "detections_recent", map[string]int{"limit": 2})
	if err != nil {
		t.Fatalf("detections_recent failed: %v", err)
	}
	out := res.(RecentResult)
	if out.Count != 2 {
		t.Fatalf("count: got %d, want 2", out.Count)
	}
	if out.Detections[0].ID != 3 || out.Detections[1].ID != 2 {
		t.Errorf("order: got ids %d,%d, want 3,2", out.Detections[0].ID, out.Detections[1].ID)
	}

	noStore := New(Deps{Logger: zerolog.Nop()})
	if _, err := call(t, noStore, "detections_recent", map[string]int{}); err == nil {
		t.Error("expected error without a store")
	}
}

func TestHandleToolsCall(t *testing.T) {
	s := newHandlerServer(t, &memStore{})

	params, _ := json.Marshal(ToolCallParams{
		Name:      "plate_clean",
		Arguments: json.RawMessage(`{"text":"xy 9"}`),
	})
	resp := s.handleToolsCall(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 7, Method: "tools/call", Params: params})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	content := resp.Result.(map[string]interface{})["content"].([]map[string]interface{})
	text := content[0]["text"].(string)
	var out CleanResult
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	if out.Cleaned != "XY9" {
		t.Errorf("cleaned: got %q, want XY9", out.Cleaned)
	}

	params, _ = json.Marshal(ToolCallParams{Name: "image_load", Arguments: json.RawMessage(`{"path":""}`)})
	resp = s.handleToolsCall(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 8, Params: params})
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Errorf("got %+v, want tool execution error", resp.Error)
	}

	resp = s.handleToolsCall(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 9, Params: json.RawMessage(`[`)})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("got %+v, want invalid params error", resp.Error)
	}
}

func TestHandlePlateDetect_WriteFailureKeepsStored(t *testing.T) {
	st := &memStore{failAfter: 1}
	second := image.Rect(30, 75, 170, 95)
	p, err := pipeline.New(pipeline.Options{
		Proposer: detection.ProposerFunc(func(image.Image) ([]detection.CandidateRegion, error) {
			return []detection.CandidateRegion{{Bounds: plateRect}, {Bounds: second}}, nil
		}),
		Recognizer: pipeline.RecognizerFunc(func(context.Context, image.Image) (ocr.Result, error) {
			return ocr.Result{Text: "AB12CD", Confidence: 80}, nil
		}),
		Cleaner:  normalize.New(nil, normalize.Options{}),
		Recorder: st,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	s := New(Deps{Pipeline: p, Store: st, Logger: zerolog.Nop()})

	params, _ := json.Marshal(ToolCallParams{
		Name:      "plate_detect",
		Arguments: json.RawMessage(fmt.Sprintf(`{"path":%q}`, writePlatePNG(t))),
	})
	resp := s.handleToolsCall(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Params: params})
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Fatalf("got %+v, want tool execution error", resp.Error)
	}

	data, ok := resp.Error.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("error data: got %T, want map with partial result", resp.Error.Data)
	}
	if !strings.Contains(data["error"].(string), "database is locked") {
		t.Errorf("error text: got %v", data["error"])
	}
	out, ok := data["result"].(DetectResult)
	if !ok {
		t.Fatalf("result: got %T, want DetectResult", data["result"])
	}
	if out.Count != 1 || out.Detections[0].ID != 1 {
		t.Errorf("got %+v, want the one stored detection", out)
	}
	if st.count() != 1 {
		t.Errorf("stored: got %d, want 1", st.count())
	}
}

func TestHandlePlateDetect_NoPipeline(t *testing.T) {
	s := New(Deps{Logger: zerolog.Nop()})
	path := writePlatePNG(t)
	if _, err := call(t, s, "plate_detect", map[string]string{"path": path}); err == nil {
		t.Fatal("expected error without a pipeline")
	}
}
