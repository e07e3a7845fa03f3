// Package config loads the runtime configuration for the plate reader.
//
// Configuration is read once at startup from an INI file (viper), with
// environment overrides prefixed VISIONGUARD_ and secrets from an optional
// .env file (godotenv). The resulting values are read-only and safe to share
// between goroutines.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// ErrInvalidConfig is returned when a configuration value violates an ordering
// or range invariant.
var ErrInvalidConfig = errors.New("invalid config")

// App holds process-level settings.
type App struct {
	DBDriver       string
	DBPath         string
	DBDSN          string
	SnapshotDir    string
	TessdataPrefix string
	OCRLanguage    string
	OCRTimeout     time.Duration
	Workers        int
	LogLevel       string
	LogDir         string
}

// Gemini controls the optional remote text cleanup.
type Gemini struct {
	Enable  bool
	Model   string
	Timeout time.Duration
	APIKey  string
}

// Detector selects and parameterizes the region proposer strategy.
type Detector struct {
	Strategy       string
	Model          string
	ConfigPath     string
	Classes        []string
	LabelsFile     string
	ScoreThreshold float64
	NMSThreshold   float64
	InputSize      int
}

// Annotate controls the overlay drawn on annotated images.
type Annotate struct {
	Color     string
	Thickness int
}

// HTTP configures the review API.
type HTTP struct {
	Addr        string
	CORSOrigins []string

	// JWTSecret, when set, requires an HS256 bearer token on write endpoints.
	JWTSecret string
}

// Config is the full configuration surface.
type Config struct {
	App        App
	Processing Processing
	Gemini     Gemini
	Detector   Detector
	Annotate   Annotate
	HTTP       HTTP
}

const (
	StrategyContour = "contour"
	StrategyDNN     = "dnn"
)

func setDefaults(v *viper.Viper) {
	d := DefaultProcessing()
	v.SetDefault("processing.min_plate_area", d.MinPlateArea)
	v.SetDefault("processing.max_plate_area", d.MaxPlateArea)
	v.SetDefault("processing.gaussian_blur", d.GaussianBlur)
	v.SetDefault("processing.canny_low", d.CannyLow)
	v.SetDefault("processing.canny_high", d.CannyHigh)
	v.SetDefault("processing.plate_aspect_low", d.AspectLow)
	v.SetDefault("processing.plate_aspect_high", d.AspectHigh)
	v.SetDefault("processing.adaptive_thresh_block", d.AdaptiveBlock)
	v.SetDefault("processing.adaptive_thresh_c", d.AdaptiveC)

	v.SetDefault("app.db_driver", "sqlite")
	v.SetDefault("app.db_path", "data/db/alpr.sqlite3")
	v.SetDefault("app.db_dsn", "")
	v.SetDefault("app.snapshot_dir", "data/logs")
	v.SetDefault("app.tesseract_cmd", "")
	v.SetDefault("app.ocr_language", "eng")
	v.SetDefault("app.ocr_timeout", "10s")
	v.SetDefault("app.workers", 4)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_dir", "")

	v.SetDefault("gemini.enable", false)
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("gemini.timeout", "8s")

	v.SetDefault("detector.strategy", StrategyContour)
	v.SetDefault("detector.model", "")
	v.SetDefault("detector.config", "")
	v.SetDefault("detector.classes", "car,truck,bus,motorcycle,license_plate")
	v.SetDefault("detector.labels_file", "")
	v.SetDefault("detector.score_threshold", 0.5)
	v.SetDefault("detector.nms_threshold", 0.4)
	v.SetDefault("detector.input_size", 640)

	v.SetDefault("annotate.color", "#00FF00")
	v.SetDefault("annotate.thickness", 2)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", "*")
	v.SetDefault("http.jwt_secret", "")
}

// Load reads configuration from path. A missing file is not an error: defaults
// and environment overrides still apply. A .env file in the working directory is
// loaded first so GEMINI_API_KEY can live outside the INI file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("VISIONGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			values, err := readINI(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
			if err := v.MergeConfigMap(values); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	return fromViper(v)
}

// readINI parses path into a section -> key -> value map for viper. Inline
// comments are not stripped, so values such as "#00FF00" survive; comments
// go on their own line.
func readINI(path string) (map[string]interface{}, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:         true,
		IgnoreInlineComment: true,
	}, path)
	if err != nil {
		return nil, err
	}

	values := make(map[string]interface{})
	for _, section := range f.Sections() {
		keys := make(map[string]interface{})
		for _, k := range section.Keys() {
			keys[k.Name()] = k.String()
		}
		if len(keys) == 0 {
			continue
		}
		if strings.EqualFold(section.Name(), ini.DefaultSection) {
			for k, val := range keys {
				values[k] = val
			}
			continue
		}
		values[section.Name()] = keys
	}
	return values, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	proc, err := NewProcessing(Processing{
		MinPlateArea:  v.GetInt("processing.min_plate_area"),
		MaxPlateArea:  v.GetInt("processing.max_plate_area"),
		GaussianBlur:  v.GetInt("processing.gaussian_blur"),
		CannyLow:      v.GetInt("processing.canny_low"),
		CannyHigh:     v.GetInt("processing.canny_high"),
		AspectLow:     v.GetFloat64("processing.plate_aspect_low"),
		AspectHigh:    v.GetFloat64("processing.plate_aspect_high"),
		AdaptiveBlock: v.GetInt("processing.adaptive_thresh_block"),
		AdaptiveC:     v.GetInt("processing.adaptive_thresh_c"),
	})
	if err != nil {
		return nil, err
	}

	workers := v.GetInt("app.workers")
	if workers < 1 {
		workers = 1
	}

	cfg := &Config{
		App: App{
			DBDriver:       strings.ToLower(strings.TrimSpace(v.GetString("app.db_driver"))),
			DBPath:         v.GetString("app.db_path"),
			DBDSN:          v.GetString("app.db_dsn"),
			SnapshotDir:    v.GetString("app.snapshot_dir"),
			TessdataPrefix: strings.TrimSpace(v.GetString("app.tesseract_cmd")),
			OCRLanguage:    v.GetString("app.ocr_language"),
			OCRTimeout:     v.GetDuration("app.ocr_timeout"),
			Workers:        workers,
			LogLevel:       v.GetString("app.log_level"),
			LogDir:         v.GetString("app.log_dir"),
		},
		Processing: proc,
		Gemini: Gemini{
			Enable:  v.GetBool("gemini.enable"),
			Model:   v.GetString("gemini.model"),
			Timeout: v.GetDuration("gemini.timeout"),
			APIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		},
		Detector: Detector{
			Strategy:       strings.ToLower(strings.TrimSpace(v.GetString("detector.strategy"))),
			Model:          v.GetString("detector.model"),
			ConfigPath:     v.GetString("detector.config"),
			Classes:        splitList(v.GetString("detector.classes")),
			LabelsFile:     v.GetString("detector.labels_file"),
			ScoreThreshold: v.GetFloat64("detector.score_threshold"),
			NMSThreshold:   v.GetFloat64("detector.nms_threshold"),
			InputSize:      v.GetInt("detector.input_size"),
		},
		Annotate: Annotate{
			Color:     v.GetString("annotate.color"),
			Thickness: v.GetInt("annotate.thickness"),
		},
		HTTP: HTTP{
			Addr:        v.GetString("http.addr"),
			CORSOrigins: splitList(v.GetString("http.cors_origins")),
			JWTSecret:   strings.TrimSpace(v.GetString("http.jwt_secret")),
		},
	}

	switch cfg.Detector.Strategy {
	case StrategyContour, StrategyDNN:
	default:
		return nil, fmt.Errorf("%w: unknown detector strategy %q", ErrInvalidConfig, cfg.Detector.Strategy)
	}
	switch cfg.App.DBDriver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("%w: unknown db driver %q", ErrInvalidConfig, cfg.App.DBDriver)
	}

	return cfg, nil
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
