package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/facepunch/internal/attendance"
	"github.com/andresmejia3/facepunch/internal/capture"
	"github.com/andresmejia3/facepunch/internal/match"
	"github.com/andresmejia3/facepunch/internal/types"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FACEPUNCH_"

type Config struct {
	DatabaseURL   string   `yaml:"database_url"`
	FacesDir      string   `yaml:"faces_dir"`
	Threshold     float64  `yaml:"threshold"`
	Actions       []string `yaml:"actions"`
	FacePolicy    string   `yaml:"face_policy"`
	WorkerScript  string   `yaml:"worker_script"`
	Python        string   `yaml:"python"`
	WorkerTimeout string   `yaml:"worker_timeout"` // Go duration, "0" disables
	CameraDevice  string   `yaml:"camera_device"`
	CaptureScale  float64  `yaml:"capture_scale"`
	Listen        string   `yaml:"listen"`
}

func Default() *Config {
	return &Config{
		FacesDir:      "faces",
		Threshold:     match.DefaultThreshold,
		Actions:       append([]string(nil), attendance.DefaultActions...),
		FacePolicy:    string(attendance.PolicyFirst),
		WorkerScript:  "python/worker.py",
		Python:        "python3",
		WorkerTimeout: "30s",
		CameraDevice:  "/dev/video0",
		CaptureScale:  capture.DefaultScale,
		Listen:        ":8080",
	}
}

// Load builds the configuration from defaults, the optional YAML file at path, then the environment.
// Command-line flags are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	float := func(key string, dst *float64) error {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = f
		return nil
	}

	str("DATABASE_URL", &c.DatabaseURL)
	str("FACES_DIR", &c.FacesDir)
	str("FACE_POLICY", &c.FacePolicy)
	str("WORKER_SCRIPT", &c.WorkerScript)
	str("PYTHON", &c.Python)
	str("WORKER_TIMEOUT", &c.WorkerTimeout)
	str("CAMERA_DEVICE", &c.CameraDevice)
	str("LISTEN", &c.Listen)

	// Labels contain spaces and accents, so the list is separated by semicolons.
	if v := os.Getenv(EnvPrefix + "ACTIONS"); v != "" {
		c.Actions = nil
		for _, a := range strings.Split(v, ";") {
			c.Actions = append(c.Actions, strings.TrimSpace(a))
		}
	}

	return errors.Join(
		float("THRESHOLD", &c.Threshold),
		float("CAPTURE_SCALE", &c.CaptureScale),
	)
}

// DSN returns the database connection string. Without an explicit URL it is built
// from the POSTGRES_* variables, falling back to a local default.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	return "postgres://localhost:5432/facepunch"
}

// Timeout parses WorkerTimeout. Empty or "0" means no timeout.
func (c *Config) Timeout() (time.Duration, error) {
	if c.WorkerTimeout == "" || c.WorkerTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.WorkerTimeout)
	if err != nil {
		return 0, types.Invalid("worker_timeout", "%v", err)
	}
	if d < 0 {
		return 0, types.Invalid("worker_timeout", "must not be negative")
	}
	return d, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Threshold < 0 || math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		errs = append(errs, types.Invalid("threshold", "must be a non-negative number, got %g", c.Threshold))
	}
	if _, err := attendance.NewActionSet(c.Actions); err != nil {
		errs = append(errs, err)
	}
	if _, err := attendance.ParseFacePolicy(c.FacePolicy); err != nil {
		errs = append(errs, err)
	}
	if c.CaptureScale <= 0 || c.CaptureScale > 1 {
		errs = append(errs, types.Invalid("capture_scale", "must be in (0, 1], got %g", c.CaptureScale))
	}
	if strings.TrimSpace(c.FacesDir) == "" {
		errs = append(errs, types.Invalid("faces_dir", "must not be empty"))
	}
	if _, err := c.Timeout(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
