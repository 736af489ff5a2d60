package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	defaultBoxSize        = 10.0
	defaultGeometryRadius = 0.5
)

// PredictConfig holds the hyper-parameters shared between training and
// prediction. The keys match the JSON documents written alongside a trained
// model, so the same file must be used for both.
type PredictConfig struct {
	BoxSizeX       *float64 `json:"box_size_x,omitempty"`
	BoxSizeY       *float64 `json:"box_size_y,omitempty"`
	UseColor       *bool    `json:"use_color,omitempty"`
	UseGeometry    *bool    `json:"use_geometry,omitempty"`
	DataPath       *string  `json:"data_path,omitempty"`
	GeometryRadius *float64 `json:"geometry_radius,omitempty"` // neighbourhood for geometry descriptors, metres
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// DefaultPredictConfig returns a config with every optional field populated.
// DataPath is left empty and must be supplied by the caller.
func DefaultPredictConfig() *PredictConfig {
	return &PredictConfig{
		BoxSizeX:       ptrFloat64(defaultBoxSize),
		BoxSizeY:       ptrFloat64(defaultBoxSize),
		UseColor:       ptrBool(false),
		UseGeometry:    ptrBool(false),
		DataPath:       ptrString(""),
		GeometryRadius: ptrFloat64(defaultGeometryRadius),
	}
}

// LoadPredictConfig loads a PredictConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to defaults through the Get* accessors.
func LoadPredictConfig(path string) (*PredictConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParsePredictConfig(data)
}

// ParsePredictConfig decodes and validates a JSON document.
func ParsePredictConfig(data []byte) (*PredictConfig, error) {
	cfg := &PredictConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *PredictConfig) Validate() error {
	if c.BoxSizeX != nil && *c.BoxSizeX <= 0 {
		return fmt.Errorf("%w: box_size_x must be positive, got %f", ErrInvalidConfig, *c.BoxSizeX)
	}
	if c.BoxSizeY != nil && *c.BoxSizeY <= 0 {
		return fmt.Errorf("%w: box_size_y must be positive, got %f", ErrInvalidConfig, *c.BoxSizeY)
	}
	if c.DataPath == nil || *c.DataPath == "" {
		return fmt.Errorf("%w: data_path is required", ErrInvalidConfig)
	}
	if c.GeometryRadius != nil && *c.GeometryRadius <= 0 {
		return fmt.Errorf("%w: geometry_radius must be positive, got %f", ErrInvalidConfig, *c.GeometryRadius)
	}
	return nil
}

// GetBoxSizeX returns the box_size_x value or the default.
func (c *PredictConfig) GetBoxSizeX() float64 {
	if c.BoxSizeX == nil {
		return defaultBoxSize
	}
	return *c.BoxSizeX
}

// GetBoxSizeY returns the box_size_y value or the default.
func (c *PredictConfig) GetBoxSizeY() float64 {
	if c.BoxSizeY == nil {
		return defaultBoxSize
	}
	return *c.BoxSizeY
}

// GetUseColor returns the use_color value or the default.
func (c *PredictConfig) GetUseColor() bool {
	if c.UseColor == nil {
		return false
	}
	return *c.UseColor
}

// GetUseGeometry returns the use_geometry value or the default.
func (c *PredictConfig) GetUseGeometry() bool {
	if c.UseGeometry == nil {
		return false
	}
	return *c.UseGeometry
}

// GetDataPath returns the data_path value, or "" if unset.
func (c *PredictConfig) GetDataPath() string {
	if c.DataPath == nil {
		return ""
	}
	return *c.DataPath
}

// GetGeometryRadius returns the geometry_radius value or the default.
func (c *PredictConfig) GetGeometryRadius() float64 {
	if c.GeometryRadius == nil {
		return defaultGeometryRadius
	}
	return *c.GeometryRadius
}
