// Package scene describes the 3D scene served to the browser and drives the
// per-frame update of every tracked object's marker position.
//
// The browser builds its three.js graph from the Scene returned by Build and
// then applies Frame snapshots produced by the Animator. All positions are in
// Earth radii in the TEME frame; the client maps axes for rendering.
package scene

import (
	"time"

	"github.com/star/orbitscope/internal/propagation"
	"github.com/star/orbitscope/internal/transform"
)

// Config holds scene and frame loop configuration.
type Config struct {
	EarthRadiusKm      float64 // marker position divisor (default: 6371)
	SiderealDaySeconds float64 // Earth rotation period (default: 86164)
	FrameRate          float64 // frames per second (default: 30)
	HistorySize        int     // frames kept for trails (default: 60)
	AlignEarthRotation bool    // start rotation at GMST instead of 0
	EarthTextureURL    string
	StarsTextureURL    string
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		EarthRadiusKm:      6371,
		SiderealDaySeconds: transform.SiderealDaySeconds,
		FrameRate:          30,
		HistorySize:        60,
		EarthTextureURL:    "earth.jpg",
		StarsTextureURL:    "stars.jpg",
	}
}

// Scene is the scene graph description consumed by the frontend.
type Scene struct {
	Camera        Camera        `json:"camera"`
	Earth         Sphere        `json:"earth"`
	Stars         Sphere        `json:"stars"`
	Marker        Sphere        `json:"marker"`
	Lights        []Light       `json:"lights"`
	Controls      Controls      `json:"controls"`
	Objects       []SceneObject `json:"objects"`
	RotationRate  float64       `json:"rotation_rate"` // rad/s
	FrameInterval float64       `json:"frame_interval_ms"`
	BuiltAt       time.Time     `json:"built_at"`
	Dataset       time.Time     `json:"dataset"` // matches Frame.Dataset for frames of these objects
}

// Camera is a perspective camera.
type Camera struct {
	FOV      float64 `json:"fov"`
	Near     float64 `json:"near"`
	Far      float64 `json:"far"`
	Position Vec3    `json:"position"`
}

// Sphere is a sphere mesh with a basic or phong material.
type Sphere struct {
	Radius         float64 `json:"radius"`
	WidthSegments  int     `json:"width_segments"`
	HeightSegments int     `json:"height_segments"`
	Material       string  `json:"material"` // "basic" or "phong"
	Color          int     `json:"color,omitempty"`
	TextureURL     string  `json:"texture_url,omitempty"`
	BackSide       bool    `json:"back_side,omitempty"`
}

// Light is a directional or ambient light.
type Light struct {
	Type      string  `json:"type"` // "directional" or "ambient"
	Color     int     `json:"color"`
	Intensity float64 `json:"intensity"`
	Position  *Vec3   `json:"position,omitempty"`
}

// Controls configures orbit controls around the origin.
type Controls struct {
	EnableDamping      bool    `json:"enable_damping"`
	DampingFactor      float64 `json:"damping_factor"`
	ScreenSpacePanning bool    `json:"screen_space_panning"`
	MinDistance        float64 `json:"min_distance"`
	MaxDistance        float64 `json:"max_distance"`
}

// SceneObject is one marker, in the same order as Frame.Objects.
type SceneObject struct {
	ID    int       `json:"id"`
	Name  string    `json:"name"`
	Epoch time.Time `json:"epoch"`
}

// Build describes the scene for the given tracked objects.
func Build(objects []propagation.Object, cfg Config) *Scene {
	sceneObjects := make([]SceneObject, len(objects))
	for i, o := range objects {
		sceneObjects[i] = SceneObject{ID: o.NORADID, Name: o.Name, Epoch: o.Epoch}
	}

	var frameInterval float64
	if cfg.FrameRate > 0 {
		frameInterval = 1000 / cfg.FrameRate
	}

	return &Scene{
		Camera: Camera{FOV: 75, Near: 0.1, Far: 1000, Position: Vec3{0, 0, 5}},
		Earth: Sphere{
			Radius:         1,
			WidthSegments:  32,
			HeightSegments: 32,
			Material:       "phong",
			Color:          0x2255aa,
			TextureURL:     cfg.EarthTextureURL,
		},
		Stars: Sphere{
			Radius:         100,
			WidthSegments:  32,
			HeightSegments: 32,
			Material:       "basic",
			Color:          0x000000,
			TextureURL:     cfg.StarsTextureURL,
			BackSide:       true,
		},
		Marker: Sphere{
			Radius:         0.02,
			WidthSegments:  8,
			HeightSegments: 8,
			Material:       "basic",
			Color:          0xff0000,
		},
		Lights: []Light{
			{Type: "directional", Color: 0xffffff, Intensity: 1, Position: &Vec3{5, 3, 5}},
			{Type: "ambient", Color: 0x333333, Intensity: 1},
		},
		Controls: Controls{
			EnableDamping:      true,
			DampingFactor:      0.25,
			ScreenSpacePanning: false,
			MinDistance:        1.1,
			MaxDistance:        100,
		},
		Objects:       sceneObjects,
		RotationRate:  transform.RotationDelta(time.Second, cfg.SiderealDaySeconds),
		FrameInterval: frameInterval,
		BuiltAt:       time.Now().UTC(),
	}
}
