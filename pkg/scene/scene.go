// Package scene reads YAML descriptions of frame sequences and builds layer
// trees from them.
//
// A scene file lists frames, each with a root node:
//
//	version: "1"
//	size: [200, 100]
//	frames:
//	  - root:
//	      type: container
//	      children:
//	        - type: picture
//	          key: logo
//	          retain: true
//	          rects:
//	            - {rect: [0, 0, 50, 50], color: "#ff0000"}
//
// Keys carry layer identity from one frame to the next; see Builder.
package scene

import (
	"fmt"
	"os"
	"strings"

	"github.com/mazznoer/csscolorparser"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/go-drift/flow/pkg/errors"
	"github.com/go-drift/flow/pkg/graphics"
)

// SupportedMajor is the scene format major version this build reads.
const SupportedMajor = "v1"

// Node types.
const (
	TypeContainer    = "container"
	TypeMerged       = "merged"
	TypePicture      = "picture"
	TypeOpacity      = "opacity"
	TypeClip         = "clip"
	TypeTransform    = "transform"
	TypeTexture      = "texture"
	TypeBackdrop     = "backdrop"
	TypePlatformView = "platformView"
)

// File is a parsed scene file.
type File struct {
	Version  string        `yaml:"version"`
	Size     [2]int        `yaml:"size"`
	Textures []TextureSpec `yaml:"textures,omitempty"`
	Frames   []Frame       `yaml:"frames"`
}

// Frame is one frame of a scene.
type Frame struct {
	Root *Node `yaml:"root"`
}

// TextureSpec declares a solid-color texture available to texture nodes.
type TextureSpec struct {
	ID    int64  `yaml:"id"`
	Color string `yaml:"color"`
}

// Node describes one layer. Which fields apply depends on Type.
type Node struct {
	Type   string `yaml:"type"`
	Key    string `yaml:"key,omitempty"`
	Retain bool   `yaml:"retain,omitempty"`

	Offset    []float64 `yaml:"offset,omitempty"`
	Alpha     *float64  `yaml:"alpha,omitempty"`
	Clip      []float64 `yaml:"clip,omitempty"`
	AntiAlias bool      `yaml:"antiAlias,omitempty"`
	Transform []float64 `yaml:"transform,omitempty"`
	Sigma     []float64 `yaml:"sigma,omitempty"`
	TextureID int64     `yaml:"textureId,omitempty"`
	Freeze    bool      `yaml:"freeze,omitempty"`
	ViewID    int64     `yaml:"viewId,omitempty"`
	Size      []float64 `yaml:"size,omitempty"`

	Rects      []RectSpec `yaml:"rects,omitempty"`
	Complex    bool       `yaml:"complex,omitempty"`
	WillChange bool       `yaml:"willChange,omitempty"`

	Children []*Node `yaml:"children,omitempty"`
}

// RectSpec is one rectangle of a picture node, as [left, top, right, bottom].
type RectSpec struct {
	Rect   [4]float64 `yaml:"rect"`
	Color  string     `yaml:"color"`
	Stroke float64    `yaml:"stroke,omitempty"`
}

// Load reads and parses the scene file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a scene.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, sceneError(fmt.Errorf("failed to parse scene: %w", err))
	}
	if err := f.Validate(); err != nil {
		return nil, sceneError(err)
	}
	return &f, nil
}

func sceneError(err error) error {
	return &errors.FlowError{Op: "scene.Parse", Kind: errors.KindScene, Err: err}
}

// Validate checks the version, the size and every frame.
func (f *File) Validate() error {
	v := strings.TrimSpace(f.Version)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("version %q is not a semantic version", f.Version)
	}
	if semver.Major(v) != SupportedMajor {
		return fmt.Errorf("scene version %s is not supported (want %s.x)", semver.Canonical(v), SupportedMajor)
	}
	if f.Size[0] <= 0 || f.Size[1] <= 0 {
		return fmt.Errorf("size must be positive (got %v)", f.Size)
	}
	for _, t := range f.Textures {
		if _, err := ParseColor(t.Color); err != nil {
			return fmt.Errorf("texture %d: %w", t.ID, err)
		}
	}
	if len(f.Frames) == 0 {
		return fmt.Errorf("scene has no frames")
	}
	for i, frame := range f.Frames {
		if frame.Root == nil {
			return fmt.Errorf("frame %d: missing root", i)
		}
		keys := make(map[string]bool)
		if err := frame.Root.validate(keys); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

func (n *Node) validate(keys map[string]bool) error {
	if n.Key != "" {
		if keys[n.Key] {
			return fmt.Errorf("duplicate key %q", n.Key)
		}
		keys[n.Key] = true
	}
	if n.Retain && n.Key == "" {
		return fmt.Errorf("%s node: retain requires a key", n.Type)
	}
	checkLen := func(field string, v []float64, lengths ...int) error {
		if v == nil {
			return nil
		}
		for _, l := range lengths {
			if len(v) == l {
				return nil
			}
		}
		return fmt.Errorf("%s node: %s has %d values", n.Type, field, len(v))
	}
	if err := checkLen("offset", n.Offset, 2); err != nil {
		return err
	}
	if err := checkLen("size", n.Size, 2); err != nil {
		return err
	}

	switch n.Type {
	case TypeContainer, TypeMerged:
	case TypePicture:
		for _, r := range n.Rects {
			if _, err := ParseColor(r.Color); err != nil {
				return fmt.Errorf("picture node: %w", err)
			}
		}
	case TypeOpacity:
		if n.Alpha == nil || *n.Alpha < 0 || *n.Alpha > 1 {
			return fmt.Errorf("opacity node: alpha must be in [0, 1]")
		}
	case TypeClip:
		if len(n.Clip) != 4 {
			return fmt.Errorf("clip node: clip needs [left, top, right, bottom]")
		}
	case TypeTransform:
		if len(n.Transform) != 6 {
			return fmt.Errorf("transform node: transform needs [a, b, c, d, e, f]")
		}
	case TypeBackdrop:
		if err := checkLen("sigma", n.Sigma, 1, 2); err != nil {
			return err
		}
		if len(n.Sigma) == 0 {
			return fmt.Errorf("backdrop node: missing sigma")
		}
	case TypeTexture, TypePlatformView:
		if len(n.Size) != 2 {
			return fmt.Errorf("%s node: missing size", n.Type)
		}
	default:
		return fmt.Errorf("unknown node type %q", n.Type)
	}

	leaf := n.Type == TypePicture || n.Type == TypeTexture || n.Type == TypePlatformView
	if leaf && len(n.Children) > 0 {
		return fmt.Errorf("%s node cannot have children", n.Type)
	}
	if n.Type == TypeOpacity && len(n.Children) == 0 {
		return fmt.Errorf("opacity node needs children")
	}
	for _, child := range n.Children {
		if child == nil {
			return fmt.Errorf("%s node: empty child", n.Type)
		}
		if err := child.validate(keys); err != nil {
			return err
		}
	}
	return nil
}

// ParseColor parses a CSS color such as "#ff000080", "rgb(0, 128, 255)" or
// "rebeccapurple".
func ParseColor(s string) (graphics.Color, error) {
	c, err := csscolorparser.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b, a := c.RGBA255()
	return graphics.RGBA8(r, g, b, a), nil
}
