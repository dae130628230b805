package task

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phrazzld/mediaforge-api/internal/processing"
	"github.com/spf13/cast"
)

// Kind is the strategy for one job kind: which provider runs it, how
// submission metadata becomes a provider request, and where its artifacts
// are stored.
type Kind interface {
	Name() string
	Client() processing.Client
	BuildJobSpec(metadata map[string]any) (processing.JobSpec, error)
	ObjectPrefix() string
}

// Shipped kind names
const (
	KindImageUpscale  = "image_upscale"
	KindVideoEnhance  = "video_enhance"
	KindVideoGenerate = "video_generate"
)

// KindRegistry resolves kind names to strategies.
type KindRegistry struct {
	kinds map[string]Kind
}

// NewKindRegistry creates a registry holding kinds.
func NewKindRegistry(kinds ...Kind) (*KindRegistry, error) {
	r := &KindRegistry{kinds: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds k. Names must be unique.
func (r *KindRegistry) Register(k Kind) error {
	if k == nil || k.Name() == "" {
		return fmt.Errorf("kind must have a name")
	}
	if _, exists := r.kinds[k.Name()]; exists {
		return fmt.Errorf("kind %q registered twice", k.Name())
	}
	r.kinds[k.Name()] = k
	return nil
}

// Get returns the kind registered under name.
func (r *KindRegistry) Get(name string) (Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// Names returns the registered kind names, sorted.
func (r *KindRegistry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// kindSpec is the Kind implementation shared by the shipped kinds.
type kindSpec struct {
	name   string
	prefix string
	client processing.Client
	build  func(metadata map[string]any) (processing.JobSpec, error)
}

func (k *kindSpec) Name() string              { return k.name }
func (k *kindSpec) Client() processing.Client { return k.client }
func (k *kindSpec) ObjectPrefix() string      { return k.prefix }

func (k *kindSpec) BuildJobSpec(metadata map[string]any) (processing.JobSpec, error) {
	spec, err := k.build(metadata)
	if err != nil {
		return processing.JobSpec{}, fmt.Errorf("%s: %w", k.name, err)
	}
	return spec, nil
}

// NewKind builds a Kind from its parts.
func NewKind(name, prefix string, client processing.Client, build func(map[string]any) (processing.JobSpec, error)) Kind {
	return &kindSpec{name: name, prefix: prefix, client: client, build: build}
}

// NewImageUpscaleKind upscales an image by 2x or 4x.
// Metadata: input_url (required), scale (2 or 4, default 2).
func NewImageUpscaleKind(client processing.Client, model string) Kind {
	return NewKind(KindImageUpscale, "images/upscaled", client, func(md map[string]any) (processing.JobSpec, error) {
		input, err := requiredString(md, "input_url")
		if err != nil {
			return processing.JobSpec{}, err
		}
		scale, err := optionalInt(md, "scale", 2)
		if err != nil {
			return processing.JobSpec{}, err
		}
		if scale != 2 && scale != 4 {
			return processing.JobSpec{}, fmt.Errorf("scale must be 2 or 4, got %d", scale)
		}
		return processing.JobSpec{
			Model: model,
			Input: map[string]any{"image": input, "scale": scale},
		}, nil
	})
}

// NewVideoEnhanceKind denoises and optionally frame-interpolates a video.
// Metadata: input_url (required), fps (1-120, optional).
func NewVideoEnhanceKind(client processing.Client, model string) Kind {
	return NewKind(KindVideoEnhance, "videos/enhanced", client, func(md map[string]any) (processing.JobSpec, error) {
		input, err := requiredString(md, "input_url")
		if err != nil {
			return processing.JobSpec{}, err
		}
		fps, err := optionalInt(md, "fps", 0)
		if err != nil {
			return processing.JobSpec{}, err
		}
		params := map[string]any{"video": input}
		if fps != 0 {
			if fps < 1 || fps > 120 {
				return processing.JobSpec{}, fmt.Errorf("fps must be between 1 and 120, got %d", fps)
			}
			params["target_fps"] = fps
		}
		return processing.JobSpec{Model: model, Input: params}, nil
	})
}

var videoAspectRatios = map[string]bool{"16:9": true, "9:16": true}

// NewVideoGenerateKind generates a short video from a prompt and an optional
// still image.
// Metadata: prompt (required), aspect_ratio (16:9 or 9:16), duration_seconds
// (5-8), input_url (optional image).
func NewVideoGenerateKind(client processing.Client, model string) Kind {
	return NewKind(KindVideoGenerate, "videos/generated", client, func(md map[string]any) (processing.JobSpec, error) {
		prompt, err := requiredString(md, "prompt")
		if err != nil {
			return processing.JobSpec{}, err
		}
		params := map[string]any{"prompt": prompt}

		if ratio := strings.TrimSpace(cast.ToString(md["aspect_ratio"])); ratio != "" {
			if !videoAspectRatios[ratio] {
				return processing.JobSpec{}, fmt.Errorf("unsupported aspect_ratio %q", ratio)
			}
			params["aspect_ratio"] = ratio
		}

		duration, err := optionalInt(md, "duration_seconds", 0)
		if err != nil {
			return processing.JobSpec{}, err
		}
		if duration != 0 {
			if duration < 5 || duration > 8 {
				return processing.JobSpec{}, fmt.Errorf("duration_seconds must be between 5 and 8, got %d", duration)
			}
			params["duration_seconds"] = duration
		}

		if image := strings.TrimSpace(cast.ToString(md["input_url"])); image != "" {
			params["image_url"] = image
		}
		return processing.JobSpec{Model: model, Input: params}, nil
	})
}

func requiredString(md map[string]any, key string) (string, error) {
	v := strings.TrimSpace(cast.ToString(md[key]))
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func optionalInt(md map[string]any, key string, def int) (int, error) {
	raw, ok := md[key]
	if !ok || raw == nil {
		return def, nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}
