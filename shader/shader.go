// Package shader holds the point-cloud shaders. They are written as WebGL2
// sources and translated to desktop GLSL before compilation.
package shader

import (
	"context"
	"fmt"
	"sync"

	gst "github.com/richinsley/goshadertranslator"
)

// ────────────────────────────────── WebGL2 ──────────────────────────────────

// Each point is one grid cell; in_uv is its texture coordinate.
const pointVertexSource = `#version 300 es
precision highp float;

in vec2 in_uv;

uniform mat4 projection;
uniform mat4 view;
uniform sampler2D map;
uniform float time;
uniform float width;
uniform float height;
uniform float nearClipping;
uniform float farClipping;
uniform float pointSize;
uniform float zOffset;
uniform float random;
uniform float depth;

out vec2 v_uv;

const float XtoZ = 1.11146;
const float YtoZ = 0.83359;

float hash(vec2 p) {
    return fract(sin(dot(p, vec2(12.9898, 78.233))) * 43758.5453);
}

void main() {
    v_uv = in_uv;
    vec4 color = texture(map, in_uv);
    float luma = (color.r + color.g + color.b) / 3.0;

    float z = (1.0 - luma * depth) * (farClipping - nearClipping) + nearClipping;
    vec3 jitter = random * 100.0 * (vec3(
        hash(in_uv + time),
        hash(in_uv.yx + time),
        hash(in_uv * 2.0 + time)) - 0.5);

    vec4 pos = vec4(
        (in_uv.x - 0.5) * width * XtoZ,
        (in_uv.y - 0.5) * height * YtoZ,
        -z + zOffset,
        1.0);
    pos.xyz += jitter;

    gl_PointSize = pointSize;
    gl_Position = projection * view * pos;
}
`

const pointFragmentSource = `#version 300 es
precision highp float;

in vec2 v_uv;

uniform sampler2D map;
uniform float hue;
uniform float saturation;
uniform float clipX;
uniform float clipY;
uniform float clipWidthX;
uniform float clipWidthY;

out vec4 fragColor;

vec3 rgb2hsv(vec3 c) {
    vec4 K = vec4(0.0, -1.0 / 3.0, 2.0 / 3.0, -1.0);
    vec4 p = mix(vec4(c.bg, K.wz), vec4(c.gb, K.xy), step(c.b, c.g));
    vec4 q = mix(vec4(p.xyw, c.r), vec4(c.r, p.yzx), step(p.x, c.r));
    float d = q.x - min(q.w, q.y);
    float e = 1.0e-10;
    return vec3(abs(q.z + (q.w - q.y) / (6.0 * d + e)), d / (q.x + e), q.x);
}

vec3 hsv2rgb(vec3 c) {
    vec4 K = vec4(1.0, 2.0 / 3.0, 1.0 / 3.0, 3.0);
    vec3 p = abs(fract(c.xxx + K.xyz) * 6.0 - K.www);
    return c.z * mix(K.xxx, clamp(p - K.xxx, 0.0, 1.0), c.y);
}

void main() {
    if (clipWidthX > 0.0 && abs(v_uv.x - clipX) > clipWidthX * 0.5) {
        discard;
    }
    if (clipWidthY > 0.0 && abs(v_uv.y - clipY) > clipWidthY * 0.5) {
        discard;
    }
    vec3 hsv = rgb2hsv(texture(map, v_uv).rgb);
    hsv.x = fract(hsv.x + hue);
    hsv.y *= saturation;
    fragColor = vec4(hsv2rgb(hsv), 0.2);
}
`

// Uniforms lists every uniform the point program declares.
var Uniforms = []string{
	"projection", "view", "map", "time", "width", "height",
	"nearClipping", "farClipping", "pointSize", "zOffset", "random", "depth",
	"hue", "saturation", "clipX", "clipY", "clipWidthX", "clipWidthY",
}

// Program is a translated vertex and fragment pair. Names maps each declared
// uniform to the name it got in the translated code.
type Program struct {
	Vertex   string
	Fragment string
	Names    map[string]string
}

var (
	translatorOnce sync.Once
	translator     *gst.ShaderTranslator
	translatorErr  error
)

func getTranslator(ctx context.Context) (*gst.ShaderTranslator, error) {
	translatorOnce.Do(func() {
		translator, translatorErr = gst.NewShaderTranslator(ctx)
	})
	return translator, translatorErr
}

// Points translates the point-cloud program. isGLES selects ESSL output
// instead of GLSL 4.10.
func Points(ctx context.Context, isGLES bool) (*Program, error) {
	t, err := getTranslator(ctx)
	if err != nil {
		return nil, fmt.Errorf("create shader translator: %w", err)
	}
	outputFormat := gst.OutputFormatGLSL410
	if isGLES {
		outputFormat = gst.OutputFormatESSL
	}

	vs, err := t.TranslateShader(pointVertexSource, "vertex", gst.ShaderSpecWebGL2, outputFormat)
	if err != nil {
		return nil, fmt.Errorf("vertex shader translation failed: %w", err)
	}
	fs, err := t.TranslateShader(pointFragmentSource, "fragment", gst.ShaderSpecWebGL2, outputFormat)
	if err != nil {
		return nil, fmt.Errorf("fragment shader translation failed: %w", err)
	}

	p := &Program{Vertex: vs.Code, Fragment: fs.Code, Names: make(map[string]string)}
	for _, vars := range []map[string]gst.ShaderVariable{vs.Variables, fs.Variables} {
		for name, v := range vars {
			p.Names[name] = v.MappedName
		}
	}
	return p, nil
}

// Attribute is the name of the per-point texture coordinate input.
const Attribute = "in_uv"
