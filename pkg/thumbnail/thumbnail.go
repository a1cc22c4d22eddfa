// Package thumbnail 为常见图片类型生成缩略图。
// 缩放基于标准库 image 包的最近邻采样实现，输出统一为 PNG。
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
)

// Generator 实现管道的 Thumbnailer 契约。
type Generator struct {
	maxEdge int
}

// NewGenerator 创建缩略图生成器，maxEdge 为缩略图长边像素数。
func NewGenerator(maxEdge int) *Generator {
	if maxEdge <= 0 {
		maxEdge = 256
	}
	return &Generator{maxEdge: maxEdge}
}

var supportedTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
}

// Supports 判断 MIME 类型是否支持缩略图。
func (g *Generator) Supports(mimeType string) bool {
	_, ok := supportedTypes[mimeType]
	return ok
}

// Generate 解码图片并生成 PNG 缩略图，返回字节与 content type。
func (g *Generator) Generate(reader io.Reader, mimeType string) ([]byte, string, error) {
	src, _, err := image.Decode(reader)
	if err != nil {
		return nil, "", fmt.Errorf("解码图片失败: %w", err)
	}

	thumb := scale(src, g.maxEdge)
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, "", fmt.Errorf("编码缩略图失败: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}

// scale 以最近邻采样把图片长边缩到 maxEdge 以内，小图原样返回。
func scale(src image.Image, maxEdge int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxEdge && h <= maxEdge {
		return src
	}

	ratio := float64(maxEdge) / float64(w)
	if h > w {
		ratio = float64(maxEdge) / float64(h)
	}
	dw := int(float64(w) * ratio)
	dh := int(float64(h) * ratio)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		sy := bounds.Min.Y + y*h/dh
		for x := 0; x < dw; x++ {
			sx := bounds.Min.X + x*w/dw
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
