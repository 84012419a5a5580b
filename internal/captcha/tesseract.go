// Package captcha turns a CAPTCHA screenshot into text using the tesseract
// CLI. It never retries: a misread is handled by reopening the session.
package captcha

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

const whitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Config controls the OCR invocation.
type Config struct {
	TesseractPath string
	Lang          string
	PSM           int
	Scale         int
	WorkDir       string
}

// Tesseract implements the solver contract Recognize(image) -> text.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

// NewTesseract builds a solver. A nil runner uses ExecRunner.
func NewTesseract(cfg Config, runner Runner, logger *zap.Logger) *Tesseract {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if cfg.TesseractPath == "" {
		cfg.TesseractPath = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 7
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 3
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

// Recognize returns the alphanumeric text read from img. An empty string
// with a nil error means nothing legible was found.
func (t *Tesseract) Recognize(ctx context.Context, img []byte) (string, error) {
	prepared, err := Preprocess(img, t.cfg.Scale)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(t.cfg.WorkDir, "captcha-*.png")
	if err != nil {
		return "", fmt.Errorf("create captcha file: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			t.logger.Warn("remove captcha file failed", zap.String("path", path), zap.Error(rmErr))
		}
	}()
	if _, err := f.Write(prepared); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write captcha file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close captcha file: %w", err)
	}

	// tesseract <file> stdout -l <lang> --psm <n>
	args := []string{
		path, "stdout",
		"-l", t.cfg.Lang,
		"--psm", strconv.Itoa(t.cfg.PSM),
		"-c", "tessedit_char_whitelist=" + whitelist,
	}
	out, errb, err := t.runner.Run(ctx, t.cfg.TesseractPath, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, strings.TrimSpace(string(errb)))
	}
	text := Clean(string(out))
	t.logger.Debug("captcha recognized", zap.Int("chars", len(text)))
	return text, nil
}

// Clean drops everything but ASCII letters and digits.
func Clean(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Preprocess converts a PNG to grayscale and upscales it by scale, which
// noticeably helps tesseract with the portal's small, noisy glyphs.
func Preprocess(img []byte, scale int) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode captcha png: %w", err)
	}
	if scale < 1 {
		scale = 1
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode captcha png: %w", err)
	}
	return buf.Bytes(), nil
}
