package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"

	"go-pneumonet-api/internal/apperrors"
)

// MinDimension is the smallest width/height accepted for a chest X-ray.
// Anything below this cannot carry enough signal for the classifier.
const MinDimension = 50

// UnknownFilename is used when the input carries no filename (base64 sources).
const UnknownFilename = "unknown"

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"bmp":  true,
}

// decode format names reported by image.Decode; "jpeg" covers jpg/jpeg.
var allowedFormats = map[string]bool{
	"png":  true,
	"jpeg": true,
	"gif":  true,
	"bmp":  true,
}

// SupportedFormats lists the accepted file extensions.
func SupportedFormats() []string {
	return []string{"png", "jpg", "jpeg", "gif", "bmp"}
}

// Source is one prediction input before decoding: bytes plus a declared
// filename, or a base64 payload with no filename.
type Source struct {
	Filename string
	Data     []byte
	Base64   string
	IsBase64 bool
}

// SourceFromBytes builds a Source from a raw byte buffer.
func SourceFromBytes(filename string, data []byte) Source {
	return Source{Filename: filename, Data: data}
}

// SourceFromBase64 builds a Source from a base64-encoded string.
func SourceFromBase64(encoded string) Source {
	return Source{Filename: UnknownFilename, Base64: encoded, IsBase64: true}
}

// SourceFromMultipart reads an uploaded form file into a Source. The
// transport layer bounds the request body, so reading fully here is safe.
func SourceFromMultipart(fh *multipart.FileHeader) (Source, error) {
	file, err := fh.Open()
	if err != nil {
		return Source{}, apperrors.NewInternal("failed to open uploaded file", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return Source{}, apperrors.NewInternal("failed to read uploaded file", err)
	}
	return Source{Filename: fh.Filename, Data: data}, nil
}

// Artifact is a decoded image plus source metadata. Raw is kept only so the
// upload archiver can persist the original bytes; it is not used by the
// prediction pipeline itself.
type Artifact struct {
	Image    image.Image
	Filename string
	Size     int64
	Format   string
	Raw      []byte
}

// Decoder validates and decodes prediction inputs.
type Decoder struct {
	maxBytes int64
}

func NewDecoder(maxBytes int64) *Decoder {
	return &Decoder{maxBytes: maxBytes}
}

// Decode turns a Source into a decoded Artifact. Validation order: filename
// extension (when a filename is declared), byte size, then a genuine decode
// of the buffer. Base64 sources carry no filename, so format validation for
// them relies on the detected encoding instead.
func (d *Decoder) Decode(src Source) (*Artifact, error) {
	data := src.Data
	filename := src.Filename

	if src.IsBase64 {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(src.Base64))
		if err != nil {
			return nil, apperrors.NewCorruptImage("invalid base64 image data", err)
		}
		data = decoded
	} else {
		if filename == "" {
			return nil, apperrors.NewUnsupportedFormat("", SupportedFormats())
		}
		if !allowedExtension(filename) {
			return nil, apperrors.NewUnsupportedFormat(filename, SupportedFormats())
		}
	}

	if int64(len(data)) > d.maxBytes {
		return nil, apperrors.NewPayloadTooLarge(int64(len(data)), d.maxBytes)
	}
	if len(data) == 0 {
		return nil, apperrors.NewCorruptImage("empty image payload", nil)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewCorruptImage("image data could not be decoded", err)
	}
	if !allowedFormats[format] {
		return nil, apperrors.NewUnsupportedFormat(filename, SupportedFormats())
	}

	bounds := img.Bounds()
	if bounds.Dx() < MinDimension || bounds.Dy() < MinDimension {
		return nil, apperrors.NewCorruptImage(
			fmt.Sprintf("image too small: %dx%d, minimum is %dx%d",
				bounds.Dx(), bounds.Dy(), MinDimension, MinDimension), nil)
	}

	return &Artifact{
		Image:    img,
		Filename: SanitizeFilename(filename),
		Size:     int64(len(data)),
		Format:   format,
		Raw:      data,
	}, nil
}

func allowedExtension(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	return allowedExtensions[ext]
}

// SanitizeFilename strips path components and replaces characters that are
// unsafe in archive object names.
func SanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" {
		return UnknownFilename
	}
	return cleaned
}
