package client

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	// Register decoders for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DownloadHandler decides what an exchange does with the response
// body. The set of handlers is closed: [BufferHandler], [FileHandler],
// [TextureHandler] and [AudioHandler].
//
// A handler belongs to one exchange. Its result fields are filled in
// by [Client.Send] when the exchange succeeds.
type DownloadHandler interface {
	downloadHandler()
}

// BufferHandler keeps the body in memory and surfaces it as
// [Response.Body] and [Response.Data]. It is the default, and the only
// handler that supports server-sent events.
type BufferHandler struct{}

// FileHandler streams the body to Path through a temp file.
type FileHandler struct {
	Path    string
	Options []DownloadOption
}

// TextureHandler decodes the body as an image. Supported formats are
// PNG, JPEG, GIF, BMP, TIFF and WebP.
type TextureHandler struct {
	Image  image.Image
	Format string
	// Data holds the undecoded bytes.
	Data []byte
}

// AudioHandler keeps the body as an audio clip and detects its type.
type AudioHandler struct {
	Clip AudioClip
}

// AudioClip is raw encoded audio.
type AudioClip struct {
	Data      []byte
	MIME      string
	Extension string
}

func (*BufferHandler) downloadHandler()  {}
func (*FileHandler) downloadHandler()    {}
func (*TextureHandler) downloadHandler() {}
func (*AudioHandler) downloadHandler()   {}

func (h *TextureHandler) decode(data []byte) error {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: decoding image: %w", ErrUnsupportedMedia, err)
	}

	h.Image, h.Format, h.Data = img, format, data
	return nil
}

func (h *AudioHandler) decode(data []byte) error {
	clip, err := newAudioClip(data)
	if err != nil {
		return err
	}

	h.Clip = clip
	return nil
}

func newAudioClip(data []byte) (AudioClip, error) {
	mt := mimetype.Detect(data)
	if !isAudio(mt) {
		return AudioClip{}, fmt.Errorf("%w: detected %s, want audio", ErrUnsupportedMedia, mt.String())
	}

	return AudioClip{Data: data, MIME: mt.String(), Extension: mt.Extension()}, nil
}

func isAudio(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") || m.Is("application/ogg") {
			return true
		}
	}
	return false
}

func (h *TextureHandler) bytes() []byte { return h.Data }
func (h *AudioHandler) bytes() []byte   { return h.Clip.Data }
