package segmentation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"spheroidexpansion/internal/models"
	"spheroidexpansion/pkg/mask"
)

// Service delegates segmentation to a remote model server.
//
// The plane is sent as a 16-bit grayscale PNG in the body of a POST to
// <BaseURL>/segment with the parameters as query values (pmin, pmax, prob,
// nms). The server answers with a 16-bit PNG whose pixel values are labels.
type Service struct {
	HTTPClient *http.Client
	BaseURL    string
}

// NewService creates a client for the segmentation server at baseURL.
func NewService(httpClient *http.Client, baseURL string, timeout time.Duration) *Service {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Service{HTTPClient: httpClient, BaseURL: baseURL}
}

// Segment implements Segmenter.
func (s *Service) Segment(ctx context.Context, p models.Plane, params Params) (mask.Labels, error) {
	if err := params.Validate(); err != nil {
		return mask.Labels{}, err
	}

	var body bytes.Buffer
	if err := png.Encode(&body, EncodeGray16(p)); err != nil {
		return mask.Labels{}, fmt.Errorf("encoding plane: %w", err)
	}

	q := url.Values{}
	q.Set("pmin", strconv.FormatFloat(params.PercentileLow, 'g', -1, 64))
	q.Set("pmax", strconv.FormatFloat(params.PercentileHigh, 'g', -1, 64))
	q.Set("prob", strconv.FormatFloat(params.ProbThreshold, 'g', -1, 64))
	q.Set("nms", strconv.FormatFloat(params.OverlapThreshold, 'g', -1, 64))
	endpoint := fmt.Sprintf("%s/segment?%s", s.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return mask.Labels{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return mask.Labels{}, fmt.Errorf("segmentation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return mask.Labels{}, fmt.Errorf("segmentation service status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	img, err := png.Decode(resp.Body)
	if err != nil {
		return mask.Labels{}, fmt.Errorf("decoding label image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() != p.Width || b.Dy() != p.Height {
		return mask.Labels{}, fmt.Errorf("label image is %dx%d, expected %dx%d", b.Dx(), b.Dy(), p.Width, p.Height)
	}
	return DecodeLabels(img), nil
}

// EncodeGray16 rescales the plane's intensity range onto 0..65535.
func EncodeGray16(p models.Plane) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, p.Width, p.Height))
	min, max := p.Range()
	scale := 0.0
	if max > min {
		scale = 65535 / (max - min)
	}
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16((p.At(x, y)-min)*scale + 0.5)})
		}
	}
	return img
}

// DecodeLabels reads the gray value of every pixel as its label. 8-bit
// images keep their raw values.
func DecodeLabels(img image.Image) mask.Labels {
	b := img.Bounds()
	l := mask.NewLabels(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v int32
			switch src := img.(type) {
			case *image.Gray:
				v = int32(src.GrayAt(x, y).Y)
			case *image.Gray16:
				v = int32(src.Gray16At(x, y).Y)
			default:
				v = int32(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
			}
			l.Pix[(y-b.Min.Y)*l.Width+(x-b.Min.X)] = v
			if int(v) > l.N {
				l.N = int(v)
			}
		}
	}
	return l
}
