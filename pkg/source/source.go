// Package source discovers the two-channel image sets of an input directory
// and loads them as intensity planes.
package source

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"

	"spheroidexpansion/internal/models"
	"spheroidexpansion/pkg/calibration"
)

// SidecarSuffix names the optional calibration file stored next to an image set.
const SidecarSuffix = ".calib.yaml"

// Channels holds the filename suffixes identifying each channel.
type Channels struct {
	Nucleus string
	Stain   string
}

// ImageSet groups the files of one acquisition.
type ImageSet struct {
	// Name is the shared base name, used to name every output
	Name string

	// Nucleus and Stain list one file per z plane, ordered by z
	Nucleus []string
	Stain   []string

	// Sidecar is the calibration hints file, empty when absent
	Sidecar string
}

// Images are the loaded planes of an ImageSet.
type Images struct {
	Nucleus models.Plane
	Stain   models.Plane
	Hints   calibration.Hints
}

var supported = map[string]bool{".tif": true, ".tiff": true, ".png": true}

type channelFiles struct {
	single string
	planes map[int]string
}

// Discover scans dir for image sets. A set needs both channels; base names
// with only one channel are returned as unpaired.
func Discover(dir string, ch Channels) (sets []ImageSet, unpaired []string, err error) {
	if ch.Nucleus == "" || ch.Stain == "" || ch.Nucleus == ch.Stain {
		return nil, nil, fmt.Errorf("channel suffixes must be distinct and non-empty, got %q and %q", ch.Nucleus, ch.Stain)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading input directory: %w", err)
	}

	nucleus := map[string]*channelFiles{}
	stain := map[string]*channelFiles{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !supported[ext] {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		path := filepath.Join(dir, name)

		if base, z, ok := match(stem, ch.Nucleus); ok {
			add(nucleus, base, z, path)
		} else if base, z, ok := match(stem, ch.Stain); ok {
			add(stain, base, z, path)
		}
	}

	for base, n := range nucleus {
		s, ok := stain[base]
		if !ok {
			unpaired = append(unpaired, base)
			continue
		}
		set := ImageSet{Name: base, Nucleus: n.paths(), Stain: s.paths()}
		sidecar := filepath.Join(dir, base+SidecarSuffix)
		if _, err := os.Stat(sidecar); err == nil {
			set.Sidecar = sidecar
		}
		sets = append(sets, set)
	}
	for base := range stain {
		if _, ok := nucleus[base]; !ok {
			unpaired = append(unpaired, base)
		}
	}

	sort.Slice(sets, func(i, j int) bool { return sets[i].Name < sets[j].Name })
	sort.Strings(unpaired)
	return sets, unpaired, nil
}

// match reports whether stem is <base><suffix> or <base><suffix>_z<n>.
// Single planes get z = -1.
func match(stem, suffix string) (base string, z int, ok bool) {
	if strings.HasSuffix(stem, suffix) {
		return strings.TrimSuffix(stem, suffix), -1, len(stem) > len(suffix)
	}
	i := strings.LastIndex(stem, suffix+"_z")
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(stem[i+len(suffix)+2:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return stem[:i], n, true
}

func add(files map[string]*channelFiles, base string, z int, path string) {
	cf, ok := files[base]
	if !ok {
		cf = &channelFiles{planes: map[int]string{}}
		files[base] = cf
	}
	if z < 0 {
		cf.single = path
	} else {
		cf.planes[z] = path
	}
}

// paths prefers z planes over a single projected file.
func (cf *channelFiles) paths() []string {
	if len(cf.planes) == 0 {
		return []string{cf.single}
	}
	zs := make([]int, 0, len(cf.planes))
	for z := range cf.planes {
		zs = append(zs, z)
	}
	sort.Ints(zs)
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = cf.planes[z]
	}
	return out
}

// Load reads both channels of the set, max-projecting z planes, along with
// its calibration hints.
func Load(set ImageSet) (Images, error) {
	var imgs Images
	if set.Sidecar != "" {
		hints, err := ReadHints(set.Sidecar)
		if err != nil {
			return Images{}, err
		}
		imgs.Hints = hints
	}

	var err error
	if imgs.Nucleus, err = loadChannel(set.Nucleus, imgs.Hints.PixelDepth); err != nil {
		return Images{}, fmt.Errorf("nucleus channel: %w", err)
	}
	if imgs.Stain, err = loadChannel(set.Stain, imgs.Hints.PixelDepth); err != nil {
		return Images{}, fmt.Errorf("stain channel: %w", err)
	}
	if !imgs.Nucleus.SameSize(imgs.Stain) {
		return Images{}, fmt.Errorf("channel sizes differ: %dx%d vs %dx%d",
			imgs.Nucleus.Width, imgs.Nucleus.Height, imgs.Stain.Width, imgs.Stain.Height)
	}
	return imgs, nil
}

func loadChannel(paths []string, depth float64) (models.Plane, error) {
	if len(paths) == 0 {
		return models.Plane{}, errors.New("no files")
	}
	stack := models.Stack{Depth: depth}
	for _, p := range paths {
		plane, err := LoadPlane(p)
		if err != nil {
			return models.Plane{}, err
		}
		stack.Planes = append(stack.Planes, plane)
	}
	if len(stack.Planes) == 1 {
		return stack.Planes[0], nil
	}
	return stack.MaxProjection()
}

// ReadHints parses a calibration sidecar file.
func ReadHints(path string) (calibration.Hints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return calibration.Hints{}, fmt.Errorf("reading calibration hints: %w", err)
	}
	var h calibration.Hints
	if err := yaml.Unmarshal(data, &h); err != nil {
		return calibration.Hints{}, fmt.Errorf("parsing calibration hints %s: %w", path, err)
	}
	return h, nil
}

// LoadPlane decodes a TIFF or PNG file into a plane with intensities in 0..1.
func LoadPlane(path string) (models.Plane, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.Plane{}, err
	}
	defer file.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		img, err = tiff.Decode(file)
	case ".png":
		img, err = png.Decode(file)
	default:
		return models.Plane{}, fmt.Errorf("unsupported image format: %s", path)
	}
	if err != nil {
		return models.Plane{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return ImageToPlane(img), nil
}

// ImageToPlane converts an image to gray intensities in 0..1.
func ImageToPlane(img image.Image) models.Plane {
	bounds := img.Bounds()
	p := models.NewPlane(bounds.Dx(), bounds.Dy())
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			p.Set(x, y, float64(g.Y)/65535.0)
		}
	}
	return p
}

// PlaneToImage converts a plane to 16-bit grayscale, clamping to 0..1.
func PlaneToImage(p models.Plane) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			v := p.At(x, y)
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v*65535.0 + 0.5)})
		}
	}
	return img
}

// SaveImage writes img as TIFF or PNG depending on the path extension.
func SaveImage(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %v", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		return fmt.Errorf("failed to encode image: %v", err)
	}
	return nil
}
