package synthetic

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"math"
	"strconv"
	"time"
)

const sampleRate = 16000

// RenderImage draws a striped PNG whose colours derive from seed.
func RenderImage(width, height int, seed string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	paint(img, seed, 0)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderAnimation draws a looping GIF that pans the striped pattern.
func RenderAnimation(width, height, frames int, seed string) ([]byte, error) {
	anim := &gif.GIF{LoopCount: 0}
	for i := 0; i < frames; i++ {
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		paint(rgba, seed, i*maxInt(4, width/frames))
		frame := image.NewPaletted(rgba.Bounds(), palette.Plan9)
		draw.Draw(frame, frame.Bounds(), rgba, image.Point{}, draw.Src)
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 8)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func paint(img *image.RGBA, seed string, offset int) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	draw.Draw(img, bounds, &image.Uniform{colorFromSeed(seed, 0)}, image.Point{}, draw.Src)

	accent := colorFromSeed(seed, 1)
	stripeHeight := maxInt(8, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, minInt(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	step := maxInt(8, width/16)
	for i := -height; i < width; i += step {
		for y := 0; y < height; y++ {
			x := i + y + offset%step
			if x >= 0 && x < width {
				img.Set(x, y, diagonal)
			}
		}
	}
}

// ToneWAV returns a 16-bit mono PCM WAV with a sine tone. A zero frequency yields silence.
func ToneWAV(d time.Duration, freq float64) []byte {
	samples := int(d.Seconds() * sampleRate)
	if samples < 0 {
		samples = 0
	}
	pcm := make([]int16, samples)
	if freq > 0 {
		for i := range pcm {
			envelope := 1.0
			if fade := sampleRate / 50; i < fade {
				envelope = float64(i) / float64(fade)
			} else if samples-i < fade {
				envelope = float64(samples-i) / float64(fade)
			}
			pcm[i] = int16(0.3 * envelope * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
		}
	}

	dataLen := uint32(len(pcm) * 2)
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	_ = binary.Write(&buf, binary.LittleEndian, pcm)
	return buf.Bytes()
}

// SilentWAV returns d of silence.
func SilentWAV(d time.Duration) []byte {
	return ToneWAV(d, 0)
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func seedByte(seed string, index int) uint8 {
	if len(seed) < index*2+2 {
		return 0
	}
	return hexByte(seed[index*2 : index*2+2])
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
