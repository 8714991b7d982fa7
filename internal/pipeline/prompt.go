package pipeline

import (
	"crypto/sha256"
	"encoding/binary"
)

// DefaultBackgroundPrompt returns the fixed descriptive prompt for a background style.
func DefaultBackgroundPrompt(style string) string {
	switch style {
	case "anime-style":
		return "anime style background, detailed scenery, vibrant colors, studio ghibli inspired"
	case "realistic":
		return "photorealistic background, highly detailed, 8k resolution, cinematic lighting"
	case "controlnet":
		return "detailed background scene, professional illustration, sharp focus"
	default:
		return "anime background, professional quality, detailed"
	}
}

// SeedForJob derives a stable generation seed in [0, 1000000) from the job id,
// so a retried stage asks the model for the same picture.
func SeedForJob(jobID string) int {
	sum := sha256.Sum256([]byte(jobID))
	return int(binary.BigEndian.Uint32(sum[:4]) % 1000000)
}
