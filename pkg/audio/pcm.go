package audio

import "encoding/binary"

const (
	// SampleRate is the opus clock rate used on the peer connection.
	SampleRate = 48000

	// Channels is the channel count for both directions.
	Channels = 1

	// FrameDuration is the length of one encoded frame in milliseconds.
	FrameDuration = 20

	// FrameSamples is the number of samples per frame.
	FrameSamples = SampleRate * FrameDuration / 1000

	// maxFrameSamples fits the longest opus frame (120ms at 48kHz).
	maxFrameSamples = 5760
)

// BytesToSamples converts PCM16LE bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes converts int16 samples to PCM16LE bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// Resample converts samples from srcRate to dstRate with linear interpolation.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(dstRate) / float64(srcRate)
	newLen := int(float64(len(samples)) * ratio)
	result := make([]int16, newLen)

	for i := 0; i < newLen; i++ {
		srcIdx := float64(i) / ratio
		idx := int(srcIdx)
		if idx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			frac := srcIdx - float64(idx)
			result[i] = int16(float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac)
		}
	}

	return result
}
