package audio

import (
	"encoding/binary"
	"math"
	"os"
)

// WriteWAV 将单声道采样写成 16bit PCM WAV 文件
func WriteWAV(path string, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	pcm := float32ToPCM16(samples)
	dataSize := len(pcm) * 2

	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+dataSize))
	copy(header[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:], 1) // mono
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(header[32:], 2)
	binary.LittleEndian.PutUint16(header[34:], 16)
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(dataSize))

	if _, err := file.Write(header); err != nil {
		return err
	}

	payload := make([]byte, dataSize)
	for i, sample := range pcm {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(sample))
	}
	if _, err := file.Write(payload); err != nil {
		return err
	}
	return file.Sync()
}

func float32ToPCM16(src []float32) []int16 {
	dst := make([]int16, len(src))
	for i, sample := range src {
		v := float64(sample)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i] = int16(math.Round(v * 32767))
	}
	return dst
}
