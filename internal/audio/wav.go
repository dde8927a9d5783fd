package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/tourguide/internal/models"
)

const (
	MIMETypeWAV = "audio/wav"

	// Gemini speech models return 16-bit mono PCM at 24kHz
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	bitsPerSample     = 16
)

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// IsPCM reports whether mimeType describes headerless linear PCM
func IsPCM(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	return strings.HasPrefix(mt, "audio/l16") || strings.HasPrefix(mt, "audio/pcm")
}

// ParsePCMFormat reads the rate and channels parameters of a PCM MIME type,
// e.g. "audio/L16;codec=pcm;rate=24000"
func ParsePCMFormat(mimeType string) (sampleRate, channels int) {
	sampleRate, channels = DefaultSampleRate, DefaultChannels

	params := strings.Split(mimeType, ";")
	for _, p := range params[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			continue
		}
		switch strings.ToLower(key) {
		case "rate":
			sampleRate = n
		case "channels":
			channels = n
		}
	}
	return sampleRate, channels
}

// ToWAV converts PCM audio into a playable WAV clip. WAV input is returned
// unchanged; other encoded formats (mp3, ogg) pass through as they are.
func ToWAV(a models.Audio) (models.Audio, error) {
	if len(a.Data) == 0 {
		return a, fmt.Errorf("empty audio data")
	}

	if bytes.HasPrefix(a.Data, []byte("RIFF")) {
		return models.Audio{MIMEType: MIMETypeWAV, Data: a.Data}, nil
	}

	if !IsPCM(a.MIMEType) {
		return a, nil
	}

	rate, channels := ParsePCMFormat(a.MIMEType)
	data, err := EncodeWAV(a.Data, rate, channels)
	if err != nil {
		return a, err
	}
	return models.Audio{MIMEType: MIMETypeWAV, Data: data}, nil
}

// EncodeWAV prefixes little-endian 16-bit PCM samples with a RIFF header
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid PCM format: rate=%d channels=%d", sampleRate, channels)
	}

	blockAlign := channels * bitsPerSample / 8
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}
