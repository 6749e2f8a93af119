package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// pcmWav holds the decoded samples of a canonical (mono, 16kHz, 16-bit)
// wav file, along with the header fields needed to re-encode sub-segments.
type pcmWav struct {
	SampleRate uint32
	Channels   uint16
	BitsPerSample uint16
	Samples    []int16
}

// readWav parses a canonical PCM wav file produced by Transcoder.Transcode.
func readWav(path string) (*pcmWav, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeWav(data)
}

func decodeWav(data []byte) (*pcmWav, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a valid wav file")
	}

	r := bytes.NewReader(data[12:])
	var w pcmWav
	var dataBytes []byte

	for {
		var chunkID [4]byte
		var chunkSize uint32
		if err := binary.Read(r, binary.LittleEndian, &chunkID); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			break
		}
		chunk := make([]byte, chunkSize)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("truncated wav chunk %q: %w", chunkID, err)
		}
		if chunkSize%2 == 1 {
			r.Seek(1, io.SeekCurrent)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			if len(chunk) < 16 {
				return nil, fmt.Errorf("malformed fmt chunk")
			}
			w.Channels = binary.LittleEndian.Uint16(chunk[2:4])
			w.SampleRate = binary.LittleEndian.Uint32(chunk[4:8])
			w.BitsPerSample = binary.LittleEndian.Uint16(chunk[14:16])
		case "data":
			dataBytes = chunk
		}
	}

	if w.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d, expected 16", w.BitsPerSample)
	}
	w.Samples = make([]int16, len(dataBytes)/2)
	for i := range w.Samples {
		w.Samples[i] = int16(binary.LittleEndian.Uint16(dataBytes[i*2 : i*2+2]))
	}
	return &w, nil
}

// writeWav encodes samples as a canonical mono 16-bit PCM wav file.
func writeWav(path string, sampleRate uint32, channels uint16, samples []int16) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dataSize := uint32(len(samples) * 2)
	byteRate := sampleRate * uint32(channels) * 2
	blockAlign := channels * 2

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, channels)
	binary.Write(buf, binary.LittleEndian, sampleRate)
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, s)
	}

	_, err = f.Write(buf.Bytes())
	return err
}
