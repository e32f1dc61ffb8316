package main

import (
	"encoding/binary"
	"flag"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"interview-transcription-service/internal/service/audio"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in 100ms chunks to simulate a live capture source.
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit mono PCM)")
	serverAddr := flag.String("server", "localhost:8080", "HTTP server address")
	source := flag.String("source", "microphone", "Capture source: microphone or display")
	noAudio := flag.Bool("no-audio", false, "Attach a display feed without an audio track")
	loop := flag.Bool("loop", false, "Restart the file when it ends")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/v1/capture/" + *source}
	if *noAudio {
		u.RawQuery = "audio=0"
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", u.String())

	// the server closes the connection when the recording releases the source
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.Printf("Capture connection closed: %v", err)
				return
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	if *noAudio {
		select {
		case <-closed:
		case <-interrupt:
			sendEnd(conn)
		}
		return
	}

	for {
		done := streamFile(conn, *audioFile, closed, interrupt)
		if done || !*loop {
			break
		}
	}
	sendEnd(conn)
}

// streamFile sends one pass over the file. It returns true when streaming
// must stop for good.
func streamFile(conn *websocket.Conn, path string, closed <-chan struct{}, interrupt <-chan os.Signal) bool {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	// Read and validate WAV header
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 || bitsPerSample != 16 || numChannels != 1 {
		log.Fatal("Only 16-bit mono PCM is supported")
	}

	// bytes of 16-bit PCM per chunk interval
	chunkSize := int(sampleRate) * 2 * chunkIntervalMs / 1000
	buf := make([]byte, chunkSize)
	var chunkNum int
	ticker := time.NewTicker(chunkIntervalMs * time.Millisecond)
	defer ticker.Stop()

	for {
		n, err := io.ReadFull(f, buf)
		if err == io.EOF {
			return false
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			log.Fatalf("Failed to read audio: %v", err)
		}

		samples := audio.DecodePCM16(buf[:n])
		if err := conn.WriteMessage(websocket.BinaryMessage, audio.EncodeFloat32LE(samples)); err != nil {
			log.Printf("Failed to send chunk: %v", err)
			return true
		}

		chunkNum++
		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%dms)", chunkNum, chunkNum*chunkIntervalMs)
		}

		select {
		case <-ticker.C:
		case <-closed:
			return true
		case <-interrupt:
			return true
		}
	}
}

func sendEnd(conn *websocket.Conn) {
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"end"}`))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
