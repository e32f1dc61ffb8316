package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"interview-transcription-service/internal/models"
)

type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func main() {
	serverAddr := flag.String("server", "localhost:8080", "HTTP server address")
	view := flag.String("view", "investigator", "Which rendering to print: investigator or participant")
	showEvents := flag.Bool("events", false, "Also print untranslated transcription events")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/v1/live"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", u.String())

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("connection closed: %v", err)
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("invalid message: %v", err)
			continue
		}

		switch msg.Type {
		case "utterance":
			var u models.RenderedUtterance
			if err := json.Unmarshal(msg.Data, &u); err != nil {
				log.Printf("invalid utterance: %v", err)
				continue
			}
			text := u.InvestigatorDisplay
			if *view == "participant" {
				text = u.ParticipantDisplay
			}
			line := models.FormatLine(u.Timestamp, u.Speaker, text)
			if u.Error != "" {
				line += " (untranslated: " + u.Error + ")"
			}
			log.Printf("#%d %s", u.Sequence, line)

		case "transcription":
			if !*showEvents {
				continue
			}
			var ev models.TranscriptionEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				log.Printf("invalid event: %v", err)
				continue
			}
			log.Printf("[%s] %s", ev.LanguageCode, ev.Transcript)

		default:
			log.Printf("%s: %s", msg.Type, string(msg.Data))
		}
	}
}
