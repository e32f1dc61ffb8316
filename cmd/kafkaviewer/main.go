// Kafka viewer prints rendered utterances and finalized transcripts as they
// are published, for checking the Kafka side of a recording.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"interview-transcription-service/internal/models"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Comma-separated Kafka brokers")
	utteranceTopic := flag.String("utterance-topic", "interview.utterance.rendered", "Rendered utterance topic")
	transcriptTopic := flag.String("transcript-topic", "interview.transcript.finalized", "Finalized transcript topic")
	since := flag.Duration("since", time.Hour, "How far back to start reading")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		consume(ctx, *brokers, *utteranceTopic, *since, printUtterance)
	}()
	go func() {
		defer wg.Done()
		consume(ctx, *brokers, *transcriptTopic, *since, printTranscript)
	}()
	wg.Wait()
}

func consume(ctx context.Context, brokers, topic string, since time.Duration, handle func(kafka.Message)) {
	// Use partition reader without consumer group (works better through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Printf("Failed to seek %s: %v", topic, err)
	}
	log.Printf("Consuming from Kafka topic: %s partition 0", topic)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}
		handle(msg)
	}
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func printUtterance(msg kafka.Message) {
	var u models.RenderedUtterance
	if err := json.Unmarshal(msg.Value, &u); err != nil {
		log.Printf("Invalid utterance at offset %d: %v", msg.Offset, err)
		return
	}
	log.Printf("%s #%d %s | %s", u.SessionID, u.Sequence,
		models.FormatLine(u.Timestamp, u.Speaker, u.InvestigatorDisplay), u.ParticipantDisplay)
}

func printTranscript(msg kafka.Message) {
	var t models.Transcript
	if err := json.Unmarshal(msg.Value, &t); err != nil {
		log.Printf("Invalid transcript at offset %d: %v", msg.Offset, err)
		return
	}
	log.Printf("Transcript finalized: session=%s case=%s utterances=%d duration=%dms principal=%s",
		t.SessionID, t.CaseID, t.Metadata.MessageCount, t.Metadata.DurationMs, header(msg, "principal"))
}
