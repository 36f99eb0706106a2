package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// Seeds a demo gallery through the running API. Mints go through the
// orchestrator one at a time, waiting for each confirmation, so the
// catalog ends up warm and the token ids are predictable.

type sample struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Description string `json:"description"`
	Submitter   string `json:"submitter"`
}

var gallery = []sample{
	{"Fractured Light", "Mara Voss", "Stained glass rendered in oil", "0x1111111111111111111111111111111111111111"},
	{"Harbor at Dusk", "Ilya Brandt", "Charcoal study of the old docks", "0x1111111111111111111111111111111111111111"},
	{"Signal Garden", "Noor Feld", "Generative piece, seed 4471", "0x2222222222222222222222222222222222222222"},
	{"Counting Rooms", "Mara Voss", "Interior series, no. 3", "0x2222222222222222222222222222222222222222"},
	{"Tidewater", "Joon Park", "Ink wash on cotton paper", "0x3333333333333333333333333333333333333333"},
}

func main() {
	baseURL := os.Getenv("API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}

	log.Println("--- Seeding Gallery ---")

	// Check existing
	count, err := artworkCount(client, baseURL)
	if err != nil {
		log.Fatalf("Unable to reach API: %v", err)
	}
	if count >= len(gallery) {
		log.Printf("Catalog already has %d artworks. Skipping.", count)
		return
	}

	for _, s := range gallery {
		ref, err := mint(client, baseURL, s)
		if err != nil {
			log.Fatalf("Mint submission failed for %q: %v", s.Title, err)
		}
		status, reason, err := awaitTerminal(client, baseURL, ref)
		if err != nil {
			log.Fatalf("Status poll failed for %q: %v", s.Title, err)
		}
		if status != "confirmed" {
			log.Fatalf("Mint of %q ended %s: %s", s.Title, status, reason)
		}
		log.Printf("Minted %q (%s)", s.Title, ref)
	}

	log.Printf("Successfully seeded %d artworks.", len(gallery))
}

func artworkCount(client *http.Client, baseURL string) (int, error) {
	resp, err := client.Get(baseURL + "/api/v1/artworks")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var artworks []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&artworks); err != nil {
		return 0, err
	}
	return len(artworks), nil
}

func mint(client *http.Client, baseURL string, s sample) (string, error) {
	body, _ := json.Marshal(s)
	resp, err := client.Post(baseURL+"/api/v1/artworks/mint", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var ack struct {
		LedgerRef string `json:"ledger_reference"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return "", err
	}
	return ack.LedgerRef, nil
}

func awaitTerminal(client *http.Client, baseURL, ref string) (status, reason string, err error) {
	deadline := time.Now().Add(3 * time.Minute)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/api/v1/transactions/" + ref)
		if err != nil {
			return "", "", err
		}
		var rec struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&rec)
		resp.Body.Close()
		if decodeErr != nil {
			return "", "", decodeErr
		}
		if rec.Status != "pending" {
			return rec.Status, rec.Reason, nil
		}
		time.Sleep(time.Second)
	}
	return "", "", fmt.Errorf("confirmation wait timed out for %s", ref)
}
