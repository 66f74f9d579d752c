package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "reports service base url")
	campaignID := flag.Int64("campaign", 1, "campaign id")
	mailingListID := flag.Int64("mailing-list", 1, "mailing list id")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	var health map[string]string
	if err := get(client, *baseURL+"/healthz", &health); err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	fmt.Printf("Dependencies: %v\n\n", health)

	var chart struct {
		StartDateTime *time.Time                `json:"startDateTime"`
		Interval      string                    `json:"interval"`
		Activity      map[string]map[string]int `json:"activity"`
	}
	if err := get(client, fmt.Sprintf("%s/api/reports/campaigns/%d/chart?interval=hours", *baseURL, *campaignID), &chart); err != nil {
		log.Fatalf("Failed to get campaign chart: %v", err)
	}
	fmt.Printf("Campaign %d chart (%s), start %v\n", *campaignID, chart.Interval, chart.StartDateTime)
	for kind, buckets := range chart.Activity {
		total := 0
		for _, n := range buckets {
			total += n
		}
		fmt.Printf("   - %s: %d in %d buckets\n", kind, total, len(buckets))
	}

	var activity []struct {
		ContactID   int64     `json:"contactId"`
		Interaction string    `json:"interaction"`
		Date        time.Time `json:"date"`
		Count       int       `json:"count"`
	}
	if err := get(client, fmt.Sprintf("%s/api/reports/campaigns/%d/activity?limit=5", *baseURL, *campaignID), &activity); err != nil {
		log.Fatalf("Failed to get campaign activity: %v", err)
	}
	fmt.Printf("\nLatest campaign activity (%d):\n", len(activity))
	for _, a := range activity {
		fmt.Printf("   - %s | contact %d %s x%d\n", a.Date.Format("2006-01-02 15:04"), a.ContactID, a.Interaction, a.Count)
	}

	var locations []struct {
		Country   string `json:"country"`
		Count     int    `json:"count"`
		CountRate int    `json:"countRate"`
	}
	if err := get(client, fmt.Sprintf("%s/api/reports/mailing-lists/%d/locations?limit=5", *baseURL, *mailingListID), &locations); err != nil {
		log.Fatalf("Failed to get mailing list locations: %v", err)
	}
	fmt.Printf("\nMailing list %d top locations:\n", *mailingListID)
	for _, l := range locations {
		country := l.Country
		if country == "" {
			country = "unknown"
		}
		fmt.Printf("   - %s: %d (%d%%)\n", country, l.Count, l.CountRate)
	}

	fmt.Println("\nAll queries succeeded")
}

func get(client *http.Client, url string, dst any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, body)
	}
	return json.Unmarshal(body, dst)
}
