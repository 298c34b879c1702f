package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/wolfman30/mindcare-booking/internal/doctors"
)

// DirectoryFile is the seed file layout.
type DirectoryFile struct {
	Clinic  string           `json:"clinic"`
	Doctors []doctors.Doctor `json:"doctors"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: seed-doctors <doctors-file.json>")
		fmt.Println("Example: ADMIN_TOKEN=... seed-doctors testdata/doctors.json")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	token := strings.TrimSpace(os.Getenv("ADMIN_TOKEN"))
	if token == "" {
		fmt.Println("ADMIN_TOKEN is required")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
	var dir DirectoryFile
	if err := json.Unmarshal(data, &dir); err != nil {
		fmt.Printf("Error parsing JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeding %d doctors for %s into %s\n", len(dir.Doctors), dir.Clinic, apiURL)
	client := &http.Client{Timeout: 30 * time.Second}
	saved, failures := seed(context.Background(), client, apiURL, token, dir.Doctors)
	for _, f := range failures {
		fmt.Printf("  failed: %v\n", f)
	}
	fmt.Printf("Saved %d/%d doctors\n", saved, len(dir.Doctors))
	if len(failures) > 0 {
		os.Exit(1)
	}
}

// seed PUTs every doctor to the admin API and keeps going past failures.
func seed(ctx context.Context, client *http.Client, apiURL, token string, list []doctors.Doctor) (int, []error) {
	saved := 0
	var failures []error
	for _, d := range list {
		if err := putDoctor(ctx, client, apiURL, token, d); err != nil {
			failures = append(failures, err)
			continue
		}
		saved++
		fmt.Printf("  saved %s (%s)\n", d.ID, d.Name)
	}
	return saved, failures
}

func putDoctor(ctx context.Context, client *http.Client, apiURL, token string, d doctors.Doctor) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", d.ID, err)
	}
	endpoint := strings.TrimRight(apiURL, "/") + "/admin/doctors/" + url.PathEscape(d.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", d.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", d.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: status %d: %s", d.ID, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
