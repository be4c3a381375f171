package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"fragment-loader/internal/models"
)

// Config lists the pages to submit to the API.
type Config struct {
	Pages []string `json:"pages"`
}

func main() {
	configPath := flag.String("config", "pages.json", "Path to JSON config file with pages")
	apiBase := flag.String("api", "http://localhost:8080", "API base URL")
	flag.Parse()

	if err := run(*configPath, *apiBase, nil); err != nil {
		log.Fatal(err)
	}
}

// run submits every page in the config to the API concurrently.
// If client is nil, a default HTTP client (30s timeout) is used.
func run(configPath, apiBase string, client *http.Client) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	baseURL, err := url.Parse(apiBase)
	if err != nil {
		return err
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var wg sync.WaitGroup
	var accepted int64
	for i, page := range cfg.Pages {
		wg.Add(1)
		go func(idx int, p string) {
			defer wg.Done()
			if submitPage(client, baseURL, idx, p) {
				atomic.AddInt64(&accepted, 1)
			}
		}(i, page)
	}
	wg.Wait()
	log.Printf("submitted %d pages, %d accepted", len(cfg.Pages), accepted)
	return nil
}

// loadConfig reads and parses the JSON config file.
func loadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if len(cfg.Pages) == 0 {
		return cfg, errNoPages
	}
	return cfg, nil
}

var errNoPages = fmt.Errorf("config has no pages")

// submitPage posts one load request and reports whether it was accepted.
func submitPage(client *http.Client, base *url.URL, idx int, page string) bool {
	u := *base
	u.Path = "/loads"
	u.RawQuery = url.Values{"page": {page}}.Encode()

	resp, err := client.Post(u.String(), "", nil)
	if err != nil {
		log.Printf("[%d] page=%q err=%v", idx, page, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		log.Printf("[%d] page=%q status=%d", idx, page, resp.StatusCode)
		return false
	}
	var status models.LoadStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		log.Printf("[%d] page=%q accepted (unreadable body: %v)", idx, page, err)
		return true
	}
	log.Printf("[%d] page=%q accepted load_id=%s", idx, page, status.LoadID)
	return true
}
