package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/gridscan/internal/scan"
)

// remoteRequest is the JSON body POSTed to an evaluation service for each
// grid point.
type remoteRequest struct {
	Point scan.Point `json:"point"`
	Extra scan.Args  `json:"extra,omitempty"`
}

// remoteResponse is the JSON body an evaluation service must return.
type remoteResponse struct {
	Value float64 `json:"value"`
}

// Remote returns a metric that evaluates points by POSTing them to an
// external evaluation service and decoding {"value": ...} from the
// response. Any transport error or non-200 status fails the metric, which
// aborts the scan (the scanner has no retry policy; an evaluation service
// that needs retries must do its own).
//
// A nil client gets a default with a 30 second timeout.
func Remote(client *http.Client, url string) scan.Metric {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return func(pt scan.Point, extra scan.Args) (float64, error) {
		data, err := json.Marshal(remoteRequest{Point: pt, Extra: extra})
		if err != nil {
			return 0, fmt.Errorf("remote metric: encode point: %w", err)
		}

		resp, err := client.Post(url, "application/json", bytes.NewReader(data))
		if err != nil {
			return 0, fmt.Errorf("remote metric: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return 0, fmt.Errorf("remote metric: status %d: %s", resp.StatusCode, string(body))
		}

		var out remoteResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return 0, fmt.Errorf("remote metric: decode response: %w", err)
		}
		return out.Value, nil
	}
}
