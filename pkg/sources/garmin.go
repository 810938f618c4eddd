package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arielsz/jarvisz/pkg/config"
	"github.com/arielsz/jarvisz/pkg/gateway"
)

// GarminClient reads daily wellness stats from the Garmin Connect API.
type GarminClient struct {
	apiBase    string
	token      string
	httpClient *http.Client
	now        func() time.Time
}

func NewGarminClient(cfg config.GarminConfig) *GarminClient {
	return &GarminClient{
		apiBase:    cfg.APIBase,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// Enabled reports whether the client is configured at all.
func (g *GarminClient) Enabled() bool {
	return g.token != ""
}

// TodayMetrics fetches today's summary. A nil result with nil error never
// happens; callers treat any error as "no biometrics today".
func (g *GarminClient) TodayMetrics(ctx context.Context) (*gateway.Metrics, error) {
	if !g.Enabled() {
		return nil, fmt.Errorf("garmin not configured")
	}

	day := g.now().Format("2006-01-02")
	u := fmt.Sprintf("%s/usersummary-service/usersummary/daily?calendarDate=%s", g.apiBase, day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("garmin request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("garmin api: status %d", resp.StatusCode)
	}

	var stats struct {
		BodyBattery *int `json:"bodyBatteryMostRecentValue"`
		StressAvg   *int `json:"averageStressLevel"`
		SleepScore  *int `json:"sleepScore"`
		RestingHR   *int `json:"restingHeartRate"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("parse garmin response: %w", err)
	}

	return &gateway.Metrics{
		BodyBattery: stats.BodyBattery,
		StressAvg:   stats.StressAvg,
		SleepScore:  stats.SleepScore,
		RestingHR:   stats.RestingHR,
	}, nil
}
