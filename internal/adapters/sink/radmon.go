package sink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

const defaultRadmonURL = "http://radmon.org/radmon.php"

type RadmonConfig struct {
	Enabled   bool     `yaml:"enabled"`
	User      string   `yaml:"user"`
	Password  string   `yaml:"password"`
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
	URL       string   `yaml:"url"`
}

// Radmon submits CPM readings to radmon.org. The service ignores dose rate.
type Radmon struct {
	lifecycle
	cfg    RadmonConfig
	client *http.Client
}

func NewRadmon(cfg RadmonConfig) (*Radmon, error) {
	s := &Radmon{client: &http.Client{Timeout: 10 * time.Second}}
	if !cfg.Enabled {
		return s, nil
	}
	if cfg.URL == "" {
		cfg.URL = defaultRadmonURL
	}
	if cfg.User == "" || cfg.Password == "" {
		return nil, fmt.Errorf("radmon: user and password are required")
	}
	switch {
	case cfg.Latitude != nil && cfg.Longitude != nil:
		if *cfg.Latitude < -90 || *cfg.Latitude > 90 {
			return nil, fmt.Errorf("radmon: latitude value %f is invalid", *cfg.Latitude)
		}
		if *cfg.Longitude < -180 || *cfg.Longitude > 180 {
			return nil, fmt.Errorf("radmon: longitude value %f is invalid", *cfg.Longitude)
		}
	case cfg.Latitude != nil || cfg.Longitude != nil:
		return nil, fmt.Errorf("radmon: both latitude and longitude have to be provided or nothing at all")
	}

	s.cfg = cfg
	s.enabled.Store(true)
	return s, nil
}

func (s *Radmon) Name() string { return "radmon" }

func (s *Radmon) Update(ctx context.Context, m domain.Measurement) error {
	if m.CPM == nil {
		return sinkErr(s.Name(), "this sink needs a CPM value")
	}

	params := url.Values{}
	params.Set("user", s.cfg.User)
	params.Set("password", s.cfg.Password)
	params.Set("value", strconv.Itoa(int(*m.CPM)))
	params.Set("unit", "CPM")
	// radmon.org takes ISO local time without zone but interprets it as UTC
	params.Set("datetime", m.Timestamp.UTC().Format("2006-01-02T15:04:05"))
	if s.cfg.Latitude != nil && s.cfg.Longitude != nil {
		params.Set("latitude", strconv.FormatFloat(*s.cfg.Latitude, 'f', -1, 64))
		params.Set("longitude", strconv.FormatFloat(*s.cfg.Longitude, 'f', -1, 64))
		params.Set("function", "submitwithlatlng")
	} else {
		params.Set("function", "submit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL+"?"+params.Encode(), nil)
	if err != nil {
		return sinkErr(s.Name(), "build request: %v", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return sinkErr(s.Name(), "error at sending values: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sinkErr(s.Name(), "invalid server response: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return sinkErr(s.Name(), "read response: %v", err)
	}
	if text := strings.TrimSpace(string(body)); text != "OK<br>" {
		return sinkErr(s.Name(), "invalid server response: %s", text)
	}
	return nil
}

func (s *Radmon) Close() error {
	s.disable()
	s.client.CloseIdleConnections()
	return nil
}

var _ ports.Sink = (*Radmon)(nil)
