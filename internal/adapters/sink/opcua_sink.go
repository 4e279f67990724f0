package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/slomkowski/usb-geiger/internal/domain"
	"github.com/slomkowski/usb-geiger/internal/ports"
)

// OPCUAConfig captures the session details and the two target variables.
type OPCUAConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SecurityMode    string `yaml:"security_mode"`
	SecurityPolicy  string `yaml:"security_policy"`
	ApplicationName string `yaml:"application_name"`
	CPMNodeID       string `yaml:"cpm_node_id"`
	RadiationNodeID string `yaml:"radiation_node_id"`
}

func (c *OPCUAConfig) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "USB Geiger Edge"
	}
}

func (c *OPCUAConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("opcua: endpoint is required")
	}
	if c.CPMNodeID == "" && c.RadiationNodeID == "" {
		return errors.New("opcua: at least one of cpm_node_id, radiation_node_id must be set")
	}
	return nil
}

type nodeWriter interface {
	Write(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error)
	Close(ctx context.Context) error
}

// OPCUA writes each reading into server variables so SCADA clients can
// subscribe to them.
type OPCUA struct {
	lifecycle
	client    nodeWriter
	cpm       *ua.NodeID
	radiation *ua.NodeID
}

func NewOPCUA(ctx context.Context, cfg OPCUAConfig) (*OPCUA, error) {
	if !cfg.Enabled {
		return &OPCUA{}, nil
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cpm, radiation, err := parseNodes(cfg)
	if err != nil {
		return nil, err
	}

	client, err := opcua.NewClient(cfg.Endpoint, buildClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("opcua connect: %w", err)
	}
	return newOPCUA(client, cpm, radiation), nil
}

func newOPCUA(w nodeWriter, cpm, radiation *ua.NodeID) *OPCUA {
	s := &OPCUA{client: w, cpm: cpm, radiation: radiation}
	s.enabled.Store(true)
	return s
}

func parseNodes(cfg OPCUAConfig) (cpm, radiation *ua.NodeID, err error) {
	if cfg.CPMNodeID != "" {
		if cpm, err = ua.ParseNodeID(cfg.CPMNodeID); err != nil {
			return nil, nil, fmt.Errorf("parse node id %q: %w", cfg.CPMNodeID, err)
		}
	}
	if cfg.RadiationNodeID != "" {
		if radiation, err = ua.ParseNodeID(cfg.RadiationNodeID); err != nil {
			return nil, nil, fmt.Errorf("parse node id %q: %w", cfg.RadiationNodeID, err)
		}
	}
	return cpm, radiation, nil
}

func (s *OPCUA) Name() string { return "opcua" }

func (s *OPCUA) Update(ctx context.Context, m domain.Measurement) error {
	var nodes []*ua.WriteValue
	if s.cpm != nil && m.CPM != nil {
		nodes = append(nodes, writeValue(s.cpm, *m.CPM, m.Timestamp))
	}
	if s.radiation != nil && m.Radiation != nil {
		nodes = append(nodes, writeValue(s.radiation, *m.Radiation, m.Timestamp))
	}
	if len(nodes) == 0 {
		return nil
	}

	resp, err := s.client.Write(ctx, &ua.WriteRequest{NodesToWrite: nodes})
	if err != nil {
		return sinkErr(s.Name(), "write: %v", err)
	}
	if len(resp.Results) != len(nodes) {
		return sinkErr(s.Name(), "write: expected %d results, got %d", len(nodes), len(resp.Results))
	}
	for i, status := range resp.Results {
		if status != ua.StatusOK {
			return sinkErr(s.Name(), "write node %s failed: %s", nodes[i].NodeID, status)
		}
	}
	return nil
}

func (s *OPCUA) Close() error {
	if !s.disable() || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func writeValue(node *ua.NodeID, v float64, ts time.Time) *ua.WriteValue {
	return &ua.WriteValue{
		NodeID:      node,
		AttributeID: ua.AttributeIDValue,
		Value: &ua.DataValue{
			EncodingMask:    ua.DataValueValue | ua.DataValueSourceTimestamp,
			Value:           ua.MustVariant(v),
			SourceTimestamp: ts,
		},
	}
}

func buildClientOptions(cfg OPCUAConfig) []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(cfg.SecurityPolicy)),
		opcua.ApplicationName(cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(cfg.Username, cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Sink = (*OPCUA)(nil)
