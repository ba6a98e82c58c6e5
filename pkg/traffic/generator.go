package traffic

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// Address ranges of the synthetic populations, as last octets of 192.168.1.0/24.
const (
	normalHostLow     = 1
	normalHostHigh    = 50
	anomalousHostLow  = 51
	anomalousHostHigh = 100
	dosHostLow        = 101
	dosHostHigh       = 150
)

// ErrInvalidGenerator is returned for an unusable generator configuration.
var ErrInvalidGenerator = errors.New("invalid generator config")

// GeneratorConfig describes a synthetic traffic batch.
type GeneratorConfig struct {
	NumNormal     int
	NumAnomalous  int
	NumDoS        int
	NumDoSSources int
	StartTime     float64
	Duration      float64
	Seed          int64
}

// DefaultGeneratorConfig returns the population sizes used by the CLI.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		NumNormal:     900,
		NumAnomalous:  100,
		NumDoS:        100,
		NumDoSSources: 2,
		StartTime:     1700000000,
		Duration:      60,
		Seed:          42,
	}
}

// Validate checks the configuration.
func (c GeneratorConfig) Validate() error {
	if c.NumNormal < 0 || c.NumAnomalous < 0 || c.NumDoS < 0 {
		return fmt.Errorf("%w: population sizes must not be negative", ErrInvalidGenerator)
	}
	if c.NumDoS > 0 && (c.NumDoSSources < 1 || c.NumDoSSources > dosHostHigh-dosHostLow) {
		return fmt.Errorf("%w: num_dos_sources must be in [1, %d], got %d",
			ErrInvalidGenerator, dosHostHigh-dosHostLow, c.NumDoSSources)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidGenerator)
	}
	return nil
}

// Generator produces labeled synthetic traffic.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// NewGenerator creates a seeded generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Generate returns one batch sorted by timestamp.
//
// Normal traffic is spread over many hosts with sizes in [50, 1500).
// Anomalous traffic comes from a disjoint host range with sizes in
// [1000, 1500). DoS traffic is concentrated on a few hosts with sizes in
// [1500, 3000).
func (g *Generator) Generate() []Record {
	total := g.cfg.NumNormal + g.cfg.NumAnomalous + g.cfg.NumDoS
	records := make([]Record, 0, total)

	for i := 0; i < g.cfg.NumNormal; i++ {
		records = append(records, Record{
			Timestamp:  g.timestamp(),
			SourceID:   host(normalHostLow + g.rng.Intn(normalHostHigh-normalHostLow)),
			PacketSize: 50 + g.rng.Intn(1450),
			Label:      Benign,
		})
	}

	for i := 0; i < g.cfg.NumAnomalous; i++ {
		records = append(records, Record{
			Timestamp:  g.timestamp(),
			SourceID:   host(anomalousHostLow + g.rng.Intn(anomalousHostHigh-anomalousHostLow)),
			PacketSize: 1000 + g.rng.Intn(500),
			Label:      Malicious,
		})
	}

	if g.cfg.NumDoS > 0 {
		attackers := g.rng.Perm(dosHostHigh - dosHostLow)[:g.cfg.NumDoSSources]
		for i := 0; i < g.cfg.NumDoS; i++ {
			records = append(records, Record{
				Timestamp:  g.timestamp(),
				SourceID:   host(dosHostLow + attackers[g.rng.Intn(len(attackers))]),
				PacketSize: 1500 + g.rng.Intn(1500),
				Label:      Malicious,
			})
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})

	return records
}

// Read implements the dataset source interface.
func (g *Generator) Read() ([]Record, error) {
	return g.Generate(), nil
}

// Close is a no-op.
func (g *Generator) Close() error {
	return nil
}

func (g *Generator) timestamp() float64 {
	return g.cfg.StartTime + g.rng.Float64()*g.cfg.Duration
}

func host(octet int) string {
	return fmt.Sprintf("192.168.1.%d", octet)
}
