// Package synthetic fabricates demo API call logs with a realistic status mix.
package synthetic

import (
	"math"
	"math/rand/v2"
	"time"

	"http-kpi/domain"
)

var Endpoints = []string{
	"/get",
	"/post",
	"/status/403",
	"/basic-auth/usuario_test/clave123",
	"/cookies",
	"/xml",
	"/html",
}

var (
	clientErrors = []int{400, 401, 404, 429}
	serverErrors = []int{500, 502, 503}
)

type Generator struct {
	rng  *rand.Rand
	now  func() time.Time
	days int
}

// NewGenerator spreads timestamps over the last days days. A nil seed draws
// from a random source.
func NewGenerator(seed *uint64, days int, now func() time.Time) *Generator {
	var src rand.Source
	if seed != nil {
		src = rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if now == nil {
		now = time.Now
	}
	if days <= 0 {
		days = 3
	}
	return &Generator{rng: rand.New(src), now: now, days: days}
}

func (g *Generator) Generate(n int) []domain.LogRecord {
	end := g.now().UTC().Truncate(time.Second)
	start := end.Add(-time.Duration(g.days) * 24 * time.Hour)
	span := int64(end.Sub(start) / time.Second)

	records := make([]domain.LogRecord, 0, n)
	for i := 0; i < n; i++ {
		endpoint := Endpoints[g.rng.IntN(len(Endpoints))]
		ts := start.Add(time.Duration(g.rng.Int64N(span+1)) * time.Second)
		elapsed := math.Round((50+g.rng.Float64()*750)*100) / 100

		records = append(records, domain.LogRecord{
			Timestamp:   ts.Format(domain.TimestampLayout),
			EndpointRaw: endpoint,
			StatusCode:  domain.IntPtr(g.statusFor(endpoint)),
			ElapsedMs:   domain.Float64Ptr(elapsed),
			ParseError:  g.rng.Float64() < 0.05,
		})
	}
	return records
}

// statusFor: /status/403 always answers 403; elsewhere 88% success, 8% client
// error, 4% server error.
func (g *Generator) statusFor(endpoint string) int {
	if endpoint == "/status/403" {
		return 403
	}
	switch p := g.rng.Float64(); {
	case p < 0.88:
		return 200
	case p < 0.96:
		return clientErrors[g.rng.IntN(len(clientErrors))]
	default:
		return serverErrors[g.rng.IntN(len(serverErrors))]
	}
}
