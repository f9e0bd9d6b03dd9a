// Command seed writes a spread of sample activity into the configured
// audit store through the recorder.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/snapgallery/backoffice/internal/app"
	"github.com/snapgallery/backoffice/internal/audit"
)

type activity struct {
	action audit.ActionType
	table  string
	weight int
	admin  bool
}

var mix = []activity{
	{action: audit.ActionLogin, weight: 30},
	{action: audit.ActionLogout, weight: 20},
	{action: audit.ActionUploadPhoto, table: "photos", weight: 25},
	{action: audit.ActionUpdatePhoto, table: "photos", weight: 6},
	{action: audit.ActionAddComment, table: "comments", weight: 18},
	{action: audit.ActionDeleteComment, table: "comments", weight: 4, admin: true},
	{action: audit.ActionDeletePhoto, table: "photos", weight: 3, admin: true},
	{action: audit.ActionBanUser, table: "users", weight: 1, admin: true},
	{action: audit.ActionUpdateUser, table: "users", weight: 2, admin: true},
	{action: audit.ActionAccessDenied, weight: 2, admin: true},
}

// seedClock hands out timestamps chosen by the seeding loop.
type seedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *seedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *seedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func main() {
	count := flag.Int("count", 500, "number of entries to write")
	days := flag.Int("days", 30, "spread entries over this many trailing days")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	ctx := context.Background()

	clock := &seedClock{now: time.Now()}
	store, closeStore, err := app.OpenStoreWithClock(ctx, cfg, logger, clock.Now)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	recorder := audit.NewRecorder(store, logger, audit.NewMetrics(nil))
	rng := rand.New(rand.NewSource(*seed))
	total := 0
	for _, a := range mix {
		total += a.weight
	}

	start := time.Now().AddDate(0, 0, -*days)
	span := time.Since(start)
	// Timestamps ascend so ids and created_at agree.
	stamps := make([]time.Time, *count)
	for i := range stamps {
		stamps[i] = start.Add(time.Duration(rng.Int63n(int64(span))))
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	written := 0
	for _, at := range stamps {
		clock.Set(at)
		in := sample(rng, pick(rng, total))
		if _, err := recorder.Record(ctx, in); err != nil {
			logger.Warn("seed entry", slog.Any("error", err))
			continue
		}
		written++
	}
	fmt.Printf("→ Seeded %d audit entries into %s store\n", written, cfg.AuditStore)
}

func pick(rng *rand.Rand, total int) activity {
	n := rng.Intn(total)
	for _, a := range mix {
		if n < a.weight {
			return a
		}
		n -= a.weight
	}
	return mix[0]
}

func sample(rng *rand.Rand, a activity) audit.RecordInput {
	in := audit.RecordInput{
		ActionType:  a.action,
		Description: string(a.action),
		Status:      audit.StatusSuccess,
		ClientIP:    fmt.Sprintf("10.0.%d.%d", rng.Intn(4), 1+rng.Intn(250)),
	}
	if a.admin {
		in.AdminID = audit.Int64(int64(1 + rng.Intn(3)))
	} else {
		in.UserID = audit.Int64(int64(1 + rng.Intn(200)))
	}
	if a.table != "" {
		in.AffectedTable = audit.String(a.table)
		in.AffectedID = audit.Int64(int64(1 + rng.Intn(5000)))
	}
	switch {
	case a.action == audit.ActionAccessDenied:
		in.Status = audit.StatusFailed
		in.Description = "access denied"
	case a.action == audit.ActionLogin && rng.Intn(10) == 0:
		in.Status = audit.StatusFailed
		in.UserID = nil
		in.Description = "failed login"
	case rng.Intn(40) == 0:
		in.Status = audit.StatusWarning
	}
	return in
}
