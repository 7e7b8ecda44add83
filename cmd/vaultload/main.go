// Command vaultload is a diagnostic load-test driver for the vault engine,
// grounded in the original PebbleVault load-test module: it populates N
// regions with randomly positioned objects, runs a batch of box queries,
// and reports wall-clock timings. It is not part of the core contract.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"pebblevault/internal/spatial"
	"pebblevault/internal/vlog"
)

type loadTestObject struct {
	Name      string   `json:"name"`
	Level     int      `json:"level"`
	Health    float64  `json:"health"`
	Inventory []string `json:"inventory"`
	IsActive  bool     `json:"is_active"`
}

func randomObject(rng *rand.Rand) loadTestObject {
	n := rng.Intn(5)
	inv := make([]string, n)
	for i := range inv {
		inv[i] = fmt.Sprintf("item_%d", rng.Uint32())
	}
	return loadTestObject{
		Name:      fmt.Sprintf("object_%d", rng.Uint32()),
		Level:     1 + rng.Intn(99),
		Health:    rng.Float64() * 100,
		Inventory: inv,
		IsActive:  rng.Intn(2) == 0,
	}
}

func main() {
	var (
		dataDir       = flag.String("data", "./loadtest-data", "vault data directory")
		numObjects    = flag.Int("objects", 100000, "objects to add per region")
		numRegions    = flag.Int("regions", 10, "number of regions")
		numOperations = flag.Int("operations", 1000, "box queries to run after populating")
		bound         = flag.Float64("bound", 500, "positions are uniform in [-bound, bound]^3")
		seed          = flag.Int64("seed", 1, "random seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[vaultload] ", log.LstdFlags)
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("create data dir: %v", err)
	}

	cfg := spatial.DefaultConfig(*dataDir + "/vault.db")
	diag := vlog.NewDiagLogger(*dataDir + "/logs")
	defer diag.Close()

	mgr, err := spatial.New(cfg, logger, diag)
	if err != nil {
		logger.Fatalf("open vault: %v", err)
	}
	defer mgr.Close(context.Background())

	ctx := context.Background()
	rng := rand.New(rand.NewSource(*seed))

	fmt.Println("==== PebbleVault load test ====")
	fmt.Printf("objects/region: %d   regions: %d   operations: %d\n", *numObjects, *numRegions, *numOperations)

	regions := make([]uuid.UUID, *numRegions)
	for i := 0; i < *numRegions; i++ {
		center := spatial.Point{X: float64(i) * 1000, Y: 0, Z: 0}
		id, err := mgr.CreateOrLoadRegion(ctx, center, 500)
		if err != nil {
			logger.Fatalf("create_or_load_region %d: %v", i, err)
		}
		regions[i] = id
	}

	start := time.Now()
	ids := make([]uuid.UUID, 0, *numObjects**numRegions)
	var totalPayloadBytes int
	for _, regionID := range regions {
		for i := 0; i < *numObjects; i++ {
			pos := spatial.Point{
				X: rng.Float64()*2*(*bound) - *bound,
				Y: rng.Float64()*2*(*bound) - *bound,
				Z: rng.Float64()*2*(*bound) - *bound,
			}
			payload, err := json.Marshal(randomObject(rng))
			if err != nil {
				logger.Fatalf("marshal payload: %v", err)
			}
			id := uuid.New()
			if err := mgr.AddObject(ctx, regionID, id, "load_test_object", pos, payload); err != nil {
				logger.Fatalf("add_object: %v", err)
			}
			ids = append(ids, id)
			totalPayloadBytes += len(payload)
		}
	}
	addElapsed := time.Since(start)
	fmt.Printf("added %s objects in %s (%s total payload)\n",
		humanize.Comma(int64(len(ids))), addElapsed, humanize.Bytes(uint64(totalPayloadBytes)))

	queryBox := spatial.NewBox(
		spatial.Point{X: -(*bound) / 5, Y: -(*bound) / 5, Z: -(*bound) / 5},
		spatial.Point{X: *bound / 5, Y: *bound / 5, Z: *bound / 5},
	)
	start = time.Now()
	var totalHits int
	for i := 0; i < *numOperations; i++ {
		regionID := regions[i%len(regions)]
		got, err := mgr.QueryRegion(ctx, regionID, queryBox.Min, queryBox.Max)
		if err != nil {
			logger.Fatalf("query_region: %v", err)
		}
		totalHits += len(got)
	}
	queryElapsed := time.Since(start)
	fmt.Printf("ran %d box queries in %s (avg %s/query, %s hits total)\n",
		*numOperations, queryElapsed, queryElapsed/time.Duration(*numOperations), humanize.Comma(int64(totalHits)))

	start = time.Now()
	if err := mgr.PersistToDisk(ctx); err != nil {
		logger.Fatalf("persist_to_disk: %v", err)
	}
	fmt.Printf("checkpoint completed in %s\n", time.Since(start))
}
