// Command pebblevaultd is a thin demonstration CLI for the vault engine:
// it opens a store, runs one operation, and exits. It is a harness, not
// part of the core contract (§6 "Caller-facing surface").
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"pebblevault/internal/spatial"
	"pebblevault/internal/vlog"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "vault data directory")
		configFl = flag.String("config", "", "optional YAML config file")
		op       = flag.String("op", "query", "operation: add | query | checkpoint")
		cx       = flag.Float64("cx", 0, "region center x (create_or_load_region)")
		cy       = flag.Float64("cy", 0, "region center y")
		cz       = flag.Float64("cz", 0, "region center z")
		radius   = flag.Float64("radius", 100, "region radius")
		x        = flag.Float64("x", 0, "object/query position or box-min x")
		y        = flag.Float64("y", 0, "object/query position or box-min y")
		z        = flag.Float64("z", 0, "object/query position or box-min z")
		x2       = flag.Float64("x2", 50, "box-max x (query)")
		y2       = flag.Float64("y2", 50, "box-max y (query)")
		z2       = flag.Float64("z2", 50, "box-max z (query)")
		objType  = flag.String("type", "player", "object type (add)")
		payload  = flag.String("payload", "null", "JSON custom_data (add)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[pebblevaultd] ", log.LstdFlags|log.Lmicroseconds)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("create data dir: %v", err)
	}
	storePath := *dataDir + "/vault.db"
	cfg, err := spatial.LoadConfig(*configFl, storePath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	diag := vlog.NewDiagLogger(*dataDir + "/logs")
	defer diag.Close()

	mgr, err := spatial.New(cfg, logger, diag)
	if err != nil {
		logger.Fatalf("open vault: %v", err)
	}
	defer mgr.Close(context.Background())

	ctx := context.Background()
	switch *op {
	case "add":
		regionID, err := mgr.CreateOrLoadRegion(ctx, spatial.Point{X: *cx, Y: *cy, Z: *cz}, *radius)
		if err != nil {
			logger.Fatalf("create_or_load_region: %v", err)
		}
		id := uuid.New()
		if err := mgr.AddObject(ctx, regionID, id, *objType, spatial.Point{X: *x, Y: *y, Z: *z}, json.RawMessage(*payload)); err != nil {
			logger.Fatalf("add_object: %v", err)
		}
		fmt.Printf("region=%s object=%s\n", regionID, id)

	case "query":
		regionID, err := mgr.CreateOrLoadRegion(ctx, spatial.Point{X: *cx, Y: *cy, Z: *cz}, *radius)
		if err != nil {
			logger.Fatalf("create_or_load_region: %v", err)
		}
		objs, err := mgr.QueryRegion(ctx, regionID, spatial.Point{X: *x, Y: *y, Z: *z}, spatial.Point{X: *x2, Y: *y2, Z: *z2})
		if err != nil {
			logger.Fatalf("query_region: %v", err)
		}
		printQueryResults(objs)

	case "checkpoint":
		if err := mgr.PersistToDisk(ctx); err != nil {
			logger.Fatalf("persist_to_disk: %v", err)
		}
		fmt.Println("checkpoint complete")

	default:
		logger.Fatalf("unknown -op %q (want add, query, or checkpoint)", *op)
	}
}

func printQueryResults(objs []spatial.SpatialObject) {
	tty := isatty.IsTerminal(os.Stdout.Fd())
	if !tty {
		for _, o := range objs {
			fmt.Printf("%s\t%s\t%.3f,%.3f,%.3f\t%s\n", o.UUID, o.ObjectType, o.Position.X, o.Position.Y, o.Position.Z, o.CustomData)
		}
		return
	}
	fmt.Printf("%-36s  %-12s  %-24s  %s\n", "UUID", "TYPE", "POSITION", "PAYLOAD")
	for _, o := range objs {
		pos := fmt.Sprintf("%.2f,%.2f,%.2f", o.Position.X, o.Position.Y, o.Position.Z)
		fmt.Printf("%-36s  %-12s  %-24s  %s\n", o.UUID, o.ObjectType, pos, o.CustomData)
	}
}
