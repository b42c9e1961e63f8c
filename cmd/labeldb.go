// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// The labeldb CLI tool manages labels.db files: fixed-layout databases
// mapping 32-bit cartridge IDs to raster label images. It creates and
// mutates databases, compares and synchronizes two copies, pushes files
// to removable storage with chunked progress-reported copies, and backs
// snapshots up to object storage.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/retrolabs/labeldb/pkg/backend"
	"github.com/retrolabs/labeldb/pkg/comparator"
	"github.com/retrolabs/labeldb/pkg/database"
	"github.com/retrolabs/labeldb/pkg/metrics"
	"github.com/retrolabs/labeldb/pkg/metrics/fileexporter"
	"github.com/retrolabs/labeldb/pkg/syncer"
	"github.com/retrolabs/labeldb/pkg/transfer"
	"github.com/retrolabs/labeldb/pkg/utils"
)

// Overridden at release time via -ldflags.
var versionGitCommit = "unknown"
var versionBuildTime = "unknown"

func isPossibleValue(excepted []string, value string) bool {
	for _, v := range excepted {
		if value == v {
			return true
		}
	}
	return false
}

func parseBackendConfig(backendConfigJSON, backendConfigFile string) (string, error) {
	if backendConfigJSON != "" && backendConfigFile != "" {
		return "", fmt.Errorf("--backend-config conflicts with --backend-config-file")
	}

	if backendConfigFile != "" {
		_backendConfigJSON, err := os.ReadFile(backendConfigFile)
		if err != nil {
			return "", errors.Wrap(err, "parse backend config file")
		}
		backendConfigJSON = string(_backendConfigJSON)
	}

	return backendConfigJSON, nil
}

func setupLogLevel(c *cli.Context) error {
	logLevel, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(logLevel)
	return nil
}

func setupMetrics(c *cli.Context) func() {
	output := c.String("output-metrics")
	if output == "" {
		return func() {}
	}
	metrics.Register(fileexporter.New(output))
	return metrics.Export
}

func loadDatabase(path string) (*database.Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read database %s", path)
	}
	db, err := database.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse database %s", path)
	}
	return db, nil
}

func writeDatabase(path string, db *database.Database) error {
	if err := os.WriteFile(path, db.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "write database %s", path)
	}
	return nil
}

func readImage(path string) ([]byte, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read image payload %s", path)
	}
	return image, nil
}

var logLevelFlag = &cli.StringFlag{
	Name: "log-level", Value: "info",
	Usage:   "Set log level (panic, fatal, error, warn, info, debug, trace)",
	EnvVars: []string{"LOG_LEVEL"},
}

var metricsFlag = &cli.StringFlag{
	Name: "output-metrics", Value: "",
	Usage:   "Write Prometheus metrics to the given textfile on exit",
	EnvVars: []string{"OUTPUT_METRICS"},
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	version := fmt.Sprintf("%s.%s", versionGitCommit, versionBuildTime)

	app := &cli.App{
		Name:    "labeldb",
		Usage:   "Cartridge label database tool",
		Version: version,
	}

	app.Commands = []*cli.Command{
		{
			Name:  "create",
			Usage: "Create an empty labels.db file",
			Flags: []cli.Flag{
				logLevelFlag,
				&cli.StringFlag{Name: "output", Required: true, Usage: "Output database path", EnvVars: []string{"OUTPUT"}},
			},
			Action: func(c *cli.Context) error {
				if err := setupLogLevel(c); err != nil {
					return err
				}
				db := database.New()
				if err := writeDatabase(c.String("output"), db); err != nil {
					return err
				}
				logrus.Infof("created empty database %s", c.String("output"))
				return nil
			},
		},
		{
			Name:      "add",
			Usage:     "Add a cartridge label to a database",
			ArgsUsage: "<database>",
			Flags: []cli.Flag{
				logLevelFlag,
				&cli.StringFlag{Name: "key", Required: true, Usage: "Cartridge ID as 8 hex digits", EnvVars: []string{"KEY"}},
				&cli.StringFlag{Name: "image", Required: true, TakesFile: true, Usage: "Raw 74x86 BGRA pixel payload (25,456 bytes)", EnvVars: []string{"IMAGE"}},
			},
			Action: func(c *cli.Context) error {
				return mutateAction(c, func(db *database.Database, key uint32, image []byte) (*database.Database, error) {
					return db.Add(key, image)
				})
			},
		},
		{
			Name:      "update",
			Usage:     "Replace the label image of an existing cartridge ID",
			ArgsUsage: "<database>",
			Flags: []cli.Flag{
				logLevelFlag,
				&cli.StringFlag{Name: "key", Required: true, Usage: "Cartridge ID as 8 hex digits", EnvVars: []string{"KEY"}},
				&cli.StringFlag{Name: "image", Required: true, TakesFile: true, Usage: "Raw 74x86 BGRA pixel payload (25,456 bytes)", EnvVars: []string{"IMAGE"}},
			},
			Action: func(c *cli.Context) error {
				return mutateAction(c, func(db *database.Database, key uint32, image []byte) (*database.Database, error) {
					return db.Update(key, image)
				})
			},
		},
		{
			Name:      "delete",
			Usage:     "Remove a cartridge ID and its label from a database",
			ArgsUsage: "<database>",
			Flags: []cli.Flag{
				logLevelFlag,
				&cli.StringFlag{Name: "key", Required: true, Usage: "Cartridge ID as 8 hex digits", EnvVars: []string{"KEY"}},
			},
			Action: func(c *cli.Context) error {
				return mutateAction(c, func(db *database.Database, key uint32, _ []byte) (*database.Database, error) {
					return db.Delete(key)
				})
			},
		},
		{
			Name:      "inspect",
			Usage:     "Print the entry list and content digest of a database",
			ArgsUsage: "<database>",
			Flags: []cli.Flag{
				logLevelFlag,
			},
			Action: func(c *cli.Context) error {
				if err := setupLogLevel(c); err != nil {
					return err
				}
				path := c.Args().First()
				if path == "" {
					return fmt.Errorf("database path argument is required")
				}
				db, err := loadDatabase(path)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d entries, %s, digest %s\n",
					path, db.Count(), humanize.Bytes(uint64(db.Size())), db.Digest())
				for _, key := range db.Keys() {
					fmt.Println(utils.FormatKey(key))
				}
				return nil
			},
		},
		{
			Name:      "compare",
			Usage:     "Compare two databases",
			ArgsUsage: "<source> <target>",
			Flags: []cli.Flag{
				logLevelFlag,
				metricsFlag,
				&cli.StringFlag{Name: "mode", Value: "quick", Usage: "Comparison mode: quick, sampled or full", EnvVars: []string{"MODE"}},
			},
			Action: compareAction,
		},
		{
			Name:      "sync",
			Usage:     "Bring a target database up to date with a source using minimal writes",
			ArgsUsage: "<source> <target>",
			Flags: []cli.Flag{
				logLevelFlag,
				metricsFlag,
				&cli.BoolFlag{Name: "mirror", Value: false, Usage: "Also remove target-only keys so the target mirrors the source exactly", EnvVars: []string{"MIRROR"}},
				&cli.BoolFlag{Name: "no-durability", Value: false, Usage: "Skip the fsync after applying writes", EnvVars: []string{"NO_DURABILITY"}},
			},
			Action: syncAction,
		},
		{
			Name:      "push",
			Usage:     "Copy a file or directory to removable storage in chunks with progress",
			ArgsUsage: "<source> <destination>",
			Flags: []cli.Flag{
				logLevelFlag,
				metricsFlag,
				&cli.Int64Flag{Name: "chunk-size", Required: true, Usage: "Chunk size in bytes, tuned per storage medium", EnvVars: []string{"CHUNK_SIZE"}},
				&cli.BoolFlag{Name: "sync-per-chunk", Value: true, Usage: "Issue a durability barrier after every chunk; disable for throughput", EnvVars: []string{"SYNC_PER_CHUNK"}},
				&cli.DurationFlag{Name: "progress-interval", Value: time.Second, Usage: "Minimum interval between progress reports", EnvVars: []string{"PROGRESS_INTERVAL"}},
			},
			Action: pushAction,
		},
		{
			Name:      "backup",
			Usage:     "Upload a database snapshot to object storage",
			ArgsUsage: "<database>",
			Flags: []cli.Flag{
				logLevelFlag,
				&cli.StringFlag{Name: "backend-type", Value: "s3", Usage: "Storage backend type: oss or s3", EnvVars: []string{"BACKEND_TYPE"}},
				&cli.StringFlag{Name: "backend-config", Value: "", Usage: "Storage backend config in JSON string", EnvVars: []string{"BACKEND_CONFIG"}},
				&cli.StringFlag{Name: "backend-config-file", Value: "", TakesFile: true, Usage: "Storage backend config from path", EnvVars: []string{"BACKEND_CONFIG_FILE"}},
				&cli.BoolFlag{Name: "force-push", Value: false, Usage: "Upload even if the snapshot already exists in the backend", EnvVars: []string{"FORCE_PUSH"}},
			},
			Action: backupAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

type mutateFunc func(db *database.Database, key uint32, image []byte) (*database.Database, error)

func mutateAction(c *cli.Context, mutate mutateFunc) error {
	if err := setupLogLevel(c); err != nil {
		return err
	}
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("database path argument is required")
	}
	key, err := utils.ParseKey(c.String("key"))
	if err != nil {
		return err
	}
	// Commands without an --image flag, like delete, mutate by key only.
	var image []byte
	if c.String("image") != "" {
		image, err = readImage(c.String("image"))
		if err != nil {
			return err
		}
	}
	db, err := loadDatabase(path)
	if err != nil {
		return err
	}
	db, err = mutate(db, key, image)
	if err != nil {
		return err
	}
	if err := writeDatabase(path, db); err != nil {
		return err
	}
	logrus.Infof("wrote %s for %s, %d entries", path, utils.FormatKey(key), db.Count())
	return nil
}

func compareAction(c *cli.Context) error {
	if err := setupLogLevel(c); err != nil {
		return err
	}
	export := setupMetrics(c)
	defer export()

	if c.Args().Len() != 2 {
		return fmt.Errorf("compare requires <source> and <target> arguments")
	}
	mode := c.String("mode")
	if !isPossibleValue([]string{"quick", "sampled", "full"}, mode) {
		return fmt.Errorf("--mode should be one of [quick sampled full]")
	}

	var sourceData, targetData []byte
	eg := new(errgroup.Group)
	eg.Go(func() (err error) {
		sourceData, err = os.ReadFile(c.Args().Get(0))
		return errors.Wrap(err, "read source database")
	})
	eg.Go(func() (err error) {
		targetData, err = os.ReadFile(c.Args().Get(1))
		return errors.Wrap(err, "read target database")
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	if mode == "quick" {
		result, err := comparator.Quick(sourceData, targetData)
		if err != nil {
			return err
		}
		if result.Identical {
			fmt.Printf("identical: %d entries\n", result.CountSource)
		} else {
			fmt.Printf("different: %d vs %d entries\n", result.CountSource, result.CountTarget)
		}
		return nil
	}

	granularity := comparator.Sampled
	if mode == "full" {
		granularity = comparator.Full
	}
	diff, err := comparator.Detailed(sourceData, targetData, granularity)
	if err != nil {
		return err
	}
	if diff.InSync() {
		fmt.Println("in sync")
		return nil
	}
	for _, key := range diff.OnlyInSource {
		fmt.Printf("only in source: %s\n", utils.FormatKey(key))
	}
	for _, key := range diff.OnlyInTarget {
		fmt.Printf("only in target: %s\n", utils.FormatKey(key))
	}
	for _, key := range diff.Modified {
		fmt.Printf("modified: %s\n", utils.FormatKey(key))
	}
	return nil
}

func syncAction(c *cli.Context) error {
	if err := setupLogLevel(c); err != nil {
		return err
	}
	export := setupMetrics(c)
	defer export()

	if c.Args().Len() != 2 {
		return fmt.Errorf("sync requires <source> and <target> arguments")
	}
	opt := syncer.Opt{
		Policy:     syncer.PolicyKeep,
		Durability: !c.Bool("no-durability"),
	}
	if c.Bool("mirror") {
		opt.Policy = syncer.PolicyMirror
	}
	result, err := syncer.Sync(c.Args().Get(0), c.Args().Get(1), opt)
	if err != nil {
		return err
	}
	fmt.Printf("%d slots written, %d keys added, %d keys removed, %s written\n",
		result.SlotsWritten, result.KeysAdded, result.KeysRemoved, humanize.Bytes(uint64(result.BytesWritten)))
	return nil
}

func pushAction(c *cli.Context) error {
	if err := setupLogLevel(c); err != nil {
		return err
	}
	export := setupMetrics(c)
	defer export()

	if c.Args().Len() != 2 {
		return fmt.Errorf("push requires <source> and <destination> arguments")
	}
	src := c.Args().Get(0)
	dst := c.Args().Get(1)

	cfg := transfer.Config{
		ChunkSize:        c.Int64("chunk-size"),
		SyncPerChunk:     c.Bool("sync-per-chunk"),
		ProgressInterval: c.Duration("progress-interval"),
	}
	progress := func(p transfer.Progress) {
		logrus.Infof("file %d/%d %s: %.1f%%, %s of %s, %s/s, eta %s",
			p.FileIndex, p.FileCount, p.Path, p.Percent,
			humanize.Bytes(uint64(p.OverallBytes)), humanize.Bytes(uint64(p.OverallTotal)),
			humanize.Bytes(uint64(p.Throughput)), p.Remaining.Round(time.Second))
	}

	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrap(err, "stat source")
	}
	if info.IsDir() {
		return transfer.CopyDir(context.Background(), src, dst, cfg, progress)
	}
	return transfer.CopyFile(context.Background(), src, dst, cfg, progress)
}

func backupAction(c *cli.Context) error {
	if err := setupLogLevel(c); err != nil {
		return err
	}

	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("database path argument is required")
	}
	backendType := c.String("backend-type")
	if !isPossibleValue([]string{"oss", "s3"}, backendType) {
		return fmt.Errorf("--backend-type should be one of [oss s3]")
	}
	backendConfig, err := parseBackendConfig(c.String("backend-config"), c.String("backend-config-file"))
	if err != nil {
		return err
	}
	if backendConfig == "" {
		return fmt.Errorf("--backend-config or --backend-config-file required")
	}

	db, err := loadDatabase(path)
	if err != nil {
		return err
	}
	snapshotID := db.Digest().Encoded()

	store, err := backend.NewBackend(backendType, []byte(backendConfig))
	if err != nil {
		return err
	}
	if err := utils.WithRetry(func() error {
		return store.Upload(context.Background(), snapshotID, path, db.Size(), c.Bool("force-push"))
	}); err != nil {
		return errors.Wrap(err, "upload snapshot")
	}
	if err := store.Finalize(false); err != nil {
		return errors.Wrap(err, "finalize backend")
	}

	logrus.Infof("uploaded snapshot %s (%s) to %s backend", snapshotID, humanize.Bytes(uint64(db.Size())), backendType)
	return nil
}
