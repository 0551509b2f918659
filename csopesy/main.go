package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jar0582/CSCE4600/csopesy/config"
	"github.com/jar0582/CSCE4600/csopesy/kernel"
	"github.com/jar0582/CSCE4600/csopesy/logging"
	"github.com/jar0582/CSCE4600/csopesy/workload"
)

func main() {
	/* CLI args */
	configPath := flag.String("config", "", "JSON config file (defaults when empty)")
	workloadPath := flag.String("workload", "", "CSV file of processes to declare up front")
	duration := flag.Duration("duration", 5*time.Second, "how long the batch generator runs")
	drain := flag.Duration("drain", time.Minute, "how long to wait for queued work after stopping")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	logger := logging.New(cfg.LogLevel, os.Stderr)

	k := kernel.New(cfg, logger)
	if err := k.Init(); err != nil {
		logger.WithError(err).Fatal("initializing")
	}
	defer func() {
		if err := k.Exit(); err != nil {
			logger.WithError(err).Error("exiting")
		}
	}()

	/* Pre-declared processes */
	if *workloadPath != "" {
		if err := declare(k, *workloadPath); err != nil {
			logger.WithError(err).Error("loading workload")
			return
		}
	}

	/* Scheduling */
	if err := k.Start(); err != nil {
		logger.WithError(err).Error("starting")
		return
	}
	time.Sleep(*duration)
	if err := k.Stop(); err != nil {
		logger.WithError(err).Error("stopping")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *drain)
	defer cancel()
	if err := k.WaitIdle(ctx); errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("queued processes still pending after drain timeout")
	}

	/* Reports */
	for _, render := range []func() (string, error){k.ScreenList, k.VisualizeMemory, k.VMStat} {
		out, err := render()
		if err != nil {
			logger.WithError(err).Error("rendering report")
			return
		}
		fmt.Println(out)
	}
	path, err := k.ReportUtil()
	if err != nil {
		logger.WithError(err).Error("writing report")
		return
	}
	fmt.Printf("Report generated at %s\n", path)
}

func declare(k *kernel.Kernel, path string) error {
	f, closeFile, err := workload.Open(path)
	if err != nil {
		return err
	}
	defer closeFile()

	entries, err := workload.Load(f)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Instructions > 0 {
			_, err = k.SubmitGenerated(e.Name, e.Memory, e.Instructions)
		} else {
			_, err = k.FetchProcessByName(e.Name, e.Memory)
		}
		if err != nil {
			return fmt.Errorf("%w: declaring %s", err, e.Name)
		}
	}
	return nil
}
