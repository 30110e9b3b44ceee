// Command s3bfg downloads one S3 object at high throughput by fanning
// fetches out across many TLS connections terminating at different S3
// front-end IPs, rather than relying on a single (possibly suboptimal)
// connection and the SDK's own low-concurrency transfer manager. See
// SPEC_FULL.md for the full design.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"s3bfg/internal/awscreds"
	"s3bfg/internal/blockplanner"
	"s3bfg/internal/config"
	"s3bfg/internal/endpointpool"
	"s3bfg/internal/fetchworker"
	"s3bfg/internal/fileprep"
	"s3bfg/internal/metrics"
	"s3bfg/internal/objectprobe"
	"s3bfg/internal/progress"
	"s3bfg/internal/scheduler"
)

var banner = color.New(color.FgGreen, color.Bold).SprintFunc()

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := run(context.Background(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	isEC2 := awscreds.IsEC2(ctx)
	dnsServer := cfg.DNSServer
	if dnsServer == "" {
		dnsServer = config.DefaultDNSServer(isEC2)
	}

	creds, err := awscreds.Load(ctx, cfg.Profile, cfg.AccessKeyID, cfg.SecretAccessKey, regionOrDefault(cfg.Region))
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	desc, err := objectprobe.Probe(ctx, creds, cfg.Bucket, cfg.Key)
	if err != nil {
		return fmt.Errorf("probing object: %w", err)
	}

	blocks, err := blockplanner.Plan(blockplanner.ObjectDescription{
		SizeBytes: desc.SizeBytes,
		Parts:     desc.Parts,
	}, cfg.ForcedBlockBytes)
	if err != nil {
		return fmt.Errorf("planning blocks: %w", err)
	}

	pool := endpointpool.New()
	pool.Populate(ctx, endpointpool.PopulateOptions{
		Region:      desc.Region,
		DNSServer:   dnsServer,
		Desired:     cfg.DesiredEndpoints,
		MaxRounds:   cfg.DNSMaxRounds,
		Concurrency: cfg.DNSConcurrency,
		RoundDelay:  cfg.DNSRoundDelay,
	})
	if pool.IPCount() == 0 {
		return fmt.Errorf("endpoint discovery found no S3 front-end IPs")
	}

	printBanner(cfg, desc, blocks, dnsServer, isEC2, pool.IPCount())

	var dest fetchworker.Destination
	if !cfg.MemoryOnly {
		if err := fileprep.Preallocate(cfg.Destination, desc.SizeBytes); err != nil {
			return fmt.Errorf("preallocating destination: %w", err)
		}
		f, err := os.OpenFile(cfg.Destination, os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening destination: %w", err)
		}
		defer f.Close()
		dest = f
	}

	receiver := metrics.NewReceiver()
	sink := metrics.NewSink(receiver)
	sink.IncrCounter(metrics.OverallTransferStarted, 1)

	renderer := progress.New(receiver, desc.SizeBytes, cfg.ProgressInterval)
	renderer.Start()
	start := time.Now()

	sched := scheduler.New(cfg.Slots, pool)
	runErr := sched.Run(ctx, sink, creds, blocks, scheduler.Options{
		MaxAttempts: cfg.MaxAttempts,
		Port:        cfg.Port,
		Host:        virtualHostedHost(cfg.Bucket, desc.Region),
		Region:      desc.Region,
		Bucket:      cfg.Bucket,
		Key:         cfg.Key,
		MemoryOnly:  cfg.MemoryOnly,
		Dest:        dest,
	})

	elapsed := time.Since(start)
	renderer.Stop()

	if runErr != nil {
		return fmt.Errorf("transfer failed: %w", runErr)
	}

	fmt.Print(progress.FinalSummary(receiver.Observe(), desc.SizeBytes, elapsed))
	return nil
}

func regionOrDefault(region string) string {
	if region == "" {
		return "us-east-1"
	}
	return region
}

// virtualHostedHost builds the canonical virtual-hosted-style hostname
// used for both TLS SNI and the Host header (spec §4.5: signing is keyed
// to this name, never the connection's peer IP).
func virtualHostedHost(bucket, region string) string {
	return fmt.Sprintf("%s.s3.%s.amazonaws.com", bucket, region)
}

func printBanner(cfg *config.Config, desc objectprobe.ObjectDescription, blocks []blockplanner.Block, dnsServer string, isEC2 bool, ipCount int) {
	if cfg.JSONOutput {
		return
	}

	fmt.Println(banner("s3bfg"))
	fmt.Printf("  Object:       s3://%s/%s\n", cfg.Bucket, cfg.Key)
	fmt.Printf("  Region:       %s\n", desc.Region)
	fmt.Printf("  Object size:  %d bytes  (%d blocks)\n", desc.SizeBytes, len(blocks))
	fmt.Printf("  Slots:        %d\n", cfg.Slots)
	fmt.Printf("  Instance:     %s\n", instanceLabel(isEC2))
	fmt.Printf("  DNS server:   %s  (%d endpoints discovered)\n", dnsServer, ipCount)
	if cfg.MemoryOnly {
		fmt.Printf("  Destination:  memory only\n")
	} else {
		fmt.Printf("  Destination:  %s\n", cfg.Destination)
	}
	fmt.Println()
}

func instanceLabel(isEC2 bool) string {
	if isEC2 {
		return "EC2"
	}
	return "non-EC2"
}
