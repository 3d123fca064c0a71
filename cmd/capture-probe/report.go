package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
	"github.com/e7canasta/orion-care-sensor/modules/device-capture/internal/config"
)

// printBanner prints the startup configuration
func printBanner(cfg *config.Config) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║          Capture Probe - Orion Device Capture             ║\n")
	fmt.Printf("║                      Version %s                        ║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Instance:      %s\n", cfg.InstanceID)
	fmt.Printf("  Source:        %s\n", cfg.Source.Kind)
	if cfg.Source.Kind == "gst" {
		fmt.Printf("  Launch:        %s\n", cfg.Source.Launch)
	}
	fmt.Printf("  Streams:       %d\n", cfg.Capture.Streams)
	if cfg.Capture.MaxBufferBytes > 0 {
		fmt.Printf("  Buffer Limit:  %d bytes\n", cfg.Capture.MaxBufferBytes)
	} else {
		fmt.Printf("  Buffer Limit:  %d bytes (default)\n", devicecapture.DefaultMaxBufferBytes)
	}
	fmt.Printf("  Read Mode:     %s\n", readMode(cfg.Capture.NonBlocking))
	if cfg.Output.Path != "" {
		fmt.Printf("  Packet Dump:   %s (compress=%v)\n", cfg.Output.Path, cfg.Output.Compress)
	} else {
		fmt.Printf("  Packet Dump:   (none - packets not saved)\n")
	}
	if cfg.MQTT.Broker != "" {
		fmt.Printf("  MQTT Control:  %s\n", cfg.MQTT.Topics.Control)
	}
	fmt.Printf("\n")
	fmt.Printf("Press Ctrl+C to stop gracefully\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n\n")
}

func readMode(nonBlocking bool) string {
	if nonBlocking {
		return "non-blocking poll"
	}
	return "blocking"
}

// reportStats periodically prints statistics of the live pipeline
func reportStats(ctx context.Context, interval time.Duration, live *livePipeline, dump *packetDump) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printLiveStats(live.Stats(), dump)
		}
	}
}

// printLiveStats prints the current pipeline snapshot
func printLiveStats(stats devicecapture.Stats, dump *packetDump) {
	if stats.ID == "" {
		return
	}

	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ Pipeline Statistics (Uptime: %s)\n", stats.Uptime.Round(time.Second))
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	fmt.Printf("│ State:              %6s\n", stats.State)
	fmt.Printf("│ Packets Admitted:   %6d\n", stats.Admitted)
	fmt.Printf("│ Packets Dropped:    %6d (%.1f%%)\n", stats.Dropped, stats.DropRate)
	fmt.Printf("│ Packets Read:       %6d\n", stats.Read)
	fmt.Printf("│ Packets Queued:     %6d\n", stats.QueuedPackets)
	if stats.Rejected > 0 {
		fmt.Printf("│ Frames Rejected:    %6d\n", stats.Rejected)
	}
	if dump != nil {
		saved, failed := dump.Stats()
		fmt.Printf("│ Packets Dumped:     %6d (%d failed)\n", saved, failed)
	}
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	for _, s := range stats.Streams {
		fmt.Printf("│ Stream %d (%s): %d bytes buffered, %d%% full, %d admitted, %d dropped\n",
			s.Index, s.Name, s.BufferedBytes, s.FullnessPct, s.Admitted, s.Dropped)
	}
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
	fmt.Printf("\n")
}

// printProbe prints per-stream arrival rate statistics
func printProbe(stats map[int]*devicecapture.RateStats) {
	streams := make([]int, 0, len(stats))
	for s := range stats {
		streams = append(streams, s)
	}
	sort.Ints(streams)

	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ Probe Complete\n")
	for _, stream := range streams {
		s := stats[stream]
		fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
		fmt.Printf("│ Stream %d\n", stream)
		fmt.Printf("│ Packets Received:   %6d packets\n", s.Packets)
		fmt.Printf("│ Duration:           %6.1f seconds\n", s.Duration.Seconds())
		fmt.Printf("│ Rate Mean:          %6.2f pkt/s\n", s.RateMean)
		fmt.Printf("│ Rate StdDev:        %6.2f pkt/s\n", s.RateStdDev)
		fmt.Printf("│ Throughput:         %6.2f MB/s\n", s.Throughput/1024/1024)
		fmt.Printf("│ Jitter Mean:        %6.3f s\n", s.JitterMean)
		fmt.Printf("│ Jitter Max:         %6.3f s\n", s.JitterMax)
		fmt.Printf("│ Stable:             %6v\n", s.IsStable)
	}
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")

	for _, stream := range streams {
		if !stats[stream].IsStable {
			fmt.Printf("\n⚠️  WARNING: stream %d is unstable (high rate variance or jitter)\n", stream)
		}
	}
	fmt.Printf("\n")
}

// printFinalStats prints the snapshot taken before the pipeline was closed
func printFinalStats(stats devicecapture.Stats, dump *packetDump) {
	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Pipeline:           %s (%s)\n", stats.ID, stats.Device)
	fmt.Printf("  Total Uptime:       %s\n", stats.Uptime.Round(time.Second))
	fmt.Printf("  Packets Admitted:   %d\n", stats.Admitted)
	fmt.Printf("  Packets Dropped:    %d (%.1f%%)\n", stats.Dropped, stats.DropRate)
	fmt.Printf("  Packets Read:       %d\n", stats.Read)
	if stats.EOF {
		fmt.Printf("  End Of Stream:      %s\n", stats.TerminalStatus)
	}
	if dump != nil {
		saved, failed := dump.Stats()
		fmt.Printf("  Packets Dumped:     %d (%d failed)\n", saved, failed)
	}
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")
}
