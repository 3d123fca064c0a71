// Package devicecapture buffers frames from a live capture device for a
// single reader, shedding load probabilistically when the reader falls behind.
//
// This module is part of Orion 2.0 and sits between a capture device (webcam,
// capture card, GStreamer pipeline) and the demuxing/inference side. The device
// pushes frames from its own threads; the application pulls them in admission
// order, blocking or non-blocking, and can pause or resume the device.
//
// # Quick Start
//
//	dev := gstdevice.New(gstdevice.Config{Launch: "v4l2src ! videoconvert ! appsink name=sink"})
//
//	p, err := devicecapture.New(devicecapture.Config{
//	    Name:        "webcam",
//	    Streams:     1,
//	    StreamNames: []string{"video"},
//	}, dev)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	for {
//	    pkt, err := p.ReadContext(ctx)
//	    if errors.Is(err, devicecapture.ErrEndOfStream) {
//	        break // device lost, aborted or completed
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    process(pkt.Stream, pkt.PTS, pkt.Data)
//	    pkt.Release()
//	}
//
// # Admission (drop policy)
//
// Each arrival is checked against its stream's buffered bytes:
//
//	fullness  = buffered * 100 / MaxBufferBytes
//	threshold = DropSchedule[++counter % len(DropSchedule)]
//	admit     = threshold > fullness
//
// With the default schedule {62, 75, 87, 100}:
//
//   - Below 62% full: every frame admitted
//   - 62-75%: 1 in 4 dropped
//   - 75-87%: 2 in 4 dropped
//   - 87-100%: 3 in 4 dropped
//   - 100% and above: everything dropped
//
// The counter is shared by all streams unless CounterScope is PerStreamCounter.
// The producer never blocks and never sees an error: drops are counted in
// Stats and logged (Warn on the first drop of a streak, Debug afterwards).
//
// # Reading
//
// Read(false) returns ErrWouldBlock when nothing is queued. Read(true) and
// ReadContext park until a frame arrives, the device reports a status code,
// or the pipeline is closed. Queued packets are always handed out before
// device status is looked at; once a terminal status (completion, device
// lost, error abort) is observed every later Read returns ErrEndOfStream.
//
// Each Packet owns a copy of the frame; call Release when done so the buffer
// goes back to the pool.
//
// # Control
//
// Request(RequestPlay|RequestPause|RequestToggle) commands the device and
// waits for confirmation. If the device replies "pending", its state is polled
// once; anything but the target state returns ErrControlRejected and leaves
// the run state unchanged.
//
// # Shutdown
//
// Close is idempotent and safe on a partially constructed pipeline:
//
//  1. Stop the device and fence producers (late Deliver calls are ignored)
//  2. Release the device
//  3. Free every queued packet
//  4. Wake any blocked reader with ErrClosed
//
// # Logging
//
// The package logs through log/slog's default logger with a "device-capture:"
// prefix. Configure slog.SetDefault in main to route or filter it.
package devicecapture
