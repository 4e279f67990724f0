package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	geiger "github.com/slomkowski/usb-geiger"
)

const alarmThreshold = 1.0 // uSv/h

func main() {
	flow, err := geiger.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, measurements, closeMeasurements := geiger.NewChannelSink("alarm", 8)
	defer closeMeasurements()

	go alarmWorker(measurements)

	if err := flow.Run(ctx, sink); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}

// alarmWorker exits when the runtime closes the sink.
func alarmWorker(measurements <-chan geiger.Measurement) {
	for m := range measurements {
		if m.Radiation != nil && *m.Radiation >= alarmThreshold {
			fmt.Printf("ALARM %s: %.3f uSv/h\n", m.Timestamp.Local().Format("15:04:05"), *m.Radiation)
		}
	}
}
