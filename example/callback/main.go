package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/slomkowski/usb-geiger/pkg/geiger"
)

func main() {
	printer := func(_ context.Context, m geiger.Measurement) error {
		if m.CPM == nil || m.Radiation == nil {
			return nil
		}
		fmt.Printf("%s cpm=%.2f radiation=%.3f uSv/h\n",
			m.Timestamp.Local().Format(time.RFC3339),
			*m.CPM,
			*m.Radiation,
		)
		return nil
	}

	flow, err := geiger.Conf("../../data/config.yaml", geiger.WithCallback("stdout", printer))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}
