// Command stego runs hide and reveal locally against image files, using the
// same engine and KDF settings as the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"stegapi/internal/config"
	"stegapi/internal/logger"
	"stegapi/internal/model"
	"stegapi/internal/service"
)

// Exit codes for reveal so scripts can tell outcomes apart.
const (
	exitOK               = 0
	exitError            = 1
	exitRequiresLocation = 2
	exitRejected         = 3
)

const usage = "Expected 'hide' or 'reveal' subcommand"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage)
		return exitError
	}

	cfg := config.Load()
	log, err := logger.New(logger.Config{ServiceName: "stego-cli", Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		fmt.Fprintf(stderr, "failed to build logger: %v\n", err)
		return exitError
	}
	defer log.Sync()

	svc, err := service.NewStegoService(cfg.Stego, service.WithLogger(log))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	switch args[0] {
	case "hide":
		return handleHide(ctx, svc, args[1:], stdout, stderr)
	case "reveal":
		return handleReveal(ctx, svc, args[1:], stdout, stderr)
	default:
		fmt.Fprintln(stderr, usage)
		return exitError
	}
}

func handleHide(ctx context.Context, svc service.StegoService, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("hide", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	imgPath := cmd.String("i", "", "Path to cover image")
	outPath := cmd.String("o", "secured_image.png", "Path to write the PNG result")
	text := cmd.String("t", "", "Text to hide")
	password := cmd.String("p", "", "Password")
	after := cmd.Duration("after", 0, "Time lock: reveal only after this long (e.g. 90m, 48h)")
	lat := cmd.String("lat", "", "Location lock latitude")
	lng := cmd.String("lng", "", "Location lock longitude")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}

	if *imgPath == "" || *text == "" || *password == "" {
		fmt.Fprintln(stderr, "Error: -i, -t and -p are required")
		return exitError
	}

	at, err := parseCoordinates(*lat, *lng)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	in, err := os.Open(*imgPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer in.Close()

	req := service.HideRequest{Image: in, Text: *text, Password: *password, Location: at}
	if *after != 0 {
		req.Delay = after
	}

	res, err := svc.Hide(ctx, req)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	if err := os.WriteFile(*outPath, res.PNG, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	fmt.Fprintf(stdout, "Wrote %s (%dx%d, %d byte envelope)\n", *outPath, res.Width, res.Height, res.EnvelopeBytes)
	if nb := res.Policy.NotBefore; nb != nil {
		fmt.Fprintf(stdout, "Locked until %s\n", nb.Format(time.RFC3339))
	}
	if g := res.Policy.Geofence; g != nil {
		fmt.Fprintf(stdout, "Readable within %.0f m of the chosen location\n", g.RadiusMeters)
	}
	return exitOK
}

func handleReveal(ctx context.Context, svc service.StegoService, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("reveal", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	imgPath := cmd.String("i", "", "Path to stego image")
	password := cmd.String("p", "", "Password")
	lat := cmd.String("lat", "", "Current latitude")
	lng := cmd.String("lng", "", "Current longitude")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}

	if *imgPath == "" || *password == "" {
		fmt.Fprintln(stderr, "Error: -i and -p are required")
		return exitError
	}

	at, err := parseCoordinates(*lat, *lng)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	in, err := os.Open(*imgPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer in.Close()

	res, err := svc.Extract(ctx, service.ExtractRequest{Image: in, Password: *password, Location: at})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	switch res.Status {
	case model.StatusSuccess:
		fmt.Fprintln(stdout, string(res.Plaintext))
		return exitOK
	case model.StatusRequiresLocation:
		fmt.Fprintln(stderr, "This message is location locked: pass -lat and -lng")
		return exitRequiresLocation
	}

	switch res.Reason {
	case model.ReasonNotYetAvailable:
		fmt.Fprintln(stderr, "This message is not yet available")
	case model.ReasonOutOfRange:
		fmt.Fprintln(stderr, "You are outside the allowed area")
	default:
		fmt.Fprintln(stderr, "Invalid password or corrupted image")
	}
	return exitRejected
}

func parseCoordinates(lat, lng string) (*model.Coordinates, error) {
	if lat == "" && lng == "" {
		return nil, nil
	}
	if lat == "" || lng == "" {
		return nil, errors.New("-lat and -lng must be given together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, fmt.Errorf("-lat: %w", err)
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return nil, fmt.Errorf("-lng: %w", err)
	}
	at := &model.Coordinates{Lat: la, Lng: ln}
	if !at.Valid() {
		return nil, errors.New("coordinates are out of range")
	}
	return at, nil
}

