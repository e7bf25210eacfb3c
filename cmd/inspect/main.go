// Команда inspect прогоняет локальный снимок через конвейер обследования.
//
//	inspect -image road.jpg -lat 18.5204 -lng 73.8567 [-out annotated.png]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"roadsense/config"
	app "roadsense/internal/application"
	"roadsense/internal/container"
	"roadsense/internal/domain/entity"
	"roadsense/internal/lgr"
)

func main() {
	var (
		imagePath = flag.String("image", "", "path to the road photo")
		lat       = flag.Float64("lat", 0, "latitude of the inspected spot")
		lng       = flag.Float64("lng", 0, "longitude of the inspected spot")
		inspector = flag.String("inspector", "cli", "inspector id stored with the record")
		out       = flag.String("out", "", "where to write the annotated PNG")
		timeout   = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	if *imagePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*imagePath, *lat, *lng, *inspector, *out, *timeout); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func run(imagePath string, lat, lng float64, inspector, out string, timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lgr.Setup(lgr.Options{Level: "warn", File: cfg.Log.File})

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return err
	}

	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := c.Pipeline.Process(ctx, app.Submission{Image: image, Lat: lat, Lng: lng, InspectorID: inspector})
	if err != nil {
		return err
	}

	if out != "" {
		if err := os.WriteFile(out, res.Annotated, 0o644); err != nil {
			return err
		}
	}
	printSummary(res.Record, out)
	return nil
}

func printSummary(rec *entity.InspectionRecord, out string) {
	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Printf("%s %s\n", bold("Inspection"), rec.ID)
	fmt.Printf("  %s %s\n", faint("address:"), rec.Address)
	fmt.Printf("  %s %s\n", faint("score:  "), statusColor(rec.Status).Sprintf("%d/100 %s", rec.Score, rec.Status))
	fmt.Printf("  %s %d\n", faint("defects:"), rec.DefectCount)
	for _, d := range rec.Defects {
		fmt.Printf("    • %-20s %5.1f%%  at (%.0f, %.0f)\n", d.Class, d.Confidence*100, d.X, d.Y)
	}
	fmt.Printf("  %s %s\n", faint("original: "), rec.OriginalImageURL)
	fmt.Printf("  %s %s\n", faint("annotated:"), rec.AnnotatedImageURL)
	if out != "" {
		fmt.Printf("  %s %s\n", faint("saved:    "), out)
	}
}

func statusColor(s entity.Status) *color.Color {
	switch s {
	case entity.StatusGood:
		return color.New(color.FgGreen, color.Bold)
	case entity.StatusModerate:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}
