// Command map-report renders an HTML report of the traversable-fraction
// history from a snapshot database, as an ECharts line chart.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/terrain.report/internal/traversedb"
)

var (
	dbFile  = flag.String("db", "terrain_data.db", "Path to the snapshot database")
	outFile = flag.String("out", "fraction_report.html", "Output HTML file")
	limit   = flag.Int("limit", 500, "Maximum number of history points")
)

func main() {
	flag.Parse()

	db, err := traversedb.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	points, err := db.FractionHistory(*limit)
	if err != nil {
		log.Fatalf("failed to read fraction history: %v", err)
	}
	if len(points) == 0 {
		log.Fatal("no snapshots in database, nothing to report")
	}

	labels := make([]string, len(points))
	data := make([]opts.LineData, len(points))
	for i, p := range points {
		labels[i] = time.Unix(0, p.TakenUnixNanos).Format("01-02 15:04:05")
		data[i] = opts.LineData{Value: p.Fraction}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Traversable Fraction History",
			Width:     "1200px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Traversable Fraction",
			Subtitle: fmt.Sprintf("db=%s points=%d", *dbFile, len(points)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "fraction"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
	)
	line.SetXAxis(labels)
	line.AddSeries("fraction", data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	log.Printf("wrote %s (%d points)", *outFile, len(points))
}
