package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/engine"
	"github.com/xuri/excelize/v2"
)

const timestampLayout = "2006-01-02 15:04:05"

// ExportService handles data export functionality
type ExportService struct {
	precision int
}

// NewExportService creates a new export service instance writing values
// with the given number of decimals. A negative precision writes values
// unrounded, as the JSON responses do.
func NewExportService(precision int) *ExportService {
	return &ExportService{precision: precision}
}

// ExportData represents data to be exported
type ExportData struct {
	Rows     []engine.Row
	Excluded []engine.ExcludedItem
	// Rooms maps sensor to room, may be nil
	Rooms          map[string]string
	ExportMetadata ExportMetadata
}

// ExportMetadata contains information about the export
type ExportMetadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Timeframe   string    `json:"timeframe"`
	RecordCount int       `json:"record_count"`
	SensorIDs   []string  `json:"sensor_ids"`
}

// DateRange formats the exported range for display
func (m ExportMetadata) DateRange() string {
	return fmt.Sprintf("%s - %s", m.StartDate.Format(timestampLayout), m.EndDate.Format(timestampLayout))
}

// GenerateExcel creates a workbook with a summary, the aggregated series
// and the excluded series. The caller must close the file.
func (es *ExportService) GenerateExcel(data ExportData) (*excelize.File, error) {
	f := excelize.NewFile()

	// Set document properties
	f.SetDocProps(&excelize.DocProperties{
		Category:       "Indoor Monitor",
		Created:        data.ExportMetadata.GeneratedAt.Format(time.RFC3339),
		Creator:        "Indoor Monitor",
		Description:    "Aggregated indoor sensor readings",
		LastModifiedBy: "Indoor Monitor Backend",
		Modified:       data.ExportMetadata.GeneratedAt.Format(time.RFC3339),
		Subject:        "Sensor time series",
		Title:          "Indoor Sensor Report",
		Version:        "1.0",
	})

	if err := es.createSummarySheet(f, data); err != nil {
		f.Close()
		return nil, err
	}
	if err := es.createAggregatesSheet(f, data); err != nil {
		f.Close()
		return nil, err
	}
	if err := es.createExcludedSheet(f, data.Excluded); err != nil {
		f.Close()
		return nil, err
	}

	// Set active sheet to Summary
	f.SetActiveSheet(0)

	return f, nil
}

func headerStyle(f *excelize.File, color string, size float64) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: size, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
}

// createSummarySheet creates the summary overview sheet
func (es *ExportService) createSummarySheet(f *excelize.File, data ExportData) error {
	sheetName := "Summary"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to rename summary sheet: %w", err)
	}

	style, err := headerStyle(f, "4472C4", 14)
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	// Title
	f.SetCellValue(sheetName, "A1", "Indoor Sensor Report")
	f.MergeCell(sheetName, "A1", "D1")
	f.SetCellStyle(sheetName, "A1", "D1", style)
	f.SetRowHeight(sheetName, 1, 25)

	meta := data.ExportMetadata
	f.SetCellValue(sheetName, "A3", "Generated At:")
	f.SetCellValue(sheetName, "B3", meta.GeneratedAt.Format(timestampLayout))
	f.SetCellValue(sheetName, "A4", "Date Range:")
	f.SetCellValue(sheetName, "B4", meta.DateRange())
	f.SetCellValue(sheetName, "A5", "Timeframe:")
	f.SetCellValue(sheetName, "B5", meta.Timeframe)
	f.SetCellValue(sheetName, "A6", "Total Readings:")
	f.SetCellValue(sheetName, "B6", meta.RecordCount)
	f.SetCellValue(sheetName, "A7", "Aggregated Rows:")
	f.SetCellValue(sheetName, "B7", len(data.Rows))
	f.SetCellValue(sheetName, "A8", "Excluded Series:")
	f.SetCellValue(sheetName, "B8", len(data.Excluded))
	f.SetCellValue(sheetName, "A9", "Sensors:")
	for i, sensor := range meta.SensorIDs {
		cell, _ := excelize.CoordinatesToCellName(2+i, 9)
		f.SetCellValue(sheetName, cell, sensor)
	}

	// Column widths
	f.SetColWidth(sheetName, "A", "A", 20)
	f.SetColWidth(sheetName, "B", "D", 18)

	return nil
}

var aggregateHeaders = []string{"Timestamp", "Sensor", "Room", "Metric", "Unit", "Mean", "Min", "Max", "First", "Last", "Count"}

// createAggregatesSheet writes one row per aggregated bucket
func (es *ExportService) createAggregatesSheet(f *excelize.File, data ExportData) error {
	sheetName := "Aggregates"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create aggregates sheet: %w", err)
	}

	for i, header := range aggregateHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}
	style, err := headerStyle(f, "70AD47", 11)
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	f.SetCellStyle(sheetName, "A1", "K1", style)

	for i, r := range data.Rows {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), r.Timestamp.Format(timestampLayout))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), r.Sensor)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), data.Rooms[r.Sensor])
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), r.Metric.Name())
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), r.Metric.Unit())
		// Empty gapless buckets leave the statistic cells blank
		if r.Agg == nil {
			continue
		}
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), es.round(r.Agg.Mean))
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), es.round(r.Agg.Min))
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), es.round(r.Agg.Max))
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), es.round(r.Agg.First))
		f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), es.round(r.Agg.Last))
		f.SetCellValue(sheetName, fmt.Sprintf("K%d", row), r.Agg.Count)
	}

	f.SetColWidth(sheetName, "A", "A", 20)
	f.SetColWidth(sheetName, "B", "K", 12)

	return nil
}

// createExcludedSheet lists series dropped for having too few readings
func (es *ExportService) createExcludedSheet(f *excelize.File, excluded []engine.ExcludedItem) error {
	sheetName := "Excluded"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create excluded sheet: %w", err)
	}

	headers := []string{"Sensor", "Metric", "Readings"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}
	style, err := headerStyle(f, "C55A11", 11)
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	f.SetCellStyle(sheetName, "A1", "C1", style)

	for i, item := range excluded {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), item.Sensor)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), item.Metric.Name())
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), item.Count)
	}

	f.SetColWidth(sheetName, "A", "C", 15)

	return nil
}

// GenerateCSV creates CSV records with one line per aggregated bucket
func (es *ExportService) GenerateCSV(data ExportData) ([][]string, error) {
	records := [][]string{aggregateHeaders}

	for _, r := range data.Rows {
		record := []string{
			r.Timestamp.Format(time.RFC3339),
			r.Sensor,
			data.Rooms[r.Sensor],
			string(r.Metric),
			r.Metric.Unit(),
			"", "", "", "", "", "",
		}
		if r.Agg != nil {
			record[5] = es.format(r.Agg.Mean)
			record[6] = es.format(r.Agg.Min)
			record[7] = es.format(r.Agg.Max)
			record[8] = es.format(r.Agg.First)
			record[9] = es.format(r.Agg.Last)
			record[10] = strconv.Itoa(r.Agg.Count)
		}
		records = append(records, record)
	}

	return records, nil
}

// GenerateWideCSV creates CSV records from the dense frame table: one line
// per timestamp and one column per (sensor, metric). Missing cells are empty.
func (es *ExportService) GenerateWideCSV(table engine.Table) ([][]string, error) {
	header := make([]string, 0, len(table.Columns)+1)
	header = append(header, "timestamp")
	for _, key := range table.Columns {
		header = append(header, key.Sensor+"."+string(key.Metric))
	}
	records := [][]string{header}

	for i, ts := range table.Index {
		record := make([]string, 0, len(header))
		record = append(record, ts.Format(time.RFC3339Nano))
		for _, v := range table.Values[i] {
			if math.IsNaN(v) {
				record = append(record, "")
			} else {
				record = append(record, es.format(v))
			}
		}
		records = append(records, record)
	}

	return records, nil
}

// WriteCSV writes CSV data to a writer
func (es *ExportService) WriteCSV(w *csv.Writer, records [][]string) error {
	return w.WriteAll(records)
}

func (es *ExportService) round(v float64) float64 {
	return engine.Round(v, es.precision)
}

func (es *ExportService) format(v float64) string {
	if es.precision < 0 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', es.precision, 64)
}
